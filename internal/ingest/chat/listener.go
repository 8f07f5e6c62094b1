// Package chat listens to a Telegram MTProto update stream (via
// gotd/td) and turns messages from tracked channels/groups/folders into
// content_items, mirroring the way syndication sources are ingested.
//
// The only write RPC in this package is channels.readHistory, issued by
// MarkRead to clear a channel's unread count. Nothing else is written
// back to Telegram. The generation pipeline does not call MarkRead, so
// no read state is written after a generation run.
package chat

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"

	"github.com/roelfdiedericks/pail/internal/dedup"
	. "github.com/roelfdiedericks/pail/internal/logging"
	"github.com/roelfdiedericks/pail/internal/perr"
	"github.com/roelfdiedericks/pail/internal/store"
)

// Listener owns the MTProto connection and dispatches incoming messages
// into the store, for every source whose Kind is chat_channel,
// chat_group, or chat_folder.
type Listener struct {
	st       *store.Store
	client   *telegram.Client
	sessions *SessionStorage
	dispatcher tg.UpdateDispatcher
	gaps     *updates.Manager

	mu          sync.RWMutex
	trackedPeer map[int64]trackedSource // peer id -> source
}

type trackedSource struct {
	sourceID int64
	exclude  []string
}

// Config holds the MTProto application credentials every gotd/td client
// needs (obtained from https://my.telegram.org once per deployment).
type Config struct {
	AppID   int
	AppHash string
}

// New builds a Listener. It does not connect; call Run to start the
// update loop.
func New(st *store.Store, cfg Config) *Listener {
	l := &Listener{
		st:          st,
		sessions:    NewSessionStorage(st),
		trackedPeer: make(map[int64]trackedSource),
	}
	l.dispatcher = tg.NewUpdateDispatcher()
	l.gaps = updates.New(updates.Config{
		Handler: l.dispatcher,
		Logger:  nil,
	})

	l.dispatcher.OnNewChannelMessage(l.onNewChannelMessage)
	l.dispatcher.OnNewMessage(l.onNewMessage)

	l.client = telegram.NewClient(cfg.AppID, cfg.AppHash, telegram.Options{
		SessionStorage: l.sessions,
		UpdateHandler:  l.gaps,
	})
	return l
}

// Track registers a source's peer as one whose messages should be
// ingested. Folder sources are expanded by the caller (reconcile loop)
// into one Track call per member channel, refreshed as membership
// changes (see SyncFolder).
func (l *Listener) Track(peerID, sourceID int64, exclude []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trackedPeer[peerID] = trackedSource{sourceID: sourceID, exclude: exclude}
}

// Untrack removes a peer from the tracked set (source disabled or deleted).
func (l *Listener) Untrack(peerID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.trackedPeer, peerID)
}

// HasSession reports whether `tg login` has completed.
func (l *Listener) HasSession(ctx context.Context) (bool, error) {
	return l.sessions.HasSession(ctx)
}

// Run connects and processes updates until ctx is cancelled, reconnecting
// with exponential backoff on transient failures. Chat sources are
// disabled (by the caller, which checks HasSession first) rather than
// causing startup to fail when no session exists yet.
func (l *Listener) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 2 * time.Minute

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := l.client.Run(ctx, func(ctx context.Context) error {
			backoff = time.Second
			L_info("chat: connected")

			self, err := l.client.Self(ctx)
			if err != nil {
				return perr.New(perr.KindIngestTransient, fmt.Errorf("chat: self: %w", err))
			}
			L_info("chat: authenticated", "user_id", self.ID)

			return l.gaps.Run(ctx, l.client.API(), self.ID, updates.AuthOptions{
				IsBot: false,
			})
		})

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			L_warn("chat: connection error, backing off", "error", err, "backoff", backoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (l *Listener) onNewChannelMessage(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
	msg, ok := u.Message.(*tg.Message)
	if !ok {
		return nil
	}
	channel, ok := peerChannelID(msg.PeerID)
	if !ok {
		return nil
	}
	return l.ingestMessage(channel, msg)
}

func (l *Listener) onNewMessage(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
	msg, ok := u.Message.(*tg.Message)
	if !ok {
		return nil
	}
	var peerID int64
	switch p := msg.PeerID.(type) {
	case *tg.PeerChat:
		peerID = int64(p.ChatID)
	case *tg.PeerUser:
		peerID = int64(p.UserID)
	default:
		return nil
	}
	return l.ingestMessage(peerID, msg)
}

func peerChannelID(p tg.PeerClass) (int64, bool) {
	ch, ok := p.(*tg.PeerChannel)
	if !ok {
		return 0, false
	}
	return int64(ch.ChannelID), true
}

func (l *Listener) ingestMessage(peerID int64, msg *tg.Message) error {
	l.mu.RLock()
	tracked, ok := l.trackedPeer[peerID]
	l.mu.RUnlock()
	if !ok {
		return nil
	}
	if excluded(tracked.exclude, msg.Message) {
		return nil
	}

	upstreamID := fmt.Sprintf("%d:%d", peerID, msg.ID)
	key := dedup.Key(upstreamID, "", "")

	if _, err := l.st.GetItemByDedupKey(tracked.sourceID, key); err == nil {
		return nil // already ingested, messages are immutable once sent
	} else if err != store.ErrNotFound {
		return perr.New(perr.KindStoreUnavailable, err)
	}

	published := time.Unix(int64(msg.Date), 0).UTC()
	title := firstLine(msg.Message)

	// Author carries the originating peer id so a folder-typed Source's
	// workspace files can be split back out per resolved child channel
	// (see pipeline.prepareWorkspace); content_items has no separate
	// per-channel column of its own.
	if _, err := l.st.InsertItem(&store.ContentItem{
		SourceID:     tracked.sourceID,
		DedupKey:     key,
		UpstreamID:   upstreamID,
		Title:        title,
		Author:       strconv.FormatInt(peerID, 10),
		Body:         msg.Message,
		OriginalDate: &published,
		IngestedAt:   time.Now().UTC(),
	}); err != nil {
		return perr.New(perr.KindStoreUnavailable, err)
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	if len(s) > 120 {
		return s[:120]
	}
	return s
}

func excluded(patterns []string, text string) bool {
	for _, p := range patterns {
		if p != "" && p == text {
			return true
		}
	}
	return false
}

// MarkRead marks a channel's history read up to the latest ingested
// message, the only write RPC the listener ever issues.
func (l *Listener) MarkRead(ctx context.Context, channelPeerID int64, accessHash int64, maxID int) error {
	_, err := l.client.API().ChannelsReadHistory(ctx, &tg.ChannelsReadHistoryRequest{
		Channel: &tg.InputChannel{ChannelID: channelPeerID, AccessHash: accessHash},
		MaxID:   maxID,
	})
	return err
}
