package chat

import (
	"context"
	"fmt"

	"github.com/gotd/td/tg"

	. "github.com/roelfdiedericks/pail/internal/logging"
	"github.com/roelfdiedericks/pail/internal/store"
)

// SyncFolder refreshes the known channel membership of a Telegram folder
// (a "dialog filter" in MTProto terms) against the account's current
// filter list, persisting the result and updating the live tracked-peer
// set so new channels start ingesting without a restart.
func (l *Listener) SyncFolder(ctx context.Context, st *store.Store, folderName string, sourceID int64, exclude []string) error {
	filters, err := l.client.API().MessagesGetDialogFilters(ctx)
	if err != nil {
		return fmt.Errorf("chat: get dialog filters: %w", err)
	}

	var members []*store.FolderChannel
	for _, f := range filters.GetFilters() {
		dialogFilter, ok := f.(*tg.DialogFilter)
		if !ok || dialogFilter.Title != folderName {
			continue
		}
		for _, peer := range dialogFilter.IncludePeers {
			inputChannel, ok := peer.(*tg.InputPeerChannel)
			if !ok {
				continue
			}
			members = append(members, &store.FolderChannel{
				FolderName:    folderName,
				ChannelPeerID: inputChannel.ChannelID,
			})
		}
	}

	if err := st.SetFolderMembership(folderName, members); err != nil {
		return fmt.Errorf("chat: persist folder membership: %w", err)
	}

	for _, m := range members {
		l.Track(m.ChannelPeerID, sourceID, exclude)
	}
	L_info("chat: folder membership synced", "folder", folderName, "channels", len(members))
	return nil
}
