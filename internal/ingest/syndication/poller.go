// Package syndication polls RSS/Atom sources on their configured
// interval, using conditional GETs to avoid re-downloading unchanged
// feeds, and hands new or changed entries to the store.
package syndication

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/roelfdiedericks/pail/internal/dedup"
	. "github.com/roelfdiedericks/pail/internal/logging"
	"github.com/roelfdiedericks/pail/internal/perr"
	"github.com/roelfdiedericks/pail/internal/store"
)

const pollTimeout = 30 * time.Second

// Poller polls a single source. The scheduler owning a Poller is
// responsible for calling Poll on the source's configured interval.
type Poller struct {
	st     *store.Store
	client *http.Client
}

// New builds a Poller backed by st.
func New(st *store.Store) *Poller {
	return &Poller{st: st, client: &http.Client{Timeout: pollTimeout}}
}

// Poll fetches src once. A transient failure (network error, 5xx) is
// returned wrapped as perr.KindIngestTransient; a permanent failure (4xx,
// unparseable body) as perr.KindIngestPermanent. 304 Not Modified is a
// normal no-op, not an error.
func (p *Poller) Poll(ctx context.Context, src *store.Source) (newItems, changedItems int, err error) {
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return 0, 0, perr.New(perr.KindIngestPermanent, err)
	}
	if src.AuthHeader != "" {
		req.Header.Set(src.AuthHeader, src.AuthValue)
	}
	if src.ETag != "" {
		req.Header.Set("If-None-Match", src.ETag)
	}
	if src.LastModified != "" {
		req.Header.Set("If-Modified-Since", src.LastModified)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, 0, perr.New(perr.KindIngestTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		L_debug("syndication: not modified", "source", src.Name)
		_ = p.st.UpdateSourceFetchCursor(src.ID, src.ETag, src.LastModified, time.Now().UTC())
		return 0, 0, nil
	}
	if resp.StatusCode >= 500 {
		return 0, 0, perr.Newf(perr.KindIngestTransient, "syndication: %s returned %d", src.Name, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return 0, 0, perr.Newf(perr.KindIngestPermanent, "syndication: %s returned %d", src.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return 0, 0, perr.New(perr.KindIngestTransient, err)
	}

	entries, err := Parse(body)
	if err != nil {
		return 0, 0, perr.New(perr.KindIngestPermanent, err)
	}

	maxItems := src.MaxItems
	if maxItems > 0 && len(entries) > maxItems {
		entries = entries[:maxItems]
	}

	for _, e := range entries {
		if excluded(src.Exclude, e.Title) {
			continue
		}
		key := dedup.Key(e.ID, e.Link, e.Title)
		existing, lookupErr := p.st.GetItemByDedupKey(src.ID, key)
		switch {
		case lookupErr == store.ErrNotFound:
			if _, insertErr := p.st.InsertItem(&store.ContentItem{
				SourceID:     src.ID,
				DedupKey:     key,
				UpstreamID:   e.ID,
				Title:        e.Title,
				URL:          e.Link,
				Author:       e.Author,
				Body:         e.Body,
				OriginalDate: e.Published,
				IngestedAt:   time.Now().UTC(),
			}); insertErr != nil {
				return newItems, changedItems, perr.New(perr.KindStoreUnavailable, insertErr)
			}
			newItems++
		case lookupErr != nil:
			return newItems, changedItems, perr.New(perr.KindStoreUnavailable, lookupErr)
		default:
			if existing.Title != e.Title || existing.Body != e.Body {
				if err := p.st.MarkUpstreamChanged(existing.ID, e.Title, e.Body); err != nil {
					return newItems, changedItems, perr.New(perr.KindStoreUnavailable, err)
				}
				changedItems++
			}
		}
	}

	etag := resp.Header.Get("ETag")
	lastMod := resp.Header.Get("Last-Modified")
	if err := p.st.UpdateSourceFetchCursor(src.ID, etag, lastMod, time.Now().UTC()); err != nil {
		return newItems, changedItems, perr.New(perr.KindStoreUnavailable, err)
	}

	return newItems, changedItems, nil
}

func excluded(patterns []string, title string) bool {
	for _, p := range patterns {
		if p != "" && p == title {
			return true
		}
	}
	return false
}
