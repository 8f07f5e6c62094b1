// Package reconcile applies a parsed config.Config onto the store:
// sources and channels present in config are upserted, those absent are
// deleted (cascading to their content items and channel memberships).
package reconcile

import (
	"fmt"
	"time"

	"github.com/roelfdiedericks/pail/internal/config"
	. "github.com/roelfdiedericks/pail/internal/logging"
	"github.com/roelfdiedericks/pail/internal/store"
)

// Apply reconciles cfg onto st. Config validation must already have
// happened (config.Load does this); Apply assumes cfg is well-formed and
// only translates it into store rows.
func Apply(st *store.Store, cfg *config.Config) error {
	existingSources, err := st.ListSources()
	if err != nil {
		return fmt.Errorf("reconcile: list sources: %w", err)
	}
	keepSource := map[string]bool{}
	nameToID := map[string]int64{}

	for _, src := range cfg.Sources {
		keepSource[src.Name] = true
		id, err := st.UpsertSource(&store.Source{
			Name:         src.Name,
			Kind:         string(src.Kind),
			DisplayName:  src.DisplayName,
			Enabled:      src.Enabled,
			Description:  src.Description,
			URL:          src.URL,
			PollInterval: mustParseDuration(src.PollInterval),
			MaxItems:     src.MaxItems,
			AuthHeader:   src.AuthHeader,
			AuthValue:    src.AuthValue,
			ChatPeerID:   src.ChatPeerID,
			ChatUsername: src.ChatUsername,
			FolderName:   src.FolderName,
			Exclude:      src.Exclude,
		})
		if err != nil {
			return fmt.Errorf("reconcile: upsert source %q: %w", src.Name, err)
		}
		nameToID[src.Name] = id
		L_debug("reconcile: source upserted", "name", src.Name, "id", id)
	}

	for _, existing := range existingSources {
		if !keepSource[existing.Name] {
			L_info("reconcile: deleting source absent from config", "name", existing.Name)
			if err := st.DeleteSource(existing.Name); err != nil {
				return fmt.Errorf("reconcile: delete source %q: %w", existing.Name, err)
			}
		}
	}

	existingChannels, err := st.ListChannels()
	if err != nil {
		return fmt.Errorf("reconcile: list channels: %w", err)
	}
	keepChannel := map[string]bool{}

	for _, ch := range cfg.Channels {
		keepChannel[ch.URLSlug] = true
		sourceIDs := make([]int64, 0, len(ch.Sources))
		for _, ref := range ch.Sources {
			id, ok := nameToID[ref]
			if !ok {
				return fmt.Errorf("reconcile: channel %q references unknown source %q", ch.URLSlug, ref)
			}
			sourceIDs = append(sourceIDs, id)
		}
		if _, err := st.UpsertChannel(&store.OutputChannel{
			Name:     ch.Name,
			URLSlug:  ch.URLSlug,
			Enabled:  ch.Enabled,
			Schedule: ch.Schedule,
			Prompt:   ch.Prompt,
			Model:    ch.Model,
			Language: ch.Language,
		}, sourceIDs); err != nil {
			return fmt.Errorf("reconcile: upsert channel %q: %w", ch.URLSlug, err)
		}
		L_debug("reconcile: channel upserted", "slug", ch.URLSlug)
	}

	for _, existing := range existingChannels {
		if !keepChannel[existing.URLSlug] {
			L_info("reconcile: deleting channel absent from config", "slug", existing.URLSlug)
			if err := st.DeleteChannel(existing.URLSlug); err != nil {
				return fmt.Errorf("reconcile: delete channel %q: %w", existing.URLSlug, err)
			}
		}
	}

	return nil
}

func mustParseDuration(s string) time.Duration {
	parsed, err := config.ParseDuration(s)
	if err != nil {
		return 0
	}
	return parsed
}
