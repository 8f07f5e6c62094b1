package reconcile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/pail/internal/config"
	"github.com/roelfdiedericks/pail/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := t.TempDir() + "/pail.db"
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestApplyUpsertsAndDeletes(t *testing.T) {
	st := openTestStore(t)

	cfg := &config.Config{
		Sources: []config.Source{
			{Name: "hn", Kind: config.SourceKindSyndication, DisplayName: "Hacker News", Enabled: true, URL: "https://example.com/rss", PollInterval: "10m", MaxItems: 200},
		},
		Channels: []config.OutputChannel{
			{Name: "Digest", URLSlug: "digest", Enabled: true, Schedule: "at:07:00", Prompt: "p", Sources: []string{"hn"}},
		},
	}
	require.NoError(t, Apply(st, cfg))

	srcs, err := st.ListSources()
	require.NoError(t, err)
	require.Len(t, srcs, 1)

	chans, err := st.ListChannels()
	require.NoError(t, err)
	require.Len(t, chans, 1)
	require.Len(t, chans[0].SourceIDs, 1)

	// Remove the source from config; reconciling again must cascade-delete it.
	cfg.Sources = nil
	cfg.Channels[0].Sources = nil
	require.NoError(t, Apply(st, cfg))

	srcs, err = st.ListSources()
	require.NoError(t, err)
	require.Empty(t, srcs)
}

func TestApplyRejectsUnknownSourceReference(t *testing.T) {
	st := openTestStore(t)
	cfg := &config.Config{
		Channels: []config.OutputChannel{
			{Name: "Digest", URLSlug: "digest", Enabled: true, Schedule: "at:07:00", Prompt: "p", Sources: []string{"missing"}},
		},
	}
	err := Apply(st, cfg)
	require.Error(t, err)
}
