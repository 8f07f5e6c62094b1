package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/pail/internal/store"
)

func TestSweepDeletesOnlyExpiredItems(t *testing.T) {
	st, err := store.Open(t.TempDir() + "/pail.db")
	require.NoError(t, err)
	defer st.Close()

	srcID, err := st.UpsertSource(&store.Source{Name: "s", Kind: "syndication", DisplayName: "S", Enabled: true, URL: "u", PollInterval: time.Minute})
	require.NoError(t, err)

	old := time.Now().UTC().Add(-10 * 24 * time.Hour)
	recent := time.Now().UTC()
	_, err = st.InsertItem(&store.ContentItem{SourceID: srcID, DedupKey: "old", IngestedAt: old})
	require.NoError(t, err)
	_, err = st.InsertItem(&store.ContentItem{SourceID: srcID, DedupKey: "new", IngestedAt: recent})
	require.NoError(t, err)

	sw := New(st, 7*24*time.Hour, time.Hour)
	sw.sweep()

	_, err = st.GetItemByDedupKey(srcID, "old")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.GetItemByDedupKey(srcID, "new")
	require.NoError(t, err)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	st, err := store.Open(t.TempDir() + "/pail.db")
	require.NoError(t, err)
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sw := New(st, time.Hour, time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
