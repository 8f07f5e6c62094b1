package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := t.TempDir() + "/pail.db"
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertSourceInsertThenUpdate(t *testing.T) {
	s := openTestStore(t)

	src := &Source{Name: "hn", Kind: "syndication", DisplayName: "Hacker News", Enabled: true, URL: "https://example.com/rss", PollInterval: 10 * time.Minute, MaxItems: 200}
	id1, err := s.UpsertSource(src)
	require.NoError(t, err)
	require.NotZero(t, id1)

	src.DisplayName = "HN Renamed"
	id2, err := s.UpsertSource(src)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	got, err := s.GetSourceByName("hn")
	require.NoError(t, err)
	require.Equal(t, "HN Renamed", got.DisplayName)
}

func TestDeleteSourceCascadesChannelMembership(t *testing.T) {
	s := openTestStore(t)

	srcID, err := s.UpsertSource(&Source{Name: "hn", Kind: "syndication", DisplayName: "Hacker News", Enabled: true, URL: "https://example.com/rss", PollInterval: time.Minute})
	require.NoError(t, err)

	chID, err := s.UpsertChannel(&OutputChannel{Name: "Digest", URLSlug: "digest", Enabled: true, Schedule: "at:07:00", Prompt: "p"}, []int64{srcID})
	require.NoError(t, err)

	ch, err := s.GetChannelBySlug("digest")
	require.NoError(t, err)
	require.Equal(t, []int64{srcID}, ch.SourceIDs)

	require.NoError(t, s.DeleteSource("hn"))

	ch, err = s.GetChannelBySlug("digest")
	require.NoError(t, err)
	require.Empty(t, ch.SourceIDs)
	require.Equal(t, chID, ch.ID)
}

func TestItemDedupRoundTrip(t *testing.T) {
	s := openTestStore(t)
	srcID, err := s.UpsertSource(&Source{Name: "hn", Kind: "syndication", DisplayName: "Hacker News", Enabled: true, URL: "u", PollInterval: time.Minute})
	require.NoError(t, err)

	now := time.Now().UTC()
	_, err = s.GetItemByDedupKey(srcID, "abc123")
	require.ErrorIs(t, err, ErrNotFound)

	itemID, err := s.InsertItem(&ContentItem{SourceID: srcID, DedupKey: "abc123", Title: "t", Body: "b", IngestedAt: now})
	require.NoError(t, err)
	require.NotZero(t, itemID)

	got, err := s.GetItemByDedupKey(srcID, "abc123")
	require.NoError(t, err)
	require.False(t, got.UpstreamChanged)

	require.NoError(t, s.MarkUpstreamChanged(got.ID, "t2", "b2"))
	got, err = s.GetItemByDedupKey(srcID, "abc123")
	require.NoError(t, err)
	require.True(t, got.UpstreamChanged)
	require.Equal(t, "t2", got.Title)
}

func TestDeleteOlderThan(t *testing.T) {
	s := openTestStore(t)
	srcID, err := s.UpsertSource(&Source{Name: "hn", Kind: "syndication", DisplayName: "Hacker News", Enabled: true, URL: "u", PollInterval: time.Minute})
	require.NoError(t, err)

	old := time.Now().UTC().Add(-30 * 24 * time.Hour)
	recent := time.Now().UTC()
	_, err = s.InsertItem(&ContentItem{SourceID: srcID, DedupKey: "old", IngestedAt: old})
	require.NoError(t, err)
	_, err = s.InsertItem(&ContentItem{SourceID: srcID, DedupKey: "new", IngestedAt: recent})
	require.NoError(t, err)

	n, err := s.DeleteOlderThan(time.Now().UTC().Add(-7 * 24 * time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = s.GetItemByDedupKey(srcID, "old")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetItemByDedupKey(srcID, "new")
	require.NoError(t, err)
}

func TestSettingsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetSetting("feed_token")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetSetting("feed_token", "abc"))
	v, err := s.GetSetting("feed_token")
	require.NoError(t, err)
	require.Equal(t, "abc", v)

	require.NoError(t, s.SetSetting("feed_token", "def"))
	v, err = s.GetSetting("feed_token")
	require.NoError(t, err)
	require.Equal(t, "def", v)
}
