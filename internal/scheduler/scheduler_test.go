package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/pail/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/pail.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTriggerSkipsWhileInFlight(t *testing.T) {
	st := openTestStore(t)
	srcID, err := st.UpsertSource(&store.Source{Name: "s", Kind: "syndication", DisplayName: "S", Enabled: true, URL: "u", PollInterval: time.Minute})
	require.NoError(t, err)
	_, err = st.UpsertChannel(&store.OutputChannel{Name: "c", URLSlug: "c", Enabled: true, Schedule: "at:00:00", Prompt: "p"}, []int64{srcID})
	require.NoError(t, err)
	ch, err := st.GetChannelBySlug("c")
	require.NoError(t, err)

	var running int32
	var maxConcurrent int32
	release := make(chan struct{})
	var wg sync.WaitGroup

	s := New(st, time.UTC, 2, func(ctx context.Context, ch *store.OutputChannel, from, to time.Time) error {
		n := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&maxConcurrent)
			if n <= old || atomic.CompareAndSwapInt32(&maxConcurrent, old, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&running, -1)
		return nil
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.trigger(context.Background(), ch, time.Now().UTC())
	}()
	time.Sleep(50 * time.Millisecond)

	// Second trigger for the same channel while the first is in flight
	// must be a no-op (inFlight guard), not a second concurrent run.
	s.trigger(context.Background(), ch, time.Now().UTC())
	require.EqualValues(t, 1, atomic.LoadInt32(&running))

	close(release)
	wg.Wait()
	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 0, atomic.LoadInt32(&running))
}

func TestTriggerUsesSevenDayLookbackOnFirstRun(t *testing.T) {
	st := openTestStore(t)
	srcID, err := st.UpsertSource(&store.Source{Name: "s", Kind: "syndication", DisplayName: "S", Enabled: true, URL: "u", PollInterval: time.Minute})
	require.NoError(t, err)
	_, err = st.UpsertChannel(&store.OutputChannel{Name: "c", URLSlug: "c", Enabled: true, Schedule: "at:00:00", Prompt: "p"}, []int64{srcID})
	require.NoError(t, err)
	ch, err := st.GetChannelBySlug("c")
	require.NoError(t, err)
	require.Nil(t, ch.LastGenerated)

	var gotFrom, gotTo time.Time
	done := make(chan struct{})
	now := time.Now().UTC()

	s := New(st, time.UTC, 1, func(ctx context.Context, ch *store.OutputChannel, from, to time.Time) error {
		gotFrom, gotTo = from, to
		close(done)
		return nil
	})
	s.trigger(context.Background(), ch, now)
	<-done

	require.WithinDuration(t, now.Add(-7*24*time.Hour), gotFrom, time.Second)
	require.WithinDuration(t, now, gotTo, time.Second)
}

func TestTriggerAdvancesLastGeneratedToExactTickInstantNotWallClock(t *testing.T) {
	st := openTestStore(t)
	srcID, err := st.UpsertSource(&store.Source{Name: "s", Kind: "syndication", DisplayName: "S", Enabled: true, URL: "u", PollInterval: time.Minute})
	require.NoError(t, err)
	_, err = st.UpsertChannel(&store.OutputChannel{Name: "c", URLSlug: "c", Enabled: true, Schedule: "at:06:00", Prompt: "p"}, []int64{srcID})
	require.NoError(t, err)
	ch, err := st.GetChannelBySlug("c")
	require.NoError(t, err)

	due := time.Date(2026, 2, 11, 6, 0, 0, 0, time.UTC)
	done := make(chan struct{})

	s := New(st, time.UTC, 1, func(ctx context.Context, ch *store.OutputChannel, from, to time.Time) error {
		require.True(t, to.Equal(due), "window `to` must equal the tick instant, not wall-clock now")
		close(done)
		return nil
	})
	// Simulate the scheduler's poll loop observing the tick a few hundred
	// milliseconds after it was actually due.
	s.trigger(context.Background(), ch, due)
	<-done

	ch, err = st.GetChannelBySlug("c")
	require.NoError(t, err)
	require.NotNil(t, ch.LastGenerated)
	require.True(t, ch.LastGenerated.Equal(due), "last_generated must equal the tick instant exactly")
}
