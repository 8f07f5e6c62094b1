// Package scheduler ticks output channels on their configured schedule
// and hands due channels to a generation callback, bounding how many
// generations run concurrently and guaranteeing at most one in-flight
// run per channel at a time.
package scheduler

import (
	"context"
	"sync"
	"time"

	. "github.com/roelfdiedericks/pail/internal/logging"
	"github.com/roelfdiedericks/pail/internal/schedule"
	"github.com/roelfdiedericks/pail/internal/store"
)

// RunFunc performs one scheduled generation run for ch. The window
// [from, to) has already been computed by the scheduler from the
// channel's last_generated cursor (or a 7-day lookback on first run).
// A nil error means the run should advance last_generated; any error
// leaves the cursor untouched so the next tick's window starts from the
// same last_generated and runs to that next tick instant.
type RunFunc func(ctx context.Context, ch *store.OutputChannel, from, to time.Time) error

// Scheduler owns the per-channel tick loop and the concurrency gate.
type Scheduler struct {
	st  *store.Store
	run RunFunc
	tz  *time.Location

	gate chan struct{} // counting semaphore bounding total concurrent runs

	mu       sync.Mutex
	inFlight map[int64]bool // channel id -> run in progress
}

// New builds a Scheduler. maxConcurrent bounds the number of generation
// runs active across all channels at once.
func New(st *store.Store, tz *time.Location, maxConcurrent int, run RunFunc) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{
		st:       st,
		run:      run,
		tz:       tz,
		gate:     make(chan struct{}, maxConcurrent),
		inFlight: make(map[int64]bool),
	}
}

// Run watches every enabled channel's schedule until ctx is cancelled.
// Channels are re-read from the store each cycle so config reconciliation
// picks up new/removed/changed channels without restarting the scheduler.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	nextTick := make(map[int64]time.Time)

	for {
		channels, err := s.st.ListChannels()
		if err != nil {
			L_error("scheduler: list channels failed", "error", err)
		} else {
			now := time.Now().UTC()
			for _, ch := range channels {
				if !ch.Enabled {
					delete(nextTick, ch.ID)
					continue
				}
				due, ok := nextTick[ch.ID]
				if !ok {
					sched, err := schedule.Parse(ch.Schedule, s.tz)
					if err != nil {
						L_error("scheduler: invalid schedule, skipping channel", "channel", ch.URLSlug, "error", err)
						continue
					}
					next, err := sched.NextTick(now.Add(-time.Second))
					if err != nil {
						L_error("scheduler: compute next tick failed", "channel", ch.URLSlug, "error", err)
						continue
					}
					nextTick[ch.ID] = next
					continue
				}
				if now.After(due) || now.Equal(due) {
					s.trigger(ctx, ch, due)
					sched, err := schedule.Parse(ch.Schedule, s.tz)
					if err == nil {
						if next, err := sched.NextTick(due); err == nil {
							nextTick[ch.ID] = next
						}
					}
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// trigger fires one scheduled generation for ch. due is the tick instant
// computed by NextTick, not the wall-clock instant the scheduler woke up
// at: the window's `to` bound and the resulting last_generated value
// must both equal due exactly, so a tick due at 06:00:00Z is recorded as
// 06:00:00Z even if the scheduler's poll loop observed it a few hundred
// milliseconds later.
func (s *Scheduler) trigger(ctx context.Context, ch *store.OutputChannel, due time.Time) {
	s.mu.Lock()
	if s.inFlight[ch.ID] {
		s.mu.Unlock()
		L_warn("scheduler: skipping tick, previous run still in flight", "channel", ch.URLSlug)
		return
	}
	s.inFlight[ch.ID] = true
	s.mu.Unlock()

	from := due.Add(-7 * 24 * time.Hour)
	if ch.LastGenerated != nil {
		from = *ch.LastGenerated
	}

	select {
	case s.gate <- struct{}{}:
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.inFlight, ch.ID)
		s.mu.Unlock()
		return
	}

	go func() {
		defer func() {
			<-s.gate
			s.mu.Lock()
			delete(s.inFlight, ch.ID)
			s.mu.Unlock()
		}()

		L_info("scheduler: running scheduled generation", "channel", ch.URLSlug, "from", from, "to", due)
		if err := s.run(ctx, ch, from, due); err != nil {
			L_error("scheduler: generation failed", "channel", ch.URLSlug, "error", err)
			return
		}
		if err := s.st.MarkGenerated(ch.ID, due); err != nil {
			L_error("scheduler: failed to advance last_generated", "channel", ch.URLSlug, "error", err)
		}
	}()
}
