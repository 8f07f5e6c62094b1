// Package retention periodically deletes content items older than the
// configured TTL, keeping the store from growing unbounded.
package retention

import (
	"context"
	"time"

	. "github.com/roelfdiedericks/pail/internal/logging"
	"github.com/roelfdiedericks/pail/internal/store"
)

// Sweeper deletes expired content items on a fixed interval.
type Sweeper struct {
	st       *store.Store
	ttl      time.Duration
	interval time.Duration
}

// New builds a Sweeper. ttl is how long a content item survives after
// ingestion; interval is how often the sweep runs.
func New(st *store.Store, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{st: st, ttl: ttl, interval: interval}
}

// Run sweeps once immediately, then on each tick, until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	cutoff := time.Now().UTC().Add(-s.ttl)
	n, err := s.st.DeleteOlderThan(cutoff)
	if err != nil {
		L_error("retention: sweep failed", "error", err)
		return
	}
	if n > 0 {
		L_info("retention: swept expired content items", "count", n, "cutoff", cutoff)
	}
}
