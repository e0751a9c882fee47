package session

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// pollScheduler fires a fallback reconcile on a fixed cadence, regardless of
// notification-channel health. Convergence must never depend on the push
// channel delivering anything.
type pollScheduler struct {
	clock    clockwork.Clock
	interval time.Duration
}

func newPollScheduler(clock clockwork.Clock, interval time.Duration) *pollScheduler {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &pollScheduler{clock: clock, interval: interval}
}

// run blocks until ctx is cancelled. A cancelled scheduler is never
// restarted; a new session mount creates a new one.
func (s *pollScheduler) run(ctx context.Context, tick func()) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			tick()
		}
	}
}
