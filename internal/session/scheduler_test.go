package session

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestPollSchedulerFiresOnCadence(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sched := newPollScheduler(clock, 3*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := make(chan struct{}, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.run(ctx, func() { ticks <- struct{}{} })
	}()

	for i := 0; i < 3; i++ {
		if err := clock.BlockUntilContext(ctx, 1); err != nil {
			t.Fatalf("ticker never armed: %v", err)
		}
		clock.Advance(3 * time.Second)
		select {
		case <-ticks:
		case <-time.After(2 * time.Second):
			t.Fatalf("tick %d never fired", i+1)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}

func TestPollSchedulerDefaultsInterval(t *testing.T) {
	sched := newPollScheduler(clockwork.NewFakeClock(), 0)
	if sched.interval != 3*time.Second {
		t.Fatalf("interval = %v, want 3s", sched.interval)
	}
}
