package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wasnt-me/internal/api"
)

// gate is a fetch stub whose completions the test releases one at a time.
type gate struct {
	started chan struct{}
	release chan fetchResult
	calls   atomic.Int64
}

type fetchResult struct {
	snap api.Snapshot
	err  error
}

func newGate() *gate {
	return &gate{started: make(chan struct{}, 16), release: make(chan fetchResult, 16)}
}

func (g *gate) fetch(ctx context.Context) (api.Snapshot, error) {
	g.calls.Add(1)
	g.started <- struct{}{}
	select {
	case res := <-g.release:
		return res.snap, res.err
	case <-ctx.Done():
		return api.Snapshot{}, ctx.Err()
	}
}

func waitStart(t *testing.T, g *gate) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(2 * time.Second):
		t.Fatal("no fetch started")
	}
}

func TestReconcilerCoalescesTriggers(t *testing.T) {
	g := newGate()
	var applied []int
	var mu sync.Mutex
	rec := newReconciler(g.fetch, func(snap api.Snapshot) {
		mu.Lock()
		applied = append(applied, snap.CurrentRound)
		mu.Unlock()
	}, func() { t.Error("unexpected gone") }, func(err error) { t.Errorf("unexpected error %v", err) })

	ctx := context.Background()
	rec.Reconcile(ctx, TriggerPoll)
	waitStart(t, g)

	// Three triggers while a fetch is in flight collapse into one follow-up.
	rec.Reconcile(ctx, TriggerNotify)
	rec.Reconcile(ctx, TriggerNotify)
	rec.Reconcile(ctx, TriggerPostAction)

	g.release <- fetchResult{snap: api.Snapshot{CurrentRound: 1}}
	waitStart(t, g)
	g.release <- fetchResult{snap: api.Snapshot{CurrentRound: 2}}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(applied)
		mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("applied %d snapshots, want 2", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
	if got := g.calls.Load(); got != 2 {
		t.Fatalf("fetch calls = %d, want 2", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if applied[0] != 1 || applied[1] != 2 {
		t.Fatalf("applied order = %v", applied)
	}
}

func TestReconcilerDiscardsStaleSnapshots(t *testing.T) {
	var applied []int
	rec := newReconciler(nil, func(snap api.Snapshot) {
		applied = append(applied, snap.CurrentRound)
	}, nil, nil)

	// Two reads were issued; the younger one completes first. The older
	// response must not move the rendered state backwards.
	if !rec.apply(2, api.Snapshot{CurrentRound: 4}) {
		t.Fatal("newest snapshot rejected")
	}
	if rec.apply(1, api.Snapshot{CurrentRound: 3}) {
		t.Fatal("stale snapshot applied")
	}
	if rec.apply(2, api.Snapshot{CurrentRound: 4}) {
		t.Fatal("duplicate sequence applied")
	}
	if len(applied) != 1 || applied[0] != 4 {
		t.Fatalf("applied = %v", applied)
	}
}

func TestReconcilerNotFoundIsTerminal(t *testing.T) {
	g := newGate()
	gone := make(chan struct{}, 4)
	rec := newReconciler(g.fetch, func(api.Snapshot) {
		t.Error("snapshot applied after not found")
	}, func() { gone <- struct{}{} }, func(err error) { t.Errorf("unexpected error %v", err) })

	ctx := context.Background()
	rec.Reconcile(ctx, TriggerPoll)
	waitStart(t, g)
	rec.Reconcile(ctx, TriggerNotify) // pending must be dropped, not retried
	g.release <- fetchResult{err: api.ErrGameNotFound}

	select {
	case <-gone:
	case <-time.After(2 * time.Second):
		t.Fatal("gone never reported")
	}

	// Further triggers are ignored.
	rec.Reconcile(ctx, TriggerPoll)
	select {
	case <-g.started:
		t.Fatal("fetch started after terminal stop")
	case <-time.After(50 * time.Millisecond):
	}
	if got := g.calls.Load(); got != 1 {
		t.Fatalf("fetch calls = %d, want 1", got)
	}
	if len(gone) != 0 {
		t.Fatal("gone reported more than once")
	}
}

func TestReconcilerTransientErrorKeepsChannelsAlive(t *testing.T) {
	g := newGate()
	errs := make(chan error, 4)
	snaps := make(chan api.Snapshot, 4)
	rec := newReconciler(g.fetch, func(snap api.Snapshot) { snaps <- snap },
		func() { t.Error("unexpected gone") }, func(err error) { errs <- err })

	ctx := context.Background()
	rec.Reconcile(ctx, TriggerPoll)
	waitStart(t, g)
	g.release <- fetchResult{err: api.Transient(errors.New("connection reset"))}

	select {
	case err := <-errs:
		if !api.IsTransient(err) {
			t.Fatalf("surfaced error %v, want transient", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error never surfaced")
	}

	// The next trigger retries normally.
	rec.Reconcile(ctx, TriggerPoll)
	waitStart(t, g)
	g.release <- fetchResult{snap: api.Snapshot{CurrentRound: 9}}
	select {
	case snap := <-snaps:
		if snap.CurrentRound != 9 {
			t.Fatalf("CurrentRound = %d", snap.CurrentRound)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot never applied after transient error")
	}
}
