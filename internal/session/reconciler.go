package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"wasnt-me/internal/api"
)

// Trigger names why a reconcile was requested. Every trigger causes the same
// thing: one full snapshot read and a wholesale replacement of local state.
type Trigger string

const (
	TriggerNotify     Trigger = "notify"
	TriggerPoll       Trigger = "poll"
	TriggerPostAction Trigger = "post_action"
)

type fetchFunc func(ctx context.Context) (api.Snapshot, error)

// reconciler is the single convergence point for both update channels.
// Invariants:
//   - at most one fetch in flight per session; triggers arriving meanwhile
//     are coalesced into one follow-up fetch (the in-flight read may have
//     been issued before the mutation the trigger announces)
//   - snapshots apply in fetch-issue order; a response whose sequence number
//     is not the highest applied so far is discarded, so the rendered state
//     never moves backwards
//   - a not-found result is terminal: the reconciler stops and reports gone
//     exactly once
type reconciler struct {
	fetch      fetchFunc
	onSnapshot func(api.Snapshot)
	onGone     func()
	onError    func(error)

	mu         sync.Mutex
	inFlight   bool
	pending    bool
	nextSeq    uint64
	appliedSeq uint64
	stopped    bool
}

func newReconciler(fetch fetchFunc, onSnapshot func(api.Snapshot), onGone func(), onError func(error)) *reconciler {
	return &reconciler{fetch: fetch, onSnapshot: onSnapshot, onGone: onGone, onError: onError}
}

// Reconcile requests a fresh read. Non-blocking: the fetch runs on its own
// goroutine. Safe to call from any goroutine, any number of times.
func (r *reconciler) Reconcile(ctx context.Context, trigger Trigger) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	if r.inFlight {
		// Coalesce: the running fetch finishes first, then refetches once.
		r.pending = true
		r.mu.Unlock()
		log.Debug().Str("trigger", string(trigger)).Msg("reconcile coalesced")
		return
	}
	r.inFlight = true
	r.mu.Unlock()

	go r.run(ctx, trigger)
}

func (r *reconciler) run(ctx context.Context, trigger Trigger) {
	for {
		r.mu.Lock()
		r.nextSeq++
		seq := r.nextSeq
		r.mu.Unlock()

		snap, err := r.fetch(ctx)

		switch {
		case err == nil:
			if r.apply(seq, snap) {
				log.Debug().Str("trigger", string(trigger)).Uint64("seq", seq).Msg("snapshot applied")
			}
		case api.IsNotFound(err):
			r.mu.Lock()
			alreadyStopped := r.stopped
			r.stopped = true
			r.pending = false
			r.inFlight = false
			r.mu.Unlock()
			if !alreadyStopped {
				r.onGone()
			}
			return
		case ctx.Err() != nil:
			r.mu.Lock()
			r.inFlight = false
			r.pending = false
			r.mu.Unlock()
			return
		default:
			// Transient: surface it, keep the channels alive, let the next
			// scheduled trigger retry.
			r.onError(err)
		}

		r.mu.Lock()
		if r.pending && !r.stopped {
			r.pending = false
			r.mu.Unlock()
			continue
		}
		r.inFlight = false
		r.mu.Unlock()
		return
	}
}

// apply installs a snapshot unless a logically newer fetch already completed.
func (r *reconciler) apply(seq uint64, snap api.Snapshot) bool {
	r.mu.Lock()
	if r.stopped || seq <= r.appliedSeq {
		r.mu.Unlock()
		return false
	}
	r.appliedSeq = seq
	r.mu.Unlock()

	r.onSnapshot(snap)
	return true
}

// stop prevents any further fetches or applies. Used on teardown.
func (r *reconciler) stop() {
	r.mu.Lock()
	r.stopped = true
	r.pending = false
	r.mu.Unlock()
}
