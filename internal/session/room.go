package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"wasnt-me/internal/api"
	"wasnt-me/internal/config"
	"wasnt-me/internal/viewmodel"
)

// ErrActionInFlight rejects a duplicate submission while a previous mutating
// call is still running (the double-click guard). The server must not be
// assumed to deduplicate; this is purely a client-side courtesy.
var ErrActionInFlight = errors.New("action_in_flight")

// Room is one mounted session view. It owns every moving part for its
// session (reconciler, poll scheduler, notification listener, display
// ticker) and tears all of them down on Close. Nothing is shared across
// rooms.
type Room struct {
	cfg      config.ClientConfig
	code     string
	isOwner  bool
	client   *api.Client
	identity *Identity
	clock    clockwork.Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	rec      *reconciler
	listener *listener
	proj     *deadlineProjector

	mu            sync.Mutex
	playerID      int
	snap          *api.Snapshot
	deadline      time.Time
	hasDeadline   bool
	lastRemaining int
	actionBusy    bool

	goneOnce sync.Once
	events   chan Event
}

// RoomOptions carries the collaborators a Room needs. Clock defaults to the
// real clock; tests inject a fake one.
type RoomOptions struct {
	Config   config.ClientConfig
	Client   *api.Client
	Identity *Identity
	Clock    clockwork.Clock
	// IsOwner marks the unattended display client: it joins the notification
	// room without being a participant.
	IsOwner bool
}

// OpenRoom mounts a session view: performs the initial fetch and starts the
// poll scheduler, the notification listener, and the countdown ticker.
func OpenRoom(code string, opts RoomOptions) *Room {
	code = api.NormalizeCode(code)
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		cfg:      opts.Config,
		code:     code,
		isOwner:  opts.IsOwner,
		client:   opts.Client,
		identity: opts.Identity,
		clock:    clock,
		ctx:      ctx,
		cancel:   cancel,
		proj:     newDeadlineProjector(opts.Config),
		events:   make(chan Event, 64),
	}

	if id, ok := opts.Identity.Lookup(code); ok {
		r.playerID = id
	}

	r.rec = newReconciler(r.fetchState, r.applySnapshot, r.handleGone, r.handleFetchError)
	r.listener = newListener(opts.Config.WSURL, code, opts.IsOwner, clock, listenerHooks{
		onStateUpdate: func() { r.rec.Reconcile(r.ctx, TriggerNotify) },
		onGameEnded:   r.handleEnded,
		onConnChange:  func(up bool) { r.emit(Event{Kind: EventConnectivity, Connected: up}) },
	})

	scheduler := newPollScheduler(clock, opts.Config.PollInterval)
	r.wg.Add(3)
	go func() {
		defer r.wg.Done()
		scheduler.run(r.ctx, func() { r.rec.Reconcile(r.ctx, TriggerPoll) })
	}()
	go func() {
		defer r.wg.Done()
		r.listener.run(r.ctx)
	}()
	go func() {
		defer r.wg.Done()
		r.tickLoop()
	}()

	r.rec.Reconcile(r.ctx, TriggerPostAction)
	log.Info().Str("game_code", code).Bool("owner", opts.IsOwner).Msg("session view mounted")
	return r
}

// Events is the room's output: view changes, countdown ticks, connectivity,
// errors, and the terminal gone signal.
func (r *Room) Events() <-chan Event {
	return r.events
}

// GameCode returns the normalized session code this room is bound to.
func (r *Room) GameCode() string {
	return r.code
}

// PlayerID returns the bound local participant id, zero before a join.
func (r *Room) PlayerID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playerID
}

// Close unmounts the view. All four teardown duties happen here: departure
// announced on the channel, subscription closed, poll timer cancelled,
// display ticker cancelled.
func (r *Room) Close() {
	r.rec.stop()
	r.listener.close()
	r.cancel()
	r.wg.Wait()
	log.Info().Str("game_code", r.code).Msg("session view unmounted")
}

func (r *Room) fetchState(ctx context.Context) (api.Snapshot, error) {
	return r.client.GameState(ctx, r.code)
}

// applySnapshot is the wholesale state replacement. The stage deadline is
// projected here, once per snapshot; the ticker never re-derives it.
func (r *Room) applySnapshot(snap api.Snapshot) {
	now := r.clock.Now()

	r.mu.Lock()
	r.snap = &snap
	r.deadline, r.hasDeadline = r.proj.project(snap, now)
	if r.hasDeadline {
		r.lastRemaining = remainingSeconds(r.deadline, now)
	} else {
		r.lastRemaining = -1
	}
	localID := r.playerID
	remaining := r.lastRemaining
	r.mu.Unlock()

	view := viewmodel.Select(snap, localID)
	r.emit(Event{Kind: EventView, View: view, Remaining: remaining})
}

func (r *Room) tickLoop() {
	interval := r.cfg.TickInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.Chan():
			r.mu.Lock()
			if !r.hasDeadline {
				r.mu.Unlock()
				continue
			}
			remaining := remainingSeconds(r.deadline, r.clock.Now())
			changed := remaining != r.lastRemaining
			r.lastRemaining = remaining
			r.mu.Unlock()

			if changed {
				r.emit(Event{Kind: EventCountdown, Remaining: remaining})
			}
		}
	}
}

func (r *Room) handleFetchError(err error) {
	log.Warn().Err(err).Str("game_code", r.code).Msg("state fetch failed")
	r.emit(Event{Kind: EventError, Err: err})
}

// handleGone runs when a fetch reports the session no longer exists. The
// binding is cleared immediately; navigation away waits one grace period so
// a trailing message stays visible. Exactly once per room.
func (r *Room) handleGone() {
	r.goneOnce.Do(func() {
		log.Info().Str("game_code", r.code).Msg("session gone")
		if err := r.identity.Clear(r.code); err != nil {
			log.Warn().Err(err).Msg("clear identity binding failed")
		}
		r.emit(Event{Kind: EventError, Err: api.ErrGameNotFound})
		r.rec.stop()

		// Not tracked by the teardown wait group: it parks on the room
		// context and can outlive a concurrent Close harmlessly.
		go func() {
			select {
			case <-r.clock.After(r.cfg.GracePeriod):
			case <-r.ctx.Done():
			}
			r.emit(Event{Kind: EventGone})
		}()
	})
}

// handleEnded reacts to the push channel's end-of-session signal,
// independent of any fetch outcome.
func (r *Room) handleEnded() {
	r.goneOnce.Do(func() {
		log.Info().Str("game_code", r.code).Msg("session ended")
		if err := r.identity.Clear(r.code); err != nil {
			log.Warn().Err(err).Msg("clear identity binding failed")
		}
		r.rec.stop()
		r.emit(Event{Kind: EventGone})
	})
}

// --- Action dispatcher -----------------------------------------------------
//
// Every mutating call names the acting participant explicitly and, on
// success, refetches immediately instead of waiting for the next poll tick.
// Failures are classified and surfaced; state stays untouched until the next
// reconciliation.

// Join binds this client to a participant identity and persists it so a
// reload lands back in the same seat.
func (r *Room) Join(ctx context.Context, name string) (api.Player, error) {
	if err := r.beginAction(); err != nil {
		return api.Player{}, err
	}
	defer r.endAction()

	p, err := r.client.JoinGame(ctx, r.code, name)
	if err != nil {
		return api.Player{}, r.actionFailed("join", err)
	}

	r.mu.Lock()
	r.playerID = p.ID
	r.mu.Unlock()
	if err := r.identity.Bind(r.code, p.ID); err != nil {
		log.Warn().Err(err).Str("game_code", r.code).Msg("persist identity binding failed")
	}

	r.rec.Reconcile(r.ctx, TriggerPostAction)
	return p, nil
}

func (r *Room) SubmitStory(ctx context.Context, story string) error {
	return r.dispatch(ctx, "submit_story", func(id int) error {
		return r.client.SubmitStory(ctx, r.code, id, story)
	})
}

// Start is only meaningful for the controller in a lobby; the server
// enforces that against the explicit id.
func (r *Room) Start(ctx context.Context) error {
	return r.dispatch(ctx, "start", func(id int) error {
		return r.client.StartGame(ctx, r.code, id)
	})
}

func (r *Room) Advance(ctx context.Context) error {
	return r.dispatch(ctx, "advance", func(id int) error {
		return r.client.AdvanceStage(ctx, r.code, id)
	})
}

func (r *Room) SubmitGuess(ctx context.Context, guessedID int) error {
	return r.dispatch(ctx, "submit_guess", func(id int) error {
		return r.client.SubmitGuess(ctx, r.code, id, guessedID)
	})
}

func (r *Room) VoteReplay(ctx context.Context) error {
	return r.dispatch(ctx, "vote_replay", func(id int) error {
		return r.client.VoteReplay(ctx, r.code, id)
	})
}

// Leave removes the local participant and forgets the binding. The caller
// still Closes the room afterwards.
func (r *Room) Leave(ctx context.Context) error {
	if err := r.beginAction(); err != nil {
		return err
	}
	defer r.endAction()

	r.mu.Lock()
	id := r.playerID
	r.mu.Unlock()

	if err := r.client.LeaveGame(ctx, r.code, id); err != nil {
		return r.actionFailed("leave", err)
	}
	if err := r.identity.Clear(r.code); err != nil {
		log.Warn().Err(err).Str("game_code", r.code).Msg("clear identity binding failed")
	}
	return nil
}

func (r *Room) dispatch(ctx context.Context, name string, call func(playerID int) error) error {
	if err := r.beginAction(); err != nil {
		return err
	}
	defer r.endAction()

	r.mu.Lock()
	id := r.playerID
	r.mu.Unlock()

	if err := call(id); err != nil {
		return r.actionFailed(name, err)
	}
	r.rec.Reconcile(r.ctx, TriggerPostAction)
	return nil
}

func (r *Room) actionFailed(name string, err error) error {
	if api.IsNotFound(err) {
		r.handleGone()
		return err
	}
	log.Warn().Err(err).Str("action", name).Str("game_code", r.code).Msg("action rejected")
	r.emit(Event{Kind: EventError, Err: err})
	return err
}

func (r *Room) beginAction() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.actionBusy {
		return ErrActionInFlight
	}
	r.actionBusy = true
	return nil
}

func (r *Room) endAction() {
	r.mu.Lock()
	r.actionBusy = false
	r.mu.Unlock()
}
