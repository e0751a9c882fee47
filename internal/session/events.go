package session

import (
	"github.com/rs/zerolog/log"

	"wasnt-me/internal/viewmodel"
)

type EventKind string

const (
	// EventView: a new snapshot was applied; View is the freshly derived
	// stage variant.
	EventView EventKind = "view"
	// EventCountdown: the advisory remaining-seconds display changed.
	EventCountdown EventKind = "countdown"
	// EventConnectivity: push-channel health changed. Indicator only; never
	// gates correctness.
	EventConnectivity EventKind = "connectivity"
	// EventError: a transient or validation failure worth showing. The
	// session keeps running.
	EventError EventKind = "error"
	// EventGone: the session no longer exists (or ended). Terminal; the
	// consumer should navigate away. Emitted exactly once.
	EventGone EventKind = "gone"
)

type Event struct {
	Kind      EventKind
	View      viewmodel.View
	Remaining int
	Connected bool
	Err       error
}

// emit never blocks the sync loops on a slow consumer; a dropped event is
// recovered by the next snapshot or tick.
func (r *Room) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		log.Warn().Str("kind", string(ev.Kind)).Str("game_code", r.code).Msg("event buffer full, dropping")
	}
}
