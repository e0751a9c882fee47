package session

import (
	"math"
	"time"

	"wasnt-me/internal/api"
	"wasnt-me/internal/config"
)

// deadlineProjector turns a snapshot into one absolute local-clock instant:
// when the current stage ends. In fallback mode the projection is keyed on
// (round, stage): re-reading the same stage on a later poll keeps the
// original deadline, so the countdown never jumps back up. The display
// ticker only re-reads the remaining seconds.
type deadlineProjector struct {
	fallback api.Durations

	haveKey  bool
	keyRound int
	keyStage api.Stage
	deadline time.Time
	hasDL    bool
}

func newDeadlineProjector(cfg config.ClientConfig) *deadlineProjector {
	return &deadlineProjector{
		fallback: api.Durations{
			RoundIntro: cfg.RoundIntroSec,
			Guessing:   cfg.GuessingSec,
			Scoreboard: cfg.ScoreboardSec,
		},
	}
}

// project returns the stage-end instant, preferring the authoritative
// deadline carried on the snapshot, then the duration table (snapshot's, then
// configured fallback). No deadline and no duration means no countdown.
func (p *deadlineProjector) project(snap api.Snapshot, receivedAt time.Time) (time.Time, bool) {
	if snap.Status != api.StatusInProgress {
		p.haveKey = false
		return time.Time{}, false
	}
	if snap.StageDeadline > 0 {
		sec, frac := math.Modf(snap.StageDeadline)
		return p.remember(snap, time.Unix(int64(sec), int64(frac*float64(time.Second))), true)
	}
	if p.haveKey && p.keyRound == snap.CurrentRound && p.keyStage == snap.Stage {
		return p.deadline, p.hasDL
	}
	if d := p.stageDuration(snap); d > 0 {
		return p.remember(snap, receivedAt.Add(d), true)
	}
	return p.remember(snap, time.Time{}, false)
}

func (p *deadlineProjector) remember(snap api.Snapshot, deadline time.Time, ok bool) (time.Time, bool) {
	p.haveKey = true
	p.keyRound = snap.CurrentRound
	p.keyStage = snap.Stage
	p.deadline = deadline
	p.hasDL = ok
	return deadline, ok
}

func (p *deadlineProjector) stageDuration(snap api.Snapshot) time.Duration {
	table := p.fallback
	if d := snap.Durations; d != nil {
		if d.RoundIntro > 0 {
			table.RoundIntro = d.RoundIntro
		}
		if d.Guessing > 0 {
			table.Guessing = d.Guessing
		}
		if d.Scoreboard > 0 {
			table.Scoreboard = d.Scoreboard
		}
	}
	var sec int
	switch snap.Stage {
	case api.StageRoundIntro:
		sec = table.RoundIntro
	case api.StageGuessing:
		sec = table.Guessing
	case api.StageScoreboard:
		sec = table.Scoreboard
	}
	return time.Duration(sec) * time.Second
}

// remainingSeconds is the advisory countdown value: whole seconds left,
// clamped at zero. The countdown reaching zero never advances anything
// locally; the server does, observed through the next snapshot.
func remainingSeconds(deadline, now time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}
