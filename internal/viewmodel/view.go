package viewmodel

import (
	"sort"

	"wasnt-me/internal/api"
)

// Select maps a snapshot plus the local participant id to exactly one view
// variant. It is a pure function: every client holding the same snapshot
// derives the same variant, the same ordering, and the same winner set.
//
// localID 0 means "no local participant" (not yet joined, or the unattended
// display client).

type Kind string

const (
	KindJoin       Kind = "join"
	KindLobby      Kind = "lobby"
	KindRoundIntro Kind = "round_intro"
	KindWatch      Kind = "watch"
	KindGuessing   Kind = "guessing"
	KindGuessWait  Kind = "guess_wait"
	KindScoreboard Kind = "scoreboard"
	KindFinal      Kind = "final"
)

type View interface {
	ViewKind() Kind
}

// JoinView: lobby session, local client has no participant yet.
type JoinView struct {
	GameCode string
	Players  []api.Player
}

func (JoinView) ViewKind() Kind { return KindJoin }

// LobbyView: ready-up screen for a joined participant.
type LobbyView struct {
	You          api.Player
	Players      []api.Player
	ControllerID int
	IsController bool
	CanStart     bool
}

func (LobbyView) ViewKind() Kind { return KindLobby }

type RoundIntroView struct {
	Round        int
	TotalRounds  int
	ControllerID int
	IsController bool
}

func (RoundIntroView) ViewKind() Kind { return KindRoundIntro }

// WatchView: guessing stage seen by someone who cannot guess: the story's
// author, or a non-participant display.
type WatchView struct {
	Story      api.Story
	IsAuthor   bool
	GuessCount int
	GuessTotal int
}

func (WatchView) ViewKind() Kind { return KindWatch }

// GuessingView: guessing stage for a participant who still has to guess.
// Targets enumerates every other participant, in snapshot order.
type GuessingView struct {
	Story      api.Story
	Targets    []api.Player
	GuessCount int
	GuessTotal int
}

func (GuessingView) ViewKind() Kind { return KindGuessing }

type GuessWaitView struct {
	GuessCount int
	GuessTotal int
}

func (GuessWaitView) ViewKind() Kind { return KindGuessWait }

type ScoreboardView struct {
	Ranked       []api.Player
	AuthorName   string
	ControllerID int
	IsController bool
}

func (ScoreboardView) ViewKind() Kind { return KindScoreboard }

type FinalView struct {
	Winners     []api.Player
	Recap       []api.RoundRecord
	ReplayVotes int
}

func (FinalView) ViewKind() Kind { return KindFinal }

func Select(snap api.Snapshot, localID int) View {
	you, joined := snap.PlayerByID(localID)
	controllerID, _ := ControllerID(snap.Players)

	switch snap.Status {
	case api.StatusLobby:
		if !joined {
			return JoinView{GameCode: snap.GameCode, Players: snap.Players}
		}
		return LobbyView{
			You:          you,
			Players:      snap.Players,
			ControllerID: controllerID,
			IsController: localID == controllerID,
			CanStart:     canStart(snap.Players),
		}

	case api.StatusInProgress:
		switch snap.Stage {
		case api.StageGuessing:
			if snap.CurrentStory == nil {
				// Stage says guessing but no story arrived yet; render the
				// intro screen until the next snapshot fills it in.
				return roundIntro(snap, localID, controllerID)
			}
			return guessing(snap, you, joined)
		case api.StageScoreboard:
			return ScoreboardView{
				Ranked:       RankByScore(snap.Players),
				AuthorName:   currentAuthorName(snap),
				ControllerID: controllerID,
				IsController: joined && localID == controllerID,
			}
		default:
			return roundIntro(snap, localID, controllerID)
		}

	default: // finished
		return FinalView{
			Winners:     Winners(snap),
			Recap:       snap.RoundHistory,
			ReplayVotes: snap.ReplayVotes,
		}
	}
}

func roundIntro(snap api.Snapshot, localID, controllerID int) RoundIntroView {
	_, joined := snap.PlayerByID(localID)
	return RoundIntroView{
		Round:        snap.CurrentRound,
		TotalRounds:  snap.TotalRounds,
		ControllerID: controllerID,
		IsController: joined && localID == controllerID,
	}
}

func guessing(snap api.Snapshot, you api.Player, joined bool) View {
	story := *snap.CurrentStory
	count := snap.CurrentStoryGuessCount
	// Everyone but the author gets to guess.
	total := len(snap.Players) - 1
	if total < 0 {
		total = 0
	}

	if !joined || story.AuthorID == you.ID {
		return WatchView{
			Story:      story,
			IsAuthor:   joined && story.AuthorID == you.ID,
			GuessCount: count,
			GuessTotal: total,
		}
	}
	if you.HasGuessedCurrent {
		return GuessWaitView{GuessCount: count, GuessTotal: total}
	}

	targets := make([]api.Player, 0, len(snap.Players)-1)
	for _, p := range snap.Players {
		if p.ID != you.ID {
			targets = append(targets, p)
		}
	}
	if len(targets) == 0 {
		// The author left and nobody else remains to point at; spectate
		// until the server moves the stage on.
		return WatchView{Story: story, GuessCount: count, GuessTotal: total}
	}
	return GuessingView{Story: story, Targets: targets, GuessCount: count, GuessTotal: total}
}

// ControllerID is the participant with the smallest id. Derived per snapshot,
// never cached: the controller may leave.
func ControllerID(players []api.Player) (int, bool) {
	if len(players) == 0 {
		return 0, false
	}
	min := players[0].ID
	for _, p := range players[1:] {
		if p.ID < min {
			min = p.ID
		}
	}
	return min, true
}

func canStart(players []api.Player) bool {
	if len(players) < 2 {
		return false
	}
	for _, p := range players {
		if !p.HasSubmittedStory {
			return false
		}
	}
	return true
}

// RankByScore sorts by score descending; ties keep snapshot order so every
// client renders an identical scoreboard.
func RankByScore(players []api.Player) []api.Player {
	ranked := make([]api.Player, len(players))
	copy(ranked, players)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// Winners prefers the snapshot's explicit winner set; otherwise every
// participant at the maximum score wins, in snapshot order.
func Winners(snap api.Snapshot) []api.Player {
	if len(snap.Winners) > 0 {
		out := make([]api.Player, 0, len(snap.Winners))
		for _, id := range snap.Winners {
			if p, ok := snap.PlayerByID(id); ok {
				out = append(out, p)
			}
		}
		return out
	}
	if len(snap.Players) == 0 {
		return nil
	}
	max := snap.Players[0].Score
	for _, p := range snap.Players[1:] {
		if p.Score > max {
			max = p.Score
		}
	}
	out := make([]api.Player, 0, 1)
	for _, p := range snap.Players {
		if p.Score == max {
			out = append(out, p)
		}
	}
	return out
}

func currentAuthorName(snap api.Snapshot) string {
	if snap.CurrentStory == nil {
		return ""
	}
	if p, ok := snap.PlayerByID(snap.CurrentStory.AuthorID); ok {
		return p.Name
	}
	return ""
}
