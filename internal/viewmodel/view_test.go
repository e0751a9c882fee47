package viewmodel

import (
	"reflect"
	"testing"

	"wasnt-me/internal/api"
)

func players(ps ...api.Player) []api.Player { return ps }

func TestSelectLobbyVariants(t *testing.T) {
	snap := api.Snapshot{
		GameCode: "AB12",
		Status:   api.StatusLobby,
		Players: players(
			api.Player{ID: 3, Name: "cleo", HasSubmittedStory: true},
			api.Player{ID: 1, Name: "ada", HasSubmittedStory: true},
		),
	}

	t.Run("no local participant", func(t *testing.T) {
		v := Select(snap, 0)
		if v.ViewKind() != KindJoin {
			t.Fatalf("kind = %v, want join", v.ViewKind())
		}
	})

	t.Run("joined controller can start", func(t *testing.T) {
		v := Select(snap, 1)
		lv, ok := v.(LobbyView)
		if !ok {
			t.Fatalf("view = %T", v)
		}
		if !lv.IsController || lv.ControllerID != 1 {
			t.Fatalf("controller = %d is=%v", lv.ControllerID, lv.IsController)
		}
		if !lv.CanStart {
			t.Fatal("CanStart = false, want true")
		}
	})

	t.Run("non-controller cannot start", func(t *testing.T) {
		v := Select(snap, 3).(LobbyView)
		if v.IsController {
			t.Fatal("player 3 should not be controller")
		}
	})

	t.Run("missing submission blocks start", func(t *testing.T) {
		s := snap
		s.Players = players(
			api.Player{ID: 1, HasSubmittedStory: true},
			api.Player{ID: 2, HasSubmittedStory: false},
		)
		if Select(s, 1).(LobbyView).CanStart {
			t.Fatal("CanStart = true with pending submission")
		}
	})

	t.Run("single player blocks start", func(t *testing.T) {
		s := snap
		s.Players = players(api.Player{ID: 1, HasSubmittedStory: true})
		if Select(s, 1).(LobbyView).CanStart {
			t.Fatal("CanStart = true with one player")
		}
	})
}

func TestSelectGuessingScenario(t *testing.T) {
	// Author is player 1, players 2 and 3 have not guessed;
	// player 2 must see targets [1 3], then the waiting variant after the
	// snapshot flips has_guessed_current.
	snap := api.Snapshot{
		Status:       api.StatusInProgress,
		Stage:        api.StageGuessing,
		CurrentStory: &api.Story{ID: 9, Content: "once", AuthorID: 1},
		Players: players(
			api.Player{ID: 1, Name: "ada"},
			api.Player{ID: 2, Name: "bo"},
			api.Player{ID: 3, Name: "cleo"},
		),
	}

	v, ok := Select(snap, 2).(GuessingView)
	if !ok {
		t.Fatalf("view = %T, want GuessingView", Select(snap, 2))
	}
	ids := make([]int, 0, len(v.Targets))
	for _, p := range v.Targets {
		ids = append(ids, p.ID)
	}
	if !reflect.DeepEqual(ids, []int{1, 3}) {
		t.Fatalf("targets = %v, want [1 3]", ids)
	}
	if v.GuessTotal != 2 {
		t.Fatalf("guess total = %d, want 2", v.GuessTotal)
	}

	after := snap
	after.Players = players(
		api.Player{ID: 1, Name: "ada"},
		api.Player{ID: 2, Name: "bo", HasGuessedCurrent: true},
		api.Player{ID: 3, Name: "cleo"},
	)
	after.CurrentStoryGuessCount = 1
	w, ok := Select(after, 2).(GuessWaitView)
	if !ok {
		t.Fatalf("view after guess = %T, want GuessWaitView", Select(after, 2))
	}
	if w.GuessCount != 1 {
		t.Fatalf("guess count = %d", w.GuessCount)
	}
}

func TestSelectAuthorAndDisplaySpectate(t *testing.T) {
	snap := api.Snapshot{
		Status:       api.StatusInProgress,
		Stage:        api.StageGuessing,
		CurrentStory: &api.Story{ID: 9, AuthorID: 1},
		Players:      players(api.Player{ID: 1}, api.Player{ID: 2}),
	}

	author, ok := Select(snap, 1).(WatchView)
	if !ok || !author.IsAuthor {
		t.Fatalf("author view = %#v", Select(snap, 1))
	}
	display, ok := Select(snap, 0).(WatchView)
	if !ok || display.IsAuthor {
		t.Fatalf("display view = %#v", Select(snap, 0))
	}
}

func TestSelectGuessingAfterAuthorLeft(t *testing.T) {
	// The author left mid-stage: the lone remaining participant has nobody
	// to point at and spectates instead of guessing.
	snap := api.Snapshot{
		Status:       api.StatusInProgress,
		Stage:        api.StageGuessing,
		CurrentStory: &api.Story{ID: 9, Content: "once", AuthorID: 1},
		Players:      players(api.Player{ID: 2, Name: "bo"}),
	}
	v, ok := Select(snap, 2).(WatchView)
	if !ok {
		t.Fatalf("view = %T, want WatchView", Select(snap, 2))
	}
	if v.IsAuthor {
		t.Fatal("remaining player flagged as author")
	}
}

func TestSelectGuessingWithoutStoryFallsBackToIntro(t *testing.T) {
	snap := api.Snapshot{
		Status:  api.StatusInProgress,
		Stage:   api.StageGuessing,
		Players: players(api.Player{ID: 1}),
	}
	if Select(snap, 1).ViewKind() != KindRoundIntro {
		t.Fatalf("kind = %v, want round_intro", Select(snap, 1).ViewKind())
	}
}

func TestScoreboardOrderingIsDeterministic(t *testing.T) {
	snap := api.Snapshot{
		Status: api.StatusInProgress,
		Stage:  api.StageScoreboard,
		Players: players(
			api.Player{ID: 5, Name: "eve", Score: 2},
			api.Player{ID: 2, Name: "bo", Score: 4},
			api.Player{ID: 9, Name: "ida", Score: 2},
		),
	}
	v := Select(snap, 2).(ScoreboardView)
	got := []string{v.Ranked[0].Name, v.Ranked[1].Name, v.Ranked[2].Name}
	// Ties keep snapshot order: eve before ida.
	want := []string{"bo", "eve", "ida"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranked = %v, want %v", got, want)
	}

	again := Select(snap, 2).(ScoreboardView)
	if !reflect.DeepEqual(v, again) {
		t.Fatal("repeated selection differed")
	}
}

func TestWinners(t *testing.T) {
	tests := []struct {
		name string
		snap api.Snapshot
		want []int
	}{
		{
			name: "tie produces two winners in snapshot order",
			snap: api.Snapshot{Status: api.StatusFinished, Players: players(
				api.Player{ID: 4, Score: 6},
				api.Player{ID: 1, Score: 3},
				api.Player{ID: 2, Score: 6},
			)},
			want: []int{4, 2},
		},
		{
			name: "explicit winner set wins over derivation",
			snap: api.Snapshot{Status: api.StatusFinished, Winners: []int{1}, Players: players(
				api.Player{ID: 1, Score: 0},
				api.Player{ID: 2, Score: 9},
			)},
			want: []int{1},
		},
		{
			name: "no players",
			snap: api.Snapshot{Status: api.StatusFinished},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Select(tt.snap, 0).(FinalView)
			var ids []int
			for _, w := range v.Winners {
				ids = append(ids, w.ID)
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Fatalf("winners = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestControllerRecomputedFromParticipants(t *testing.T) {
	id, ok := ControllerID(players(api.Player{ID: 7}, api.Player{ID: 2}, api.Player{ID: 11}))
	if !ok || id != 2 {
		t.Fatalf("controller = %d ok=%v, want 2", id, ok)
	}
	// Controller left; next smallest takes over.
	id, ok = ControllerID(players(api.Player{ID: 7}, api.Player{ID: 11}))
	if !ok || id != 7 {
		t.Fatalf("controller = %d ok=%v, want 7", id, ok)
	}
	if _, ok := ControllerID(nil); ok {
		t.Fatal("empty participant set should have no controller")
	}
}
