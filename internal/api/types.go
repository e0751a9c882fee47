package api

// Wire types for the authoritative game server. A Snapshot is always a
// complete replacement view; the client never patches one field-by-field.

type Status string

const (
	StatusLobby      Status = "lobby"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
)

type Stage string

const (
	StageRoundIntro Stage = "round_intro"
	StageGuessing   Stage = "guessing"
	StageScoreboard Stage = "scoreboard"
)

type Player struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Score             int    `json:"score"`
	HasSubmittedStory bool   `json:"has_submitted_story"`
	HasGuessedCurrent bool   `json:"has_guessed_current"`
}

type Story struct {
	ID       int    `json:"id"`
	Content  string `json:"content"`
	AuthorID int    `json:"author_id"`
}

type GuessRecord struct {
	GuesserID       int `json:"guesser_id"`
	GuessedPlayerID int `json:"guessed_player_id"`
}

type RoundRecord struct {
	Round               int           `json:"round"`
	StoryID             int           `json:"story_id"`
	AuthorID            int           `json:"author_id"`
	Guesses             []GuessRecord `json:"guesses"`
	CorrectGuessers     []int         `json:"correct_guessers"`
	AuthorPointsAwarded int           `json:"author_points_awarded"`
}

// Durations is the per-stage duration table in seconds, used as a countdown
// fallback when the snapshot carries no stage_deadline.
type Durations struct {
	RoundIntro int `json:"round_intro,omitempty"`
	Guessing   int `json:"guessing,omitempty"`
	Scoreboard int `json:"scoreboard,omitempty"`
}

type Snapshot struct {
	ID                     int           `json:"id"`
	GameCode               string        `json:"game_code"`
	Status                 Status        `json:"status"`
	Stage                  Stage         `json:"stage,omitempty"`
	Players                []Player      `json:"players"`
	CurrentRound           int           `json:"current_round,omitempty"`
	TotalRounds            int           `json:"total_rounds,omitempty"`
	CurrentStory           *Story        `json:"current_story,omitempty"`
	CurrentStoryGuessCount int           `json:"current_story_guess_count,omitempty"`
	StageDeadline          float64       `json:"stage_deadline,omitempty"` // unix seconds on the server clock
	Durations              *Durations    `json:"durations,omitempty"`
	RoundHistory           []RoundRecord `json:"round_history,omitempty"`
	Winners                []int         `json:"winners,omitempty"`
	ReplayVotes            int           `json:"replay_votes,omitempty"`
}

// PlayerByID returns the participant with the given id. The Players slice
// keeps the server's join order; identity is the stable key.
func (s Snapshot) PlayerByID(id int) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}
