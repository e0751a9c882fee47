// Package testutil hosts an in-memory stand-in for the authoritative game
// server: the full HTTP boundary plus the /ws notification channel, with
// just enough rules (story ownership, guess validation, scoring) to exercise
// the client engine end to end.
package testutil

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v3"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

const (
	roundIntroSec = 5
	guessingSec   = 20
	scoreboardSec = 6
)

type player struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Score             int    `json:"score"`
	HasSubmittedStory bool   `json:"has_submitted_story"`
	HasGuessedCurrent bool   `json:"has_guessed_current"`
}

type story struct {
	ID       int    `json:"id"`
	Content  string `json:"content"`
	AuthorID int    `json:"author_id"`
}

type guess struct {
	GuesserID       int `json:"guesser_id"`
	GuessedPlayerID int `json:"guessed_player_id"`
}

type roundRecord struct {
	Round               int     `json:"round"`
	StoryID             int     `json:"story_id"`
	AuthorID            int     `json:"author_id"`
	Guesses             []guess `json:"guesses"`
	CorrectGuessers     []int   `json:"correct_guessers"`
	AuthorPointsAwarded int     `json:"author_points_awarded"`
}

type game struct {
	ID            int
	Code          string
	Status        string // lobby | in_progress | finished
	Stage         string // round_intro | guessing | scoreboard
	Players       []*player
	Stories       []*story
	StoryCursor   int
	Guesses       []guess // for the current story
	CurrentRound  int
	TotalRounds   int
	History       []roundRecord
	ReplayVoters  map[int]bool
	StageDeadline float64
}

// Server is the double. Zero-latency, fully deterministic aside from ids.
type Server struct {
	mu         sync.Mutex
	games      map[string]*game
	nextGameID int
	nextID     int // players and stories share the id space, like the real DB

	httpSrv  *httptest.Server
	upgrader websocket.Upgrader
	rooms    map[string]map[*wsConn]bool

	// WithDeadlines controls whether snapshots carry stage_deadline.
	withDeadlines bool
}

type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func NewServer() *Server {
	s := &Server{
		games: map[string]*game{},
		rooms: map[string]map[*wsConn]bool{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		withDeadlines: true,
	}
	s.httpSrv = httptest.NewServer(s.router())
	return s
}

func (s *Server) Close() {
	s.mu.Lock()
	for _, room := range s.rooms {
		for c := range room {
			_ = c.conn.Close()
		}
	}
	s.rooms = map[string]map[*wsConn]bool{}
	s.mu.Unlock()
	s.httpSrv.Close()
}

// URL is the HTTP base the api client points at.
func (s *Server) URL() string { return s.httpSrv.URL }

// WSURL is the notification channel endpoint.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.httpSrv.URL, "http") + "/ws"
}

func (s *Server) SetDeadlines(on bool) {
	s.mu.Lock()
	s.withDeadlines = on
	s.mu.Unlock()
}

// DeleteGame makes every later read 404 without any push signal, simulating
// server-side teardown the client discovers by polling.
func (s *Server) DeleteGame(code string) {
	s.mu.Lock()
	delete(s.games, strings.ToUpper(code))
	s.mu.Unlock()
}

// EndGame broadcasts the terminal push signal and forgets the game.
func (s *Server) EndGame(code string) {
	code = strings.ToUpper(code)
	s.mu.Lock()
	delete(s.games, code)
	conns := s.roomConns(code)
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.writeJSON(map[string]any{"type": "game_ended"})
	}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(httplog.RequestLogger(
		slog.New(slog.NewTextHandler(httplogSink{}, &slog.HandlerOptions{Level: slog.LevelWarn})),
		&httplog.Options{Level: slog.LevelDebug},
	))

	r.Route("/api/games", func(r chi.Router) {
		r.Post("/create", s.handleCreate)
		r.Post("/join", s.handleJoin)
		r.Route("/{code}", func(r chi.Router) {
			r.Get("/state", s.handleState)
			r.Post("/stories", s.handleStory)
			r.Post("/start", s.handleStart)
			r.Post("/advance", s.handleAdvance)
			r.Post("/guess", s.handleGuess)
			r.Post("/replay", s.handleReplay)
			r.Post("/leave", s.handleLeave)
		})
	})
	r.Get("/ws", s.handleWS)
	return r
}

// httplogSink drops request logs; tests keep their output clean unless a
// handler misbehaves at warn level or above.
type httplogSink struct{}

func (httplogSink) Write(p []byte) (int, error) { return len(p), nil }

func writeErr(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleCreate(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.nextGameID++
	var code string
	for {
		code = ulid.Make().String()[22:] // short shareable code, upper-case alphabet
		if _, taken := s.games[code]; !taken {
			break
		}
	}
	g := &game{ID: s.nextGameID, Code: code, Status: "lobby", ReplayVoters: map[int]bool{}}
	s.games[code] = g
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]string{"game_code": code})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GameCode string `json:"game_code"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeErr(w, http.StatusBadRequest, "name_required")
		return
	}

	s.mu.Lock()
	g, ok := s.games[strings.ToUpper(req.GameCode)]
	if !ok {
		s.mu.Unlock()
		writeErr(w, http.StatusNotFound, "game_not_found")
		return
	}
	if g.Status != "lobby" {
		s.mu.Unlock()
		writeErr(w, http.StatusForbidden, "not_in_lobby")
		return
	}
	s.nextID++
	p := &player{ID: s.nextID, Name: req.Name}
	g.Players = append(g.Players, p)
	out := *p
	code := g.Code
	s.mu.Unlock()

	s.broadcast(code, "state_update")
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	g, ok := s.games[strings.ToUpper(chi.URLParam(r, "code"))]
	if !ok {
		s.mu.Unlock()
		writeErr(w, http.StatusNotFound, "game_not_found")
		return
	}
	snap := s.snapshotLocked(g)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) snapshotLocked(g *game) map[string]any {
	players := make([]player, 0, len(g.Players))
	for _, p := range g.Players {
		players = append(players, *p)
	}
	snap := map[string]any{
		"id":        g.ID,
		"game_code": g.Code,
		"status":    g.Status,
		"players":   players,
		"durations": map[string]int{
			"round_intro": roundIntroSec,
			"guessing":    guessingSec,
			"scoreboard":  scoreboardSec,
		},
	}
	if g.Status == "in_progress" {
		snap["stage"] = g.Stage
		snap["current_round"] = g.CurrentRound
		snap["total_rounds"] = g.TotalRounds
		if st := s.currentStoryLocked(g); st != nil {
			snap["current_story"] = *st
			snap["current_story_guess_count"] = len(g.Guesses)
		}
		if s.withDeadlines && g.StageDeadline > 0 {
			snap["stage_deadline"] = g.StageDeadline
		}
	}
	if len(g.History) > 0 {
		snap["round_history"] = g.History
	}
	if g.Status == "finished" && len(g.ReplayVoters) > 0 {
		snap["replay_votes"] = len(g.ReplayVoters)
	}
	return snap
}

func (s *Server) currentStoryLocked(g *game) *story {
	if g.StoryCursor < 1 || g.StoryCursor > len(g.Stories) {
		return nil
	}
	return g.Stories[g.StoryCursor-1]
}

func (s *Server) handleStory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID int    `json:"player_id"`
		Story    string `json:"story"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Story == "" {
		writeErr(w, http.StatusBadRequest, "story_required")
		return
	}

	s.mu.Lock()
	g, ok := s.games[strings.ToUpper(chi.URLParam(r, "code"))]
	if !ok {
		s.mu.Unlock()
		writeErr(w, http.StatusNotFound, "game_not_found")
		return
	}
	p := findPlayer(g, req.PlayerID)
	switch {
	case g.Status != "lobby":
		s.mu.Unlock()
		writeErr(w, http.StatusBadRequest, "not_in_lobby")
		return
	case p == nil:
		s.mu.Unlock()
		writeErr(w, http.StatusForbidden, "not_a_player")
		return
	case p.HasSubmittedStory:
		s.mu.Unlock()
		writeErr(w, http.StatusBadRequest, "already_submitted")
		return
	}
	s.nextID++
	g.Stories = append(g.Stories, &story{ID: s.nextID, Content: req.Story, AuthorID: p.ID})
	p.HasSubmittedStory = true
	code := g.Code
	s.mu.Unlock()

	s.broadcast(code, "state_update")
	writeJSON(w, http.StatusCreated, map[string]string{"message": "story submitted"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	actorID, ok := decodeActor(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	g, found := s.games[strings.ToUpper(chi.URLParam(r, "code"))]
	if !found {
		s.mu.Unlock()
		writeErr(w, http.StatusNotFound, "game_not_found")
		return
	}
	switch {
	case g.Status != "lobby":
		s.mu.Unlock()
		writeErr(w, http.StatusBadRequest, "already_started")
		return
	case actorID != controllerID(g):
		s.mu.Unlock()
		writeErr(w, http.StatusForbidden, "not_controller")
		return
	case len(g.Players) < 2 || !allSubmitted(g):
		s.mu.Unlock()
		writeErr(w, http.StatusBadRequest, "cannot_start")
		return
	}
	g.Status = "in_progress"
	g.TotalRounds = len(g.Stories)
	s.beginRoundLocked(g, 1)
	code := g.Code
	s.mu.Unlock()

	s.broadcast(code, "state_update")
	writeJSON(w, http.StatusOK, map[string]string{"message": "started"})
}

func (s *Server) beginRoundLocked(g *game, round int) {
	g.CurrentRound = round
	g.StoryCursor = round
	g.Stage = "round_intro"
	g.Guesses = nil
	for _, p := range g.Players {
		p.HasGuessedCurrent = false
	}
	s.setDeadlineLocked(g, roundIntroSec)
}

func (s *Server) setDeadlineLocked(g *game, sec int) {
	g.StageDeadline = float64(time.Now().Unix() + int64(sec))
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	actorID, ok := decodeActor(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	g, found := s.games[strings.ToUpper(chi.URLParam(r, "code"))]
	if !found {
		s.mu.Unlock()
		writeErr(w, http.StatusNotFound, "game_not_found")
		return
	}
	switch {
	case g.Status != "in_progress":
		s.mu.Unlock()
		writeErr(w, http.StatusBadRequest, "not_in_progress")
		return
	case actorID != controllerID(g):
		s.mu.Unlock()
		writeErr(w, http.StatusForbidden, "not_controller")
		return
	}

	switch g.Stage {
	case "round_intro":
		g.Stage = "guessing"
		s.setDeadlineLocked(g, guessingSec)
	case "guessing":
		s.scoreRoundLocked(g)
		g.Stage = "scoreboard"
		s.setDeadlineLocked(g, scoreboardSec)
	case "scoreboard":
		if g.CurrentRound >= g.TotalRounds {
			g.Status = "finished"
			g.Stage = ""
			g.StageDeadline = 0
		} else {
			s.beginRoundLocked(g, g.CurrentRound+1)
		}
	}
	code := g.Code
	s.mu.Unlock()

	s.broadcast(code, "state_update")
	writeJSON(w, http.StatusOK, map[string]string{"message": "advanced"})
}

// scoreRoundLocked applies the original rules: 2 points per correct guess,
// 1 point to the author per fooled guesser. Also appends the round record.
func (s *Server) scoreRoundLocked(g *game) {
	st := s.currentStoryLocked(g)
	if st == nil {
		return
	}
	rec := roundRecord{
		Round:    g.CurrentRound,
		StoryID:  st.ID,
		AuthorID: st.AuthorID,
		Guesses:  append([]guess(nil), g.Guesses...),
	}
	author := findPlayer(g, st.AuthorID)
	for _, gu := range g.Guesses {
		if gu.GuessedPlayerID == st.AuthorID {
			if p := findPlayer(g, gu.GuesserID); p != nil {
				p.Score += 2
				rec.CorrectGuessers = append(rec.CorrectGuessers, gu.GuesserID)
			}
		} else if author != nil {
			author.Score++
			rec.AuthorPointsAwarded++
		}
	}
	g.History = append(g.History, rec)
}

func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID        int `json:"player_id"`
		GuessedPlayerID int `json:"guessed_player_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request")
		return
	}

	s.mu.Lock()
	g, found := s.games[strings.ToUpper(chi.URLParam(r, "code"))]
	if !found {
		s.mu.Unlock()
		writeErr(w, http.StatusNotFound, "game_not_found")
		return
	}
	st := s.currentStoryLocked(g)
	p := findPlayer(g, req.PlayerID)
	switch {
	case g.Status != "in_progress" || g.Stage != "guessing" || st == nil:
		s.mu.Unlock()
		writeErr(w, http.StatusBadRequest, "not_guessing")
		return
	case p == nil:
		s.mu.Unlock()
		writeErr(w, http.StatusForbidden, "not_a_player")
		return
	case p.ID == st.AuthorID:
		s.mu.Unlock()
		writeErr(w, http.StatusBadRequest, "author_cannot_guess")
		return
	case p.ID == req.GuessedPlayerID:
		s.mu.Unlock()
		writeErr(w, http.StatusBadRequest, "cannot_guess_self")
		return
	case p.HasGuessedCurrent:
		s.mu.Unlock()
		writeErr(w, http.StatusBadRequest, "already_guessed")
		return
	}
	g.Guesses = append(g.Guesses, guess{GuesserID: p.ID, GuessedPlayerID: req.GuessedPlayerID})
	p.HasGuessedCurrent = true
	code := g.Code
	s.mu.Unlock()

	s.broadcast(code, "state_update")
	writeJSON(w, http.StatusCreated, map[string]string{"message": "guess submitted"})
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	actorID, ok := decodeActor(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	g, found := s.games[strings.ToUpper(chi.URLParam(r, "code"))]
	if !found {
		s.mu.Unlock()
		writeErr(w, http.StatusNotFound, "game_not_found")
		return
	}
	if g.Status != "finished" {
		s.mu.Unlock()
		writeErr(w, http.StatusBadRequest, "not_finished")
		return
	}
	g.ReplayVoters[actorID] = true
	code := g.Code
	s.mu.Unlock()

	s.broadcast(code, "state_update")
	writeJSON(w, http.StatusOK, map[string]string{"message": "vote recorded"})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	actorID, ok := decodeActor(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	g, found := s.games[strings.ToUpper(chi.URLParam(r, "code"))]
	if !found {
		s.mu.Unlock()
		writeErr(w, http.StatusNotFound, "game_not_found")
		return
	}
	idx := -1
	for i, p := range g.Players {
		if p.ID == actorID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		writeErr(w, http.StatusNotFound, "not_a_player")
		return
	}
	g.Players = append(g.Players[:idx], g.Players[idx+1:]...)
	code := g.Code
	last := len(g.Players) == 0
	if last {
		delete(s.games, code)
	}
	s.mu.Unlock()

	if last {
		s.broadcast(code, "game_ended")
	} else {
		s.broadcast(code, "state_update")
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "left"})
}

func decodeActor(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req struct {
		PlayerID int `json:"player_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request")
		return 0, false
	}
	return req.PlayerID, true
}

func findPlayer(g *game, id int) *player {
	for _, p := range g.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func allSubmitted(g *game) bool {
	for _, p := range g.Players {
		if !p.HasSubmittedStory {
			return false
		}
	}
	return true
}

func controllerID(g *game) int {
	if len(g.Players) == 0 {
		return 0
	}
	min := g.Players[0].ID
	for _, p := range g.Players[1:] {
		if p.ID < min {
			min = p.ID
		}
	}
	return min
}
