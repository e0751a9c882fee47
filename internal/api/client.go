package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Client talks to the authoritative game server. Reads are idempotent full
// snapshots; mutating calls carry the acting participant id explicitly so a
// retry after a timeout is always safe to send twice.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NormalizeCode upper-cases a game code the way the server stores them.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type createResponse struct {
	GameCode string `json:"game_code"`
}

func (c *Client) CreateGame(ctx context.Context) (string, error) {
	var out createResponse
	if err := c.do(ctx, http.MethodPost, "/api/games/create", struct{}{}, &out); err != nil {
		return "", err
	}
	return NormalizeCode(out.GameCode), nil
}

type joinRequest struct {
	GameCode string `json:"game_code"`
	Name     string `json:"name"`
}

func (c *Client) JoinGame(ctx context.Context, code, name string) (Player, error) {
	var out Player
	err := c.do(ctx, http.MethodPost, "/api/games/join", joinRequest{GameCode: NormalizeCode(code), Name: name}, &out)
	return out, err
}

func (c *Client) GameState(ctx context.Context, code string) (Snapshot, error) {
	var out Snapshot
	err := c.do(ctx, http.MethodGet, "/api/games/"+NormalizeCode(code)+"/state", nil, &out)
	return out, err
}

type storyRequest struct {
	PlayerID int    `json:"player_id"`
	Story    string `json:"story"`
}

func (c *Client) SubmitStory(ctx context.Context, code string, playerID int, story string) error {
	return c.do(ctx, http.MethodPost, "/api/games/"+NormalizeCode(code)+"/stories", storyRequest{PlayerID: playerID, Story: story}, nil)
}

type actorRequest struct {
	PlayerID int `json:"player_id"`
}

// StartGame moves a lobby into play. Only meaningful for the controller; the
// server performs the authority check against the explicit id.
func (c *Client) StartGame(ctx context.Context, code string, controllerID int) error {
	return c.do(ctx, http.MethodPost, "/api/games/"+NormalizeCode(code)+"/start", actorRequest{PlayerID: controllerID}, nil)
}

// AdvanceStage asks the server to move to the next stage. Advisory: stage
// progression is server-driven and observed through the next snapshot.
func (c *Client) AdvanceStage(ctx context.Context, code string, controllerID int) error {
	return c.do(ctx, http.MethodPost, "/api/games/"+NormalizeCode(code)+"/advance", actorRequest{PlayerID: controllerID}, nil)
}

type guessRequest struct {
	PlayerID        int `json:"player_id"`
	GuessedPlayerID int `json:"guessed_player_id"`
}

func (c *Client) SubmitGuess(ctx context.Context, code string, playerID, guessedID int) error {
	return c.do(ctx, http.MethodPost, "/api/games/"+NormalizeCode(code)+"/guess", guessRequest{PlayerID: playerID, GuessedPlayerID: guessedID}, nil)
}

func (c *Client) VoteReplay(ctx context.Context, code string, playerID int) error {
	return c.do(ctx, http.MethodPost, "/api/games/"+NormalizeCode(code)+"/replay", actorRequest{PlayerID: playerID}, nil)
}

func (c *Client) LeaveGame(ctx context.Context, code string, playerID int) error {
	return c.do(ctx, http.MethodPost, "/api/games/"+NormalizeCode(code)+"/leave", actorRequest{PlayerID: playerID}, nil)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", ulid.Make().String())

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransientError{cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&er)
		return classifyStatus(resp.StatusCode, er.Error)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransientError{cause: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
