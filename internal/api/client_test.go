package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGameStateDecodesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/games/AB12/state" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": 7,
			"game_code": "AB12",
			"status": "in_progress",
			"stage": "guessing",
			"players": [{"id": 1, "name": "ada", "score": 2, "has_submitted_story": true}],
			"current_story": {"id": 3, "content": "once", "author_id": 1},
			"stage_deadline": 1700000000.5
		}`))
	}))
	defer srv.Close()

	snap, err := NewClient(srv.URL).GameState(context.Background(), "ab12")
	if err != nil {
		t.Fatalf("GameState() error = %v", err)
	}
	if snap.Status != StatusInProgress || snap.Stage != StageGuessing {
		t.Fatalf("status/stage = %v/%v", snap.Status, snap.Stage)
	}
	if snap.CurrentStory == nil || snap.CurrentStory.AuthorID != 1 {
		t.Fatalf("current story = %+v", snap.CurrentStory)
	}
	if snap.StageDeadline != 1700000000.5 {
		t.Fatalf("stage deadline = %v", snap.StageDeadline)
	}
	if _, ok := snap.PlayerByID(1); !ok {
		t.Fatal("player 1 missing")
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantNF     bool
		wantValid  bool
		wantTrans  bool
		wantVCCode string
	}{
		{name: "not found", status: 404, body: `{"error":"Game not found"}`, wantNF: true},
		{name: "rejected guess", status: 400, body: `{"error":"already_guessed"}`, wantValid: true, wantVCCode: "already_guessed"},
		{name: "not controller", status: 403, body: `{"error":"not_controller"}`, wantValid: true, wantVCCode: "not_controller"},
		{name: "server error", status: 500, body: `{"error":"boom"}`, wantTrans: true},
		{name: "rejection without body", status: 409, body: ``, wantValid: true, wantVCCode: "rejected_409"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := NewClient(srv.URL).SubmitGuess(context.Background(), "AB12", 2, 1)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if got := IsNotFound(err); got != tt.wantNF {
				t.Fatalf("IsNotFound = %v, want %v (err=%v)", got, tt.wantNF, err)
			}
			if got := IsValidation(err); got != tt.wantValid {
				t.Fatalf("IsValidation = %v, want %v (err=%v)", got, tt.wantValid, err)
			}
			if got := IsTransient(err); got != tt.wantTrans {
				t.Fatalf("IsTransient = %v, want %v (err=%v)", got, tt.wantTrans, err)
			}
			if tt.wantVCCode != "" && err.Error() != tt.wantVCCode {
				t.Fatalf("validation code = %q, want %q", err.Error(), tt.wantVCCode)
			}
		})
	}
}

func TestNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	_, err := NewClient(srv.URL).GameState(context.Background(), "AB12")
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestMutationsCarryExplicitActor(t *testing.T) {
	var got guessRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing request id header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).SubmitGuess(context.Background(), "ab12", 2, 3); err != nil {
		t.Fatalf("SubmitGuess() error = %v", err)
	}
	if got.PlayerID != 2 || got.GuessedPlayerID != 3 {
		t.Fatalf("body = %+v", got)
	}
}
