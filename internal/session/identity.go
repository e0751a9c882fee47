package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"wasnt-me/internal/api"
)

// Identity persists which participant this device is in each game, plus the
// last active game code for rejoin offers. It is the client-local analogue of
// the browser's per-session storage: one small JSON file per user.
type Identity struct {
	path string

	mu   sync.Mutex
	data identityFile
}

type identityFile struct {
	Players      map[string]int `json:"players"`
	LastGameCode string         `json:"last_game_code,omitempty"`
}

// OpenIdentity loads the identity file, creating parent directories as
// needed. An empty path picks a per-user default under the OS config dir.
func OpenIdentity(path string) (*Identity, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "wasnt-me", "identity.json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	id := &Identity{path: path, data: identityFile{Players: map[string]int{}}}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return id, nil
	case err != nil:
		return nil, err
	}
	if err := json.Unmarshal(raw, &id.data); err != nil {
		// A corrupt file only costs the rejoin offer; start fresh.
		id.data = identityFile{Players: map[string]int{}}
	}
	if id.data.Players == nil {
		id.data.Players = map[string]int{}
	}
	return id, nil
}

// Bind records the participant id for a game and marks it the last active
// session.
func (s *Identity) Bind(code string, playerID int) error {
	code = api.NormalizeCode(code)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Players[code] = playerID
	s.data.LastGameCode = code
	return s.save()
}

func (s *Identity) Lookup(code string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.data.Players[api.NormalizeCode(code)]
	return id, ok
}

// Clear forgets the binding for a dead session.
func (s *Identity) Clear(code string) error {
	code = api.NormalizeCode(code)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.Players, code)
	if s.data.LastGameCode == code {
		s.data.LastGameCode = ""
	}
	return s.save()
}

func (s *Identity) LastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.LastGameCode
}

// SetLastCode remembers a session this client watches without participating
// in (the display client).
func (s *Identity) SetLastCode(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.LastGameCode = api.NormalizeCode(code)
	return s.save()
}

// save rewrites atomically: a crash mid-write must not lose every binding.
func (s *Identity) save() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
