package testutil

import (
	"net/http"
	"strings"
)

// Push-channel half of the double. Rooms mirror the real server: one per
// game code, joined and left by explicit signals, receiving bare
// state_update / game_ended envelopes.

type wsClientSignal struct {
	Type     string `json:"type"`
	GameCode string `json:"game_code"`
	IsOwner  bool   `json:"is_owner"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsConn{conn: conn}
	var joined string

	defer func() {
		if joined != "" {
			s.unregister(joined, c)
		}
		_ = conn.Close()
	}()

	for {
		var sig wsClientSignal
		if err := conn.ReadJSON(&sig); err != nil {
			return
		}
		code := strings.ToUpper(sig.GameCode)
		switch sig.Type {
		case "join_game":
			if joined != "" {
				s.unregister(joined, c)
			}
			joined = code
			s.register(code, c)
			_ = c.writeJSON(map[string]string{"type": "joined", "room": "game:" + code})
		case "leave_game":
			if joined == code {
				s.unregister(code, c)
				joined = ""
			}
			_ = c.writeJSON(map[string]string{"type": "left", "room": "game:" + code})
		}
	}
}

func (s *Server) register(code string, c *wsConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rooms[code] == nil {
		s.rooms[code] = map[*wsConn]bool{}
	}
	s.rooms[code][c] = true
}

func (s *Server) unregister(code string, c *wsConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[code]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(s.rooms, code)
		}
	}
}

// RoomSize reports live subscribers for a game code; teardown tests assert
// it drops to zero without waiting on server-side timeouts.
func (s *Server) RoomSize(code string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms[strings.ToUpper(code)])
}

func (s *Server) roomConns(code string) []*wsConn {
	conns := make([]*wsConn, 0, len(s.rooms[code]))
	for c := range s.rooms[code] {
		conns = append(conns, c)
	}
	return conns
}

func (s *Server) broadcast(code, signal string) {
	s.mu.Lock()
	conns := s.roomConns(strings.ToUpper(code))
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.writeJSON(map[string]string{"type": signal})
	}
}
