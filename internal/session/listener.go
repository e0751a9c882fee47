package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Wire envelopes for the push channel. Signals carry no state payload: a
// state_update only means "read again".
type clientSignal struct {
	Type     string `json:"type"`
	GameCode string `json:"game_code,omitempty"`
	IsOwner  bool   `json:"is_owner,omitempty"`
}

type serverSignal struct {
	Type string `json:"type"`
	Room string `json:"room,omitempty"`
}

const (
	signalJoinGame    = "join_game"
	signalLeaveGame   = "leave_game"
	signalJoined      = "joined"
	signalStateUpdate = "state_update"
	signalGameEnded   = "game_ended"
)

type listenerHooks struct {
	onStateUpdate func()
	onGameEnded   func()
	onConnChange  func(connected bool)
}

// listener owns exactly one live subscription to the session's notification
// room. Delivery is best-effort: it only ever triggers reconciles and a
// connectivity flag, never carries state. Reconnects are automatic and
// silent; when the channel is down the poll fallback keeps the client
// converging.
type listener struct {
	id      string
	url     string
	code    string
	isOwner bool
	clock   clockwork.Clock
	backoff time.Duration
	hooks   listenerHooks

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func newListener(url, code string, isOwner bool, clock clockwork.Clock, hooks listenerHooks) *listener {
	return &listener{
		id:      uuid.New().String(),
		url:     url,
		code:    code,
		isOwner: isOwner,
		clock:   clock,
		backoff: 2 * time.Second,
		hooks:   hooks,
	}
}

// run dials and reads until ctx is cancelled or close is called. Each dial
// announces membership in the session room before reading.
func (l *listener) run(ctx context.Context) {
	for {
		if l.isClosed() || ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.url, nil)
		if err != nil {
			log.Debug().Err(err).Str("listener_id", l.id).Str("game_code", l.code).Msg("notification dial failed")
			l.hooks.onConnChange(false)
			if !l.sleep(ctx) {
				return
			}
			continue
		}

		if !l.adopt(conn) {
			_ = conn.Close()
			return
		}

		if err := l.write(clientSignal{Type: signalJoinGame, GameCode: l.code, IsOwner: l.isOwner}); err != nil {
			l.dropConn()
			continue
		}
		l.hooks.onConnChange(true)

		l.readLoop(conn)
		l.hooks.onConnChange(false)
		l.dropConn()

		if l.isClosed() || ctx.Err() != nil {
			return
		}
		if !l.sleep(ctx) {
			return
		}
	}
}

func (l *listener) readLoop(conn *websocket.Conn) {
	for {
		var sig serverSignal
		if err := conn.ReadJSON(&sig); err != nil {
			if !l.isClosed() && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("listener_id", l.id).Msg("notification channel dropped")
			}
			return
		}

		switch sig.Type {
		case signalJoined:
			log.Debug().Str("room", sig.Room).Str("game_code", l.code).Msg("joined notification room")
		case signalStateUpdate:
			l.hooks.onStateUpdate()
		case signalGameEnded:
			l.hooks.onGameEnded()
		default:
			// Unknown signals are ignored; correctness comes from polling.
		}
	}
}

// close announces departure and tears the subscription down synchronously,
// so the server's participant list stays accurate without waiting for a
// timeout. Idempotent.
func (l *listener) close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn != nil {
		_ = conn.WriteJSON(clientSignal{Type: signalLeaveGame, GameCode: l.code})
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}
}

func (l *listener) adopt(conn *websocket.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.conn = conn
	return true
}

func (l *listener) dropConn() {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (l *listener) write(sig clientSignal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return websocket.ErrCloseSent
	}
	return l.conn.WriteJSON(sig)
}

func (l *listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *listener) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-l.clock.After(l.backoff):
		return true
	}
}
