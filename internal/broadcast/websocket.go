package broadcast

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxInboundMessage = 512

// HandlerOptions configures the websocket endpoint.
type HandlerOptions struct {
	WriteTimeout time.Duration
	// CheckOrigin defaults to accepting every origin.
	CheckOrigin func(r *http.Request) bool
	Logger      *zap.Logger
}

type wsSubscriber struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
}

func newWSSubscriber(conn *websocket.Conn, writeTimeout time.Duration) *wsSubscriber {
	return &wsSubscriber{
		id:           uuid.NewString(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (s *wsSubscriber) ID() string { return s.id }

// Send writes one text frame. Writes are serialized because gorilla connections
// support a single concurrent writer.
func (s *wsSubscriber) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *wsSubscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

// Handler upgrades requests to websocket connections and keeps each one registered
// with hub until its read side fails. Inbound frames are discarded.
func Handler(hub *Hub, opts HandlerOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		sub := newWSSubscriber(conn, opts.WriteTimeout)
		if err := hub.Register(sub); err != nil {
			if errors.Is(err, ErrHubFull) {
				msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber limit reached")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			}
			logger.Warn("subscriber rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
			_ = sub.Close()
			return
		}
		defer hub.Unregister(sub)

		conn.SetReadLimit(maxInboundMessage)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("websocket read error", zap.String("id", sub.ID()), zap.Error(err))
				}
				return
			}
		}
	})
}
