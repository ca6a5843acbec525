package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/hypercart/internal/session"
	"github.com/shehryarbajwa/hypercart/pkg/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Sessions resolves a session to its browser's DevTools endpoint
type Sessions interface {
	ConnectURL(id string) (string, error)
}

// Subscriber is the event source streamed to observers
type Subscriber interface {
	Subscribe(buffer int) (string, <-chan models.Event, func())
}

type Server struct {
	sessions Sessions
	events   Subscriber
	logger   *zap.Logger
}

func NewServer(sessions Sessions, events Subscriber, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		sessions: sessions,
		events:   events,
		logger:   logger,
	}
}

// HandleDebugConnection relays a DevTools client to a docker-backed session's browser
func (s *Server) HandleDebugConnection(w http.ResponseWriter, r *http.Request, sessionID string) {
	chromeURL, err := s.sessions.ConnectURL(sessionID)
	if errors.Is(err, session.ErrNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if chromeURL == "" {
		http.Error(w, "Session has no remote debugging endpoint", http.StatusBadRequest)
		return
	}

	// Upgrade HTTP connection to WebSocket
	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}
	defer clientConn.Close()

	logger := s.logger.With(zap.String("session_id", sessionID))
	logger.Info("✓ Client connected to session debug")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	chromeConn, _, err := websocket.DefaultDialer.DialContext(ctx, chromeURL, nil)
	if err != nil {
		logger.Warn("❌ Failed to connect to Chrome", zap.Error(err))
		clientConn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("Error connecting: %v", err)))
		return
	}
	defer chromeConn.Close()

	// Bidirectional proxy
	errChan := make(chan error, 2)

	go func() {
		errChan <- s.proxyMessages(clientConn, chromeConn, "client→chrome")
	}()

	go func() {
		errChan <- s.proxyMessages(chromeConn, clientConn, "chrome→client")
	}()

	// Wait for either direction to close
	err = <-errChan
	if err != nil && err != io.EOF && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		logger.Debug("Proxy closed", zap.Error(err))
	}

	logger.Info("🔌 Client disconnected from session debug")
}

func (s *Server) proxyMessages(src, dst *websocket.Conn, direction string) error {
	for {
		messageType, message, err := src.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Debug("WebSocket error", zap.String("direction", direction), zap.Error(err))
			}
			return err
		}

		if err := dst.WriteMessage(messageType, message); err != nil {
			s.logger.Debug("Failed to write message", zap.String("direction", direction), zap.Error(err))
			return err
		}
	}
}
