package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// handleWebSocket upgrades the connection, subscribes the observer to the
// fan-out engine, and pumps events until either side goes away. The
// engine queues the initialAccounts snapshot before any live event, so
// the observer always catches up first.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := s.engine.Subscribe()
	s.logger.Info("client connected", "subscriber_id", sub.ID())

	// Writer: drain the subscriber channel into the socket. The channel
	// is closed by the engine on unsubscribe or eviction.
	go func() {
		for data := range sub.Events() {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				break
			}
		}
		conn.Close()
	}()

	// Reader: observers send nothing; reading only detects disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.engine.Unsubscribe(sub)
	conn.Close()
	s.logger.Info("client disconnected", "subscriber_id", sub.ID())
}
