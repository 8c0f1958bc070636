package ipc

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const wsReadLimit = 4096

// handleEventSocket upgrades the connection and streams snapshots and
// signals until either side closes. The first message is always a full
// state snapshot so a fresh shell renders without waiting for a dispatch.
func (s *Server) handleEventSocket(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(r); !ok {
		respondError(w, http.StatusUnauthorized, errNoToken)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.isWebSocketOriginAllowed,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := s.hub.register(conn, r.RemoteAddr)
	if client == nil {
		// Hub already closed; the server is shutting down.
		conn.Close()
		return
	}
	s.logger.Debug("event stream client connected", "remote", r.RemoteAddr)

	client.enqueue(Event{
		Type:      EventTypeSnapshot,
		Timestamp: time.Now(),
		Payload:   snapshotOf(s.engine.Store().Snapshot()),
	})

	go func() {
		client.writeLoop()
		s.hub.remove(client)
		conn.Close()
	}()

	// Reads exist only to notice disconnects and answer pings; client
	// payloads are ignored.
	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go func() {
		defer func() {
			s.hub.remove(client)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
