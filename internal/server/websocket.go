package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	eb "lar-simulation/internal/eventBus"
)

// Define a WebSocket upgrader.
var upgrader = websocket.Upgrader{
	// Allow any origin; the stream is read only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsHandler upgrades the connection to WebSocket and pushes events from the
// EventBus, JSON by default or msgpack with ?format=msgpack.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && format != eb.FormatJSON && format != eb.FormatMsgpack {
		http.Error(w, "format must be json or msgpack", http.StatusBadRequest)
		return
	}
	if !s.track() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.conns.Done()

	// Subscribe before the handshake completes so the client sees every
	// event published after Dial returns.
	eventCh := s.bus.Subscribe()
	defer s.bus.Unsubscribe(eventCh)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("[ws] upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// The reader only notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	msgType := websocket.TextMessage
	if format == eb.FormatMsgpack {
		msgType = websocket.BinaryMessage
	}
	s.log.Debug("[ws] client connected", "remote", r.RemoteAddr, "format", format)

	for {
		select {
		case <-closed:
			s.log.Debug("[ws] client disconnected", "remote", r.RemoteAddr)
			return
		case <-s.quit:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			conn.Close()
			<-closed
			return
		case event := <-eventCh:
			data, err := eb.Encode(format, event)
			if err != nil {
				s.log.Warn("[ws] encode failed", "err", err)
				continue
			}
			if err := conn.WriteMessage(msgType, data); err != nil {
				s.log.Debug("[ws] write failed", "err", err)
				conn.Close()
				<-closed
				return
			}
		}
	}
}
