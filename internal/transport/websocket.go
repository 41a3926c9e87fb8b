//go:build websocket

// WebSocket framing for the same event stream SSE serves, for clients
// that want a persistent duplex connection instead of one-shot HTTP
// streaming. Grounded on ui/transports/websocket/websocket.go's
// upgrade-then-writePump shape, reduced to one-way (server push only —
// the Orchestrator's actions are triggered over plain HTTP, not over the
// socket) since this module has no chat-style bidirectional turn-taking.
package transport

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/graphmind/graphmind/internal/events"
	"github.com/graphmind/graphmind/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const pingInterval = 30 * time.Second

// ServeWebSocket upgrades the request and pushes emitter's records as
// JSON text frames until the stream closes or the client disconnects.
func ServeWebSocket(w http.ResponseWriter, r *http.Request, emitter *events.Emitter, log logger.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go watchForClientClose(conn, done)

	records := make(chan events.Event)
	go func() {
		defer close(records)
		for {
			ev, ok := emitter.Next()
			if !ok {
				return
			}
			select {
			case records <- ev:
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-records:
			if !ok {
				return
			}
			record, err := events.MarshalRecord(ev)
			if err != nil {
				log.Warn("websocket: failed to marshal event record", "error", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, record); err != nil {
				return
			}
		}
	}
}

// watchForClientClose blocks on reads (discarding any client-sent frame,
// since this transport is server-push-only) until the connection errors
// or closes, then signals done so the write loop can exit.
func watchForClientClose(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
