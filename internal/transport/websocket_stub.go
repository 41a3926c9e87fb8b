//go:build !websocket

// Stub for ServeWebSocket when the module is built without the
// 'websocket' tag, so internal/transport compiles (and cmd/graphmind's
// routing table stays uniform) without pulling in gorilla/websocket by
// default. Grounded on ui/transports/websocket/stub.go's graceful
// degradation response shape.
package transport

import (
	"net/http"

	"github.com/graphmind/graphmind/internal/events"
	"github.com/graphmind/graphmind/internal/logger"
)

// ServeWebSocket reports the transport unavailable; build with
// -tags websocket to enable it.
func ServeWebSocket(w http.ResponseWriter, r *http.Request, emitter *events.Emitter, log logger.Logger) {
	emitter.Close()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(`{"error":"websocket transport not available - build with -tags websocket"}`))
}
