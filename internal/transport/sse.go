// Package transport exposes the Orchestrator over HTTP: a
// Server-Sent-Events handler (always built, stdlib-only) and a WebSocket
// handler (gorilla/websocket, build-tagged), both framing the same
// newline-JSON event records (§6) the Orchestrator's *events.Emitter
// already produces via events.MarshalRecord. Grounded on
// ui/transports/sse/sse.go's header set, flush-per-event loop, and
// client-disconnect handling.
package transport

import (
	"fmt"
	"net/http"

	"github.com/graphmind/graphmind/internal/events"
	"github.com/graphmind/graphmind/internal/logger"
)

// ServeSSE drains emitter and writes each record as a `data: <json>\n\n`
// SSE frame, flushing after every record so the client sees progress
// incrementally rather than buffered until the stream closes (§2's
// "streams every phase's progress incrementally").
func ServeSSE(w http.ResponseWriter, r *http.Request, emitter *events.Emitter, log logger.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev, ok := emitter.Next()
		if !ok {
			return
		}
		record, err := events.MarshalRecord(ev)
		if err != nil {
			log.Warn("sse: failed to marshal event record", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n", record); err != nil {
			return
		}
		flusher.Flush()
	}
}
