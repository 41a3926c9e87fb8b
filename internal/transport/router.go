// Router wires the Orchestrator's actions onto a plain net/http.ServeMux
// (§6: "Exact routes are not normative"), wrapped in otelhttp for span
// propagation per SPEC_FULL §6. Each streaming action dispatches to
// ServeSSE or ServeWebSocket depending on a `?transport=` query
// parameter (default sse), both framing the same event records.
package transport

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/graphmind/graphmind/internal/events"
	"github.com/graphmind/graphmind/internal/graphmodel"
	"github.com/graphmind/graphmind/internal/logger"
	"github.com/graphmind/graphmind/internal/orchestrator"
)

// NewRouter builds the HTTP handler for one Orchestrator instance.
func NewRouter(o *orchestrator.Orchestrator, log logger.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/submit", streamHandler(log, func(r *http.Request) *events.Emitter {
		var body struct {
			Description      string `json:"description"`
			ExecutionMode    string `json:"execution_mode"`
			SimulatePipeline bool   `json:"simulate_pipeline"`
		}
		decodeBody(r, &body)
		return o.Submit(r.Context(), body.Description, body.ExecutionMode, body.SimulatePipeline)
	}))

	mux.HandleFunc("/approve", streamHandler(log, func(r *http.Request) *events.Emitter {
		return o.Approve(r.Context())
	}))

	mux.HandleFunc("/modify", streamHandler(log, func(r *http.Request) *events.Emitter {
		var body struct {
			Target      string `json:"target"`
			Instruction string `json:"instruction"`
		}
		decodeBody(r, &body)
		if body.Target == "reasoned" {
			return o.ModifyReasoned(r.Context(), body.Instruction)
		}
		return o.ModifyIntent(r.Context(), body.Instruction)
	}))

	mux.HandleFunc("/confirm_change", streamHandler(log, func(r *http.Request) *events.Emitter {
		var body struct {
			Accept bool `json:"accept"`
		}
		decodeBody(r, &body)
		return o.ConfirmModification(r.Context(), body.Accept)
	}))

	mux.HandleFunc("/deploy", streamHandler(log, func(r *http.Request) *events.Emitter {
		var body struct {
			ExecutionMode string `json:"execution_mode"`
			SimulateApply bool   `json:"simulate_apply"`
		}
		decodeBody(r, &body)
		return o.Deploy(r.Context(), body.ExecutionMode, body.SimulateApply)
	}))

	mux.HandleFunc("/reset", func(w http.ResponseWriter, r *http.Request) {
		if err := o.Reset(); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, o.Session.State())
	})

	mux.HandleFunc("/graph", func(w http.ResponseWriter, r *http.Request) {
		phase := graphmodel.PhaseImplementation
		if p := r.URL.Query().Get("phase"); p != "" {
			phase = graphmodel.GraphPhase(p)
		}
		writeJSON(w, o.Store.Export(phase))
	})

	mux.HandleFunc("/cost", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, o.CostTable.Rules())
	})

	mux.HandleFunc("/simulate/blast_radius", func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("target")
		analysis, err := o.BlastRadius(target)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, analysis)
	})

	mux.HandleFunc("/simulate/explain", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Description string `json:"description"`
		}
		decodeBody(r, &body)
		analysis, err := o.Think(r.Context(), body.Description)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, analysis)
	})

	return otelhttp.NewHandler(mux, "graphmind")
}

// streamHandler adapts an action that returns an Emitter into an HTTP
// handler, dispatching to SSE or WebSocket framing based on
// ?transport=websocket.
func streamHandler(log logger.Logger, action func(*http.Request) *events.Emitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		emitter := action(r)
		if r.URL.Query().Get("transport") == "websocket" {
			ServeWebSocket(w, r, emitter, log)
			return
		}
		ServeSSE(w, r, emitter, log)
	}
}

func decodeBody(r *http.Request, out interface{}) {
	_ = json.NewDecoder(r.Body).Decode(out)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
