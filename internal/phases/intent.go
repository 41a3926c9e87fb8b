package phases

import (
	"context"
	"fmt"

	"github.com/graphmind/graphmind/internal/events"
	"github.com/graphmind/graphmind/internal/graphmodel"
	"github.com/graphmind/graphmind/internal/llm"
)

// IntentRunner lifts free text (or a vision-derived description — the
// diagram-to-text step itself is an opaque external collaborator per §0)
// into an Intent GraphState. Grounded on
// original_source/backend/agent.py:generate_intent_stream.
type IntentRunner struct {
	Deps
}

// NewIntentRunner builds an IntentRunner.
func NewIntentRunner(d Deps) *IntentRunner { return &IntentRunner{Deps: d} }

const intentSystemPrompt = `You design minimal cloud architectures from a description.
Respond with JSON only: {"resources": [...], "edges": [...], "reasoning": "..."}.
Each resource has an id, a type drawn from the abstract catalog (compute_service,
relational_database, object_storage, load_balancer, message_queue, pubsub_topic,
cache_service, network_container, network_zone), properties, and optional parent_id.
Each edge has source, target, relation.`

// Run builds a graph from a free-text description. description may
// already be the output of a vision step run by the caller.
func (r *IntentRunner) Run(ctx context.Context, description string) (*graphmodel.GraphState, error) {
	r.Emitter.Log("Initializing Intent Specialist...")
	r.Emitter.Stage("Phase 1: Intent", events.StageRunning)

	prompt := fmt.Sprintf("Design a cloud architecture for: %s", description)
	resp, err := r.Model.GenerateStream(ctx, prompt, llm.Options{SystemPrompt: intentSystemPrompt, Mode: llm.ModeJSON})
	if err != nil {
		r.Emitter.Stage("Phase 1: Intent", events.StageFailed)
		return nil, graphmodel.NewError("phases.Intent.Run", "model_call", err)
	}

	payload, err := llm.ExtractJSON(resp.Content)
	if err != nil {
		r.Emitter.Stage("Phase 1: Intent", events.StageFailed)
		return nil, graphmodel.NewError("phases.Intent.Run", "extract", err)
	}
	payload = llm.NormalizeGraphPayload(payload)

	graph, err := decodeGraph(payload, graphmodel.PhaseIntent)
	if err != nil {
		r.Emitter.Stage("Phase 1: Intent", events.StageFailed)
		return nil, graphmodel.NewError("phases.Intent.Run", "decode", err)
	}

	if err := validateReferentialIntegrity(graph); err != nil {
		r.Emitter.Stage("Phase 1: Intent", events.StageFailed)
		return nil, err
	}

	r.Emitter.Stage("Phase 1: Intent", events.StageSuccess)
	r.Emitter.GraphSnapshot(graph)
	r.Emitter.Control("wait_confirmation", "reasoning")
	return graph, nil
}
