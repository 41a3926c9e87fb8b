package phases

import (
	"context"
	"fmt"
	"time"

	"github.com/graphmind/graphmind/internal/events"
	"github.com/graphmind/graphmind/internal/graphmodel"
	"github.com/graphmind/graphmind/internal/llm"
)

// policyResponse is the model's per-cycle reply shape: the updated
// graph, the decisions it made, and how many violations remain.
type policyResponse struct {
	Resources          []graphmodel.Resource `json:"resources"`
	Edges              []graphmodel.Edge     `json:"edges"`
	Reasoning          string                `json:"reasoning"`
	Decisions          []graphmodel.DecisionLogEntry `json:"decisions"`
	ViolationsRemaining int                  `json:"violations_remaining"`
}

// PolicyRunner runs the bounded self-correction loop (§4.4.2): up to
// MaxCycles rounds of model calls, each validated for monotonicity (V1)
// and semantic stability (V2) before its decisions are accepted.
// Grounded on original_source/backend/agent.py:apply_policies_gen.
type PolicyRunner struct {
	Deps
	MaxCycles int
}

// NewPolicyRunner builds a PolicyRunner bounded to maxCycles (0 defaults
// to 3, per §4.4.2).
func NewPolicyRunner(d Deps, maxCycles int) *PolicyRunner {
	if maxCycles <= 0 {
		maxCycles = 3
	}
	return &PolicyRunner{Deps: d, MaxCycles: maxCycles}
}

const policySystemPrompt = `You are a cloud security/cost policy reviewer. Given a graph, find
violations (e.g. a database reachable directly from a public-internet compute node) and correct
them while preserving every existing resource id. Respond with JSON:
{"resources": [...], "edges": [...], "decisions": [{"stage":"policy","trigger":"...","affected_nodes":["..."],"action":"...","result":"..."}],
"violations_remaining": <int>}. Never remove a resource id that was present in the input.`

// Run executes the policy loop over intent, returning the Reasoned
// graph and the decision entries accumulated across all accepted
// cycles (the caller appends these to the session's decision log).
func (r *PolicyRunner) Run(ctx context.Context, intent *graphmodel.GraphState) (*graphmodel.GraphState, []graphmodel.DecisionLogEntry, error) {
	r.Emitter.Stage("Phase 2: Policy", events.StageRunning)

	current := intent
	inputIDs := intent.IDs()
	inputTypes := intent.TypeByID()

	var allDecisions []graphmodel.DecisionLogEntry

	for cycle := 1; cycle <= r.MaxCycles; cycle++ {
		prompt := fmt.Sprintf("Review this graph for policy violations:\n%+v", current)
		resp, err := r.Model.Generate(ctx, prompt, llm.Options{SystemPrompt: policySystemPrompt, Mode: llm.ModeJSON})
		if err != nil {
			r.Emitter.Stage("Phase 2: Policy", events.StageFailed)
			return nil, nil, graphmodel.NewError("phases.Policy.Run", "model_call", err)
		}

		payload, err := llm.ExtractJSON(resp.Content)
		if err != nil {
			r.Emitter.Log(fmt.Sprintf("CRITICAL: policy cycle %d returned unparseable output, retrying", cycle))
			continue
		}
		payload = llm.NormalizeGraphPayload(payload)

		var parsed policyResponse
		if err := decodePolicyResponse(payload, &parsed); err != nil {
			r.Emitter.Log(fmt.Sprintf("CRITICAL: policy cycle %d decode failed, retrying", cycle))
			continue
		}

		candidate := graphmodel.NewGraphState(graphmodel.PhaseReasoned)
		candidate.Resources = parsed.Resources
		candidate.Edges = parsed.Edges
		candidate.Reasoning = parsed.Reasoning

		// (V1) Monotonicity: every input id must still be present.
		candidateIDs := candidate.IDs()
		missing := diffIDs(inputIDs, candidateIDs)
		if len(missing) > 0 {
			r.Emitter.Log(fmt.Sprintf("CRITICAL: policy cycle %d dropped ids %v, rejecting cycle", cycle, missing))
			continue
		}

		// (V2) Semantic stability: surviving ids must keep their intent type.
		candidateTypes := candidate.TypeByID()
		if !typesStable(inputTypes, candidateTypes) {
			r.Emitter.Log(fmt.Sprintf("CRITICAL: policy cycle %d changed a stable resource's type, rejecting cycle", cycle))
			continue
		}

		if err := validateReferentialIntegrity(candidate); err != nil {
			r.Emitter.Log(fmt.Sprintf("CRITICAL: policy cycle %d produced a dangling edge, rejecting cycle", cycle))
			continue
		}

		// (V3) Every returned decision is appended and emitted.
		now := time.Now()
		for i := range parsed.Decisions {
			parsed.Decisions[i].Stage = "policy"
			parsed.Decisions[i].Cycle = cycle
			if parsed.Decisions[i].Timestamp.IsZero() {
				parsed.Decisions[i].Timestamp = now
			}
			r.Emitter.Decision(parsed.Decisions[i])
		}
		allDecisions = append(allDecisions, parsed.Decisions...)
		current = candidate

		// (V4) Terminate on zero remaining violations or cycle exhaustion.
		if parsed.ViolationsRemaining == 0 {
			break
		}
	}

	r.Emitter.Stage("Phase 2: Policy", events.StageSuccess)
	return current, allDecisions, nil
}

func diffIDs(input, candidate map[string]bool) []string {
	var missing []string
	for id := range input {
		if !candidate[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func typesStable(inputTypes, candidateTypes map[string]string) bool {
	for id, t := range inputTypes {
		if ct, ok := candidateTypes[id]; ok && ct != t {
			return false
		}
	}
	return true
}

func decodePolicyResponse(payload map[string]interface{}, out *policyResponse) error {
	return remarshal(payload, out)
}
