package phases

import (
	"context"
	"fmt"

	"github.com/graphmind/graphmind/internal/events"
	"github.com/graphmind/graphmind/internal/graphmodel"
	"github.com/graphmind/graphmind/internal/llm"
)

// ExpansionRunner expands a Reasoned graph into an Implementation graph
// of concrete-provider resources (VPC/subnet/routing/primitives). Unlike
// the Policy Runner it does not retry on its own — structural violations
// are reported as warnings and it is the Architecture Loop that decides
// whether to iterate again (§4.4.3). Grounded on
// original_source/backend/agent.py:expand_architecture_gen.
type ExpansionRunner struct {
	Deps
}

// NewExpansionRunner builds an ExpansionRunner.
func NewExpansionRunner(d Deps) *ExpansionRunner { return &ExpansionRunner{Deps: d} }

const expansionSystemPrompt = `You translate an abstract cloud architecture into concrete AWS resources
(aws_vpc, aws_subnet, aws_route_table, aws_instance, aws_db_instance, aws_lb, aws_nat_gateway,
aws_s3_bucket, aws_sqs_queue, aws_sns_topic, aws_elasticache_cluster, aws_security_group, ...).
Preserve every input resource id. Respond with JSON: {"resources": [...], "edges": [...], "reasoning": "..."}.`

// Run expands reasoned into an Implementation GraphState. No abstract
// type (graphmodel.AbstractTypes) may remain in the output per I5; a
// violation is reported via a `stage{warning}` event rather than
// rejected outright, matching the Architecture Loop's "downgrade and
// re-iterate" contract.
func (r *ExpansionRunner) Run(ctx context.Context, reasoned *graphmodel.GraphState) (*graphmodel.GraphState, error) {
	r.Emitter.Stage("Phase 3: Expansion", events.StageRunning)

	prompt := fmt.Sprintf("Expand this reasoned architecture into concrete resources:\n%+v", reasoned)
	resp, err := r.Model.Generate(ctx, prompt, llm.Options{SystemPrompt: expansionSystemPrompt, Mode: llm.ModeJSON})
	if err != nil {
		r.Emitter.Stage("Phase 3: Expansion", events.StageFailed)
		return nil, graphmodel.NewError("phases.Expansion.Run", "model_call", err)
	}

	payload, err := llm.ExtractJSON(resp.Content)
	if err != nil {
		r.Emitter.Stage("Phase 3: Expansion", events.StageFailed)
		return nil, graphmodel.NewError("phases.Expansion.Run", "extract", err)
	}
	payload = llm.NormalizeGraphPayload(payload)

	implementation, err := decodeGraph(payload, graphmodel.PhaseImplementation)
	if err != nil {
		r.Emitter.Stage("Phase 3: Expansion", events.StageFailed)
		return nil, graphmodel.NewError("phases.Expansion.Run", "decode", err)
	}

	if err := validateReferentialIntegrity(implementation); err != nil {
		r.Emitter.Stage("Phase 3: Expansion", events.StageFailed)
		return nil, err
	}

	if remaining := remainingAbstractTypes(implementation); len(remaining) > 0 {
		r.Emitter.Log(fmt.Sprintf("warning: %d abstract-typed resources remain after expansion", len(remaining)))
		r.Emitter.Stage("Phase 3: Expansion", events.StageWarning)
	} else {
		r.Emitter.Stage("Phase 3: Expansion", events.StageSuccess)
	}

	return implementation, nil
}

// remainingAbstractTypes returns the ids of resources whose type is
// still one of the closed abstract-semantic types (I5 violation
// candidates).
func remainingAbstractTypes(g *graphmodel.GraphState) []string {
	var out []string
	for _, r := range g.Resources {
		if graphmodel.AbstractTypes[r.Type] {
			out = append(out, r.ID)
		}
	}
	return out
}
