package archloop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmind/graphmind/internal/config"
	"github.com/graphmind/graphmind/internal/events"
	"github.com/graphmind/graphmind/internal/graphmodel"
	"github.com/graphmind/graphmind/internal/llm"
	"github.com/graphmind/graphmind/internal/logger"
	"github.com/graphmind/graphmind/internal/phases"
)

type fixedProvider struct {
	response string
}

func (f *fixedProvider) Name() string { return "fixed" }

func (f *fixedProvider) GenerateResponse(ctx context.Context, prompt string, opts llm.Options) (*llm.Response, error) {
	return &llm.Response{Content: f.response}, nil
}

func (f *fixedProvider) GenerateStream(ctx context.Context, prompt string, opts llm.Options) (<-chan llm.StreamChunk, error) {
	resp, err := f.GenerateResponse(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	return llm.ChunksFromText(resp.Content), nil
}

func TestLoopConvergesWhenExpansionIsStable(t *testing.T) {
	intent := graphmodel.NewGraphState(graphmodel.PhaseIntent)
	intent.Resources = []graphmodel.Resource{{ID: "web", Type: "compute_service"}}

	policyResp := `{"resources":[{"id":"web","type":"compute_service"}],"edges":[],"decisions":[],"violations_remaining":0}`
	expansionResp := `{"resources":[{"id":"web","type":"aws_instance"}],"edges":[]}`

	emitter := events.New(64)
	policyClient := llm.New(&fixedProvider{response: policyResp}, logger.NoOp())
	expansionClient := llm.New(&fixedProvider{response: expansionResp}, logger.NoOp())

	policy := phases.NewPolicyRunner(phases.Deps{Model: policyClient, Emitter: emitter}, 3)
	expansion := phases.NewExpansionRunner(phases.Deps{Model: expansionClient, Emitter: emitter})
	cost := phases.NewCostRunner(emitter, config.NewCostTable(map[string]float64{"instance": 40}))

	loop := New(policy, expansion, cost, emitter, config.ArchLoopConfig{MaxGlobalCycles: 3})

	outcome, err := loop.Run(context.Background(), intent)
	require.NoError(t, err)
	assert.True(t, outcome.Converged)
	assert.Equal(t, 2, outcome.Cycles, "a stable expansion converges on the second global cycle (first establishes prevHash)")
	assert.Equal(t, "$40/mo", outcome.Implementation.Metadata["cost_estimate"])
}

func TestLoopStopsAtMaxGlobalCyclesWhenNeverStable(t *testing.T) {
	intent := graphmodel.NewGraphState(graphmodel.PhaseIntent)
	intent.Resources = []graphmodel.Resource{{ID: "web", Type: "compute_service"}}

	policyResp := `{"resources":[{"id":"web","type":"compute_service"}],"edges":[],"decisions":[],"violations_remaining":0}`

	emitter := events.New(64)
	policyClient := llm.New(&fixedProvider{response: policyResp}, logger.NoOp())
	expansion := phases.NewExpansionRunner(phases.Deps{Model: newUnstable(), Emitter: emitter})
	policy := phases.NewPolicyRunner(phases.Deps{Model: policyClient, Emitter: emitter}, 3)
	cost := phases.NewCostRunner(emitter, config.NewCostTable(map[string]float64{"instance": 40}))

	loop := New(policy, expansion, cost, emitter, config.ArchLoopConfig{MaxGlobalCycles: 3})

	outcome, err := loop.Run(context.Background(), intent)
	require.NoError(t, err)
	assert.False(t, outcome.Converged)
	assert.Equal(t, 3, outcome.Cycles)
}

// newUnstable builds a Client whose provider alternates its expansion
// output so the loop never converges, forcing the exhaustion path.
func newUnstable() *llm.Client {
	return llm.New(&alternatingProvider{}, logger.NoOp())
}

type alternatingProvider struct{ n int }

func (a *alternatingProvider) Name() string { return "alternating" }

func (a *alternatingProvider) GenerateResponse(ctx context.Context, prompt string, opts llm.Options) (*llm.Response, error) {
	a.n++
	if a.n%2 == 0 {
		return &llm.Response{Content: `{"resources":[{"id":"web","type":"aws_instance"}],"edges":[]}`}, nil
	}
	return &llm.Response{Content: `{"resources":[{"id":"web","type":"aws_instance_v2"}],"edges":[]}`}, nil
}

func (a *alternatingProvider) GenerateStream(ctx context.Context, prompt string, opts llm.Options) (<-chan llm.StreamChunk, error) {
	resp, err := a.GenerateResponse(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	return llm.ChunksFromText(resp.Content), nil
}
