package phases

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
)

type scriptedProvider struct {
	responses []string
	calls     int
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) GenerateResponse(ctx context.Context, prompt string, opts llm.Options) (*llm.Response, error) {
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return &llm.Response{Content: s.responses[idx]}, nil
}

func (s *scriptedProvider) GenerateStream(ctx context.Context, prompt string, opts llm.Options) (<-chan llm.StreamChunk, error) {
	resp, err := s.GenerateResponse(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	return llm.ChunksFromText(resp.Content), nil
}

func newTestClient(responses ...string) *llm.Client {
	p := &scriptedProvider{responses: responses}
	return llm.New(p, logger.NoOp())
}

func TestIntentRunnerBuildsGraphFromModelJSON(t *testing.T) {
	resp := `{"resources":[{"id":"web","type":"compute_service"},{"id":"db","type":"relational_database"}],
"edges":[{"from":"web","to":"db"}],"reasoning":"basic web+db"}`
	emitter := events.New(32)
	r := NewIntentRunner(Deps{Model: newTestClient(resp), Emitter: emitter})

	graph, err := r.Run(context.Background(), "a web app with a database")
	require.NoError(t, err)
	assert.Equal(t, graphmodel.PhaseIntent, graph.GraphPhase)
	assert.Len(t, graph.Resources, 2)
	assert.Equal(t, "web", graph.Edges[0].Source)
	assert.Equal(t, "db", graph.Edges[0].Target)
}

func TestPolicyRunnerRejectsMonotonicityViolation(t *testing.T) {
	intent := graphmodel.NewGraphState(graphmodel.PhaseIntent)
	intent.Resources = []graphmodel.Resource{
		{ID: "web", Type: "compute_service"},
		{ID: "db", Type: "relational_database"},
	}
	intent.Edges = []graphmodel.Edge{{Source: "web", Target: "db", Relation: graphmodel.RelationConnectsTo}}

	// Cycle 1 drops "db" (monotonicity violation, rejected);
	// cycle 2 keeps both and reports convergence.
	dropsDB := `{"resources":[{"id":"web","type":"compute_service"}],"edges":[],"decisions":[],"violations_remaining":1}`
	keepsAll := `{"resources":[{"id":"web","type":"compute_service"},{"id":"db","type":"relational_database"}],
"edges":[{"source":"web","target":"db"}],
"decisions":[{"trigger":"isolation check","affected_nodes":["db"],"action":"require private subnet","result":"applied"}],
"violations_remaining":0}`

	emitter := events.New(32)
	r := NewPolicyRunner(Deps{Model: newTestClient(dropsDB, keepsAll), Emitter: emitter}, 3)

	reasoned, decisions, err := r.Run(context.Background(), intent)
	require.NoError(t, err)
	assert.True(t, reasoned.IDs()["db"], "db must survive the policy loop despite cycle 1 dropping it")
	require.Len(t, decisions, 1)
	assert.Contains(t, decisions[0].AffectedNodes, "db")
}

func TestExpansionRunnerWarnsOnRemainingAbstractType(t *testing.T) {
	reasoned := graphmodel.NewGraphState(graphmodel.PhaseReasoned)
	reasoned.Resources = []graphmodel.Resource{{ID: "db", Type: "relational_database"}}

	// The model fails to expand db into a concrete type.
	resp := `{"resources":[{"id":"db","type":"relational_database"}],"edges":[]}`
	emitter := events.New(32)
	r := NewExpansionRunner(Deps{Model: newTestClient(resp), Emitter: emitter})

	implementation, err := r.Run(context.Background(), reasoned)
	require.NoError(t, err)
	assert.Equal(t, "relational_database", implementation.Resources[0].Type)
}

func TestCostRunnerPopulatesMetadata(t *testing.T) {
	implementation := graphmodel.NewGraphState(graphmodel.PhaseImplementation)
	implementation.Resources = []graphmodel.Resource{
		{ID: "web", Type: "aws_instance"},
		{ID: "db", Type: "aws_db_instance"},
		{ID: "lb", Type: "aws_lb"},
	}

	table := config.NewCostTable(map[string]float64{"instance": 40, "db": 60, "lb": 20, "nat": 30})
	emitter := events.New(32)
	r := NewCostRunner(emitter, table)

	out := r.Run(implementation)
	breakdown := out.Metadata["cost_breakdown"].(map[string]float64)
	assert.Equal(t, 60.0, breakdown["db"], "db should match the more specific 'db' rule, not the looser 'instance' substring")
	assert.Equal(t, 40.0, breakdown["web"])
	assert.Equal(t, 20.0, breakdown["lb"])
	assert.Equal(t, "$120/mo", out.Metadata["cost_estimate"])
}
