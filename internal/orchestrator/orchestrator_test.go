package orchestrator

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
	"github.com/graphmind/graphmind/internal/session"
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

func newOrchestrator(t *testing.T, responses ...string) *Orchestrator {
	t.Helper()
	dir := t.TempDir()
	sess, err := session.NewManager("sess-test", dir, nil, logger.NoOp())
	require.NoError(t, err)

	model := llm.New(&scriptedProvider{responses: responses}, logger.NoOp())
	cfg := config.Default()
	cfg.Pipeline.WorkDir = t.TempDir()
	cfg.Pipeline.SimulatePipeline = true
	cfg.ArchLoop.MaxGlobalCycles = 2
	cfg.ArchLoop.MaxPolicyCycles = 2
	table := config.NewCostTable(cfg.CostTable)

	return New(sess, model, table, cfg, logger.NoOp())
}

func drain(e *events.Emitter) []events.Event {
	var out []events.Event
	for {
		ev, ok := e.Next()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func lastEvent(evs []events.Event) events.Event {
	return evs[len(evs)-1]
}

const intentResponse = `{"resources":[{"id":"web","type":"compute_service"}],"edges":[],"reasoning":"a web tier"}`
const policyResponse = `{"resources":[{"id":"web","type":"compute_service"}],"edges":[],"decisions":[],"violations_remaining":0}`
const expansionResponse = `{"resources":[{"id":"web","type":"aws_instance"}],"edges":[]}`

func TestSubmitRejectedOutsideIdle(t *testing.T) {
	o := newOrchestrator(t, intentResponse)
	require.NoError(t, o.Session.SetPhase(graphmodel.SessionReasonedReview))

	evs := drain(o.Submit(context.Background(), "a web app", "draft", true))
	require.NotEmpty(t, evs)
	assert.Equal(t, events.KindError, lastEvent(evs).Kind)
}

func TestSubmitThenApproveAdvancesToReasonedReview(t *testing.T) {
	o := newOrchestrator(t, intentResponse, policyResponse, expansionResponse)

	submitEvs := drain(o.Submit(context.Background(), "a web app", "draft", true))
	require.Equal(t, events.KindResult, lastEvent(submitEvs).Kind)
	assert.Equal(t, graphmodel.SessionIntentReview, o.Session.State().Phase)

	approveEvs := drain(o.Approve(context.Background()))
	require.Equal(t, events.KindResult, lastEvent(approveEvs).Kind)
	assert.Equal(t, graphmodel.SessionReasonedReview, o.Session.State().Phase)

	state := o.Session.State()
	require.NotNil(t, state.ImplementationGraph)
	assert.Equal(t, "aws_instance", state.ImplementationGraph.Resources[0].Type)
}

func TestApproveRejectedOutsideIntentReview(t *testing.T) {
	o := newOrchestrator(t, intentResponse)
	evs := drain(o.Approve(context.Background()))
	require.NotEmpty(t, evs)
	assert.Equal(t, events.KindError, lastEvent(evs).Kind)
}

func TestModifyReasonedSetsGraphPendingAndConfirmAcceptsIt(t *testing.T) {
	modifyResponse := `{"add_resources":[{"id":"cache","type":"aws_elasticache_cluster"}],
"remove_resources":[],"add_edges":[],"remove_edges":[],"reasoning":"add a cache"}`
	confirmPolicy := `{"resources":[{"id":"web","type":"aws_instance"},{"id":"cache","type":"aws_elasticache_cluster"}],
"edges":[],"decisions":[],"violations_remaining":0}`
	confirmExpansion := `{"resources":[{"id":"web","type":"aws_instance"},{"id":"cache","type":"aws_elasticache_cluster"}],"edges":[]}`

	o := newOrchestrator(t, intentResponse, policyResponse, expansionResponse, modifyResponse, confirmPolicy, confirmExpansion)

	require.Equal(t, events.KindResult, lastEvent(drain(o.Submit(context.Background(), "a web app", "draft", true))).Kind)
	require.Equal(t, events.KindResult, lastEvent(drain(o.Approve(context.Background()))).Kind)

	modifyEvs := drain(o.ModifyReasoned(context.Background(), "add a cache layer"))
	require.Equal(t, events.KindResult, lastEvent(modifyEvs).Kind)
	assert.Equal(t, graphmodel.SessionGraphPending, o.Session.State().Phase)
	require.NotNil(t, o.Session.State().PendingGraph)

	var pendingHasProposedCache bool
	for _, r := range o.Session.State().PendingGraph.Resources {
		if r.ID == "cache" && r.Status == graphmodel.StatusProposed {
			pendingHasProposedCache = true
		}
	}
	assert.True(t, pendingHasProposedCache, "newly added resource must carry status=proposed in the pending graph (I6)")

	confirmEvs := drain(o.ConfirmModification(context.Background(), true))
	require.Equal(t, events.KindResult, lastEvent(confirmEvs).Kind)
	assert.Equal(t, graphmodel.SessionReasonedReview, o.Session.State().Phase)
	assert.Nil(t, o.Session.State().PendingGraph)
}

func TestConfirmModificationRejectDiscardsPending(t *testing.T) {
	o := newOrchestrator(t, intentResponse, policyResponse, expansionResponse)

	require.Equal(t, events.KindResult, lastEvent(drain(o.Submit(context.Background(), "a web app", "draft", true))).Kind)
	require.Equal(t, events.KindResult, lastEvent(drain(o.Approve(context.Background()))).Kind)

	pending := graphmodel.NewGraphState(graphmodel.PhaseImplementation)
	pending.Resources = []graphmodel.Resource{{ID: "rejected", Type: "aws_instance", Status: graphmodel.StatusProposed}}
	require.NoError(t, o.Session.SetPendingGraph(pending))
	require.NoError(t, o.Session.SetPhase(graphmodel.SessionGraphPending))

	evs := drain(o.ConfirmModification(context.Background(), false))
	require.Equal(t, events.KindResult, lastEvent(evs).Kind)
	assert.Equal(t, graphmodel.SessionReasonedReview, o.Session.State().Phase)
	assert.Nil(t, o.Session.State().PendingGraph)
}

func TestDeployRunsSimulatedPipelineAndReachesDeployed(t *testing.T) {
	o := newOrchestrator(t, intentResponse, policyResponse, expansionResponse)

	require.Equal(t, events.KindResult, lastEvent(drain(o.Submit(context.Background(), "a web app", "deploy", true))).Kind)
	require.Equal(t, events.KindResult, lastEvent(drain(o.Approve(context.Background()))).Kind)

	deployEvs := drain(o.Deploy(context.Background(), "deploy", true))
	require.Equal(t, events.KindResult, lastEvent(deployEvs).Kind)
	assert.Equal(t, graphmodel.SessionDeployed, o.Session.State().Phase)
}

func TestDeployRejectedWithoutImplementationGraph(t *testing.T) {
	o := newOrchestrator(t, intentResponse)
	require.NoError(t, o.Session.SetPhase(graphmodel.SessionReasonedReview))

	evs := drain(o.Deploy(context.Background(), "deploy", true))
	require.NotEmpty(t, evs)
	assert.Equal(t, events.KindError, lastEvent(evs).Kind)
}

func TestResetReturnsToIdleFromAnyPhase(t *testing.T) {
	o := newOrchestrator(t, intentResponse)
	require.NoError(t, o.Session.SetPhase(graphmodel.SessionCodePending))

	require.NoError(t, o.Reset())
	assert.Equal(t, graphmodel.SessionIdle, o.Session.State().Phase)
}

func TestBlastRadiusComputesContainedDescendants(t *testing.T) {
	o := newOrchestrator(t, intentResponse)
	require.NoError(t, o.Store.Import(&graphmodel.GraphState{
		GraphPhase: graphmodel.PhaseImplementation,
		Resources: []graphmodel.Resource{
			{ID: "vpc-main", Type: "aws_vpc"},
			{ID: "subnet-a", Type: "aws_subnet"},
			{ID: "web", Type: "aws_instance"},
		},
		Edges: []graphmodel.Edge{
			{Source: "vpc-main", Target: "subnet-a", Relation: graphmodel.RelationContains},
			{Source: "subnet-a", Target: "web", Relation: graphmodel.RelationContains},
		},
	}))

	analysis, err := o.BlastRadius("vpc-main")
	require.NoError(t, err)
	assert.Equal(t, 2, analysis.AffectedCount)
	assert.Contains(t, analysis.AffectedNodeIDs, "web")
	assert.Equal(t, "Medium", analysis.ImpactLevel)
}

func TestBlastRadiusFlagsCostSensitiveContainmentAsCritical(t *testing.T) {
	o := newOrchestrator(t, intentResponse)
	require.NoError(t, o.Store.Import(&graphmodel.GraphState{
		GraphPhase: graphmodel.PhaseImplementation,
		Resources: []graphmodel.Resource{
			{ID: "vpc-main", Type: "aws_vpc"},
			{ID: "nat-a", Type: "aws_nat_gateway"},
		},
		Edges: []graphmodel.Edge{
			{Source: "vpc-main", Target: "nat-a", Relation: graphmodel.RelationContains},
		},
	}))

	analysis, err := o.BlastRadius("vpc-main")
	require.NoError(t, err)
	assert.Equal(t, "Critical", analysis.ImpactLevel)
}

func TestConfirmationRequiredFlagsCostSensitiveTypes(t *testing.T) {
	o := newOrchestrator(t, intentResponse)
	impl := graphmodel.NewGraphState(graphmodel.PhaseImplementation)
	impl.Resources = []graphmodel.Resource{
		{ID: "web", Type: "aws_instance"},
		{ID: "db", Type: "aws_db_instance"},
	}
	require.NoError(t, o.Session.SetImplementationGraph(impl))

	result := o.ConfirmationRequired()
	assert.True(t, result.Required)
	require.Len(t, result.Reasons, 1)
	assert.Equal(t, "db", result.Reasons[0].Resource)
}
