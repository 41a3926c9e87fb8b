package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmind/graphmind/internal/graphmodel"
	"github.com/graphmind/graphmind/internal/logger"
)

func TestManagerPersistsAndReloadsPreferringImplementationGraph(t *testing.T) {
	dir := t.TempDir()

	m, err := NewManager("sess-1", dir, nil, logger.NoOp())
	require.NoError(t, err)

	intent := graphmodel.NewGraphState(graphmodel.PhaseIntent)
	reasoned := graphmodel.NewGraphState(graphmodel.PhaseReasoned)
	impl := graphmodel.NewGraphState(graphmodel.PhaseImplementation)
	impl.Resources = []graphmodel.Resource{{ID: "web", Type: "aws_instance"}}

	require.NoError(t, m.SetIntentGraph(intent))
	require.NoError(t, m.SetReasonedGraph(reasoned))
	require.NoError(t, m.SetImplementationGraph(impl))
	require.NoError(t, m.SetPhase(graphmodel.SessionReasonedReview))
	require.NoError(t, m.AppendDecisions(graphmodel.DecisionLogEntry{Stage: "policy", Cycle: 1}))

	reopened, err := NewManager("sess-1", dir, nil, logger.NoOp())
	require.NoError(t, err)
	state := reopened.State()

	assert.Equal(t, graphmodel.SessionReasonedReview, state.Phase)
	require.NotNil(t, state.ImplementationGraph)
	assert.Len(t, state.ImplementationGraph.Resources, 1)
	assert.Equal(t, "web", state.ImplementationGraph.Resources[0].ID)
	assert.Len(t, state.History, 1)
}

func TestManagerHardResetClearsDiskAndMemory(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager("sess-2", dir, nil, logger.NoOp())
	require.NoError(t, err)

	intent := graphmodel.NewGraphState(graphmodel.PhaseIntent)
	require.NoError(t, m.SetIntentGraph(intent))
	require.NoError(t, m.SetPhase(graphmodel.SessionIntentReview))

	require.NoError(t, m.HardReset())
	assert.Equal(t, graphmodel.SessionIdle, m.State().Phase)
	assert.Nil(t, m.State().IntentGraph)

	reopened, err := NewManager("sess-2", dir, nil, logger.NoOp())
	require.NoError(t, err)
	assert.Equal(t, graphmodel.SessionIdle, reopened.State().Phase)
	assert.Nil(t, reopened.State().IntentGraph)
}

func TestManagerPendingGraphClearedOnNil(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager("sess-3", dir, nil, logger.NoOp())
	require.NoError(t, err)

	pending := graphmodel.NewGraphState(graphmodel.PhaseImplementation)
	require.NoError(t, m.SetPendingGraph(pending))
	assert.NotNil(t, m.State().PendingGraph)

	require.NoError(t, m.SetPendingGraph(nil))
	assert.Nil(t, m.State().PendingGraph)

	reopened, err := NewManager("sess-3", dir, nil, logger.NoOp())
	require.NoError(t, err)
	assert.Nil(t, reopened.State().PendingGraph)
}
