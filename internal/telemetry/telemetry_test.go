package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresServiceName(t *testing.T) {
	_, err := New("", "")
	require.Error(t, err)
}

func TestNewDefaultsToStdoutExporterWithoutEndpoint(t *testing.T) {
	p, err := New("graphmind-test", "")
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Instruments())
}

func TestInstrumentsRecordWithoutPanicking(t *testing.T) {
	p, err := New("graphmind-test", "")
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	ctx := context.Background()
	inst := p.Instruments()

	assert.NotPanics(t, func() {
		inst.RecordPhaseCycle(ctx, "policy", 1)
		inst.RecordArchLoopOutcome(ctx, true, 2)
		inst.RecordPipelineStage(ctx, "validate", true, 0.5)
		inst.RecordPipelineRepair(ctx, "plan", 1)
		inst.RecordDropped(ctx, map[string]int{"log": 3})
	})
}

func TestShutdownIsIdempotent(t *testing.T) {
	p, err := New("graphmind-test", "")
	require.NoError(t, err)

	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()))
}
