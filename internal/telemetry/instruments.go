package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments caches the counters/histograms this module records,
// created lazily on first use per name — same pattern as the teacher's
// MetricInstruments, narrowed to the handful of domain events this
// module actually emits (phase cycles, pipeline stages, dropped
// events) instead of a generic counter/histogram/gauge facade.
type Instruments struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

func newInstruments(meter metric.Meter) *Instruments {
	return &Instruments{
		meter:      meter,
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (i *Instruments) counter(name string) metric.Int64Counter {
	i.mu.Lock()
	defer i.mu.Unlock()
	if c, ok := i.counters[name]; ok {
		return c
	}
	c, _ := i.meter.Int64Counter(name)
	i.counters[name] = c
	return c
}

func (i *Instruments) histogram(name string) metric.Float64Histogram {
	i.mu.Lock()
	defer i.mu.Unlock()
	if h, ok := i.histograms[name]; ok {
		return h
	}
	h, _ := i.meter.Float64Histogram(name)
	i.histograms[name] = h
	return h
}

// RecordPhaseCycle records one Policy/Expansion/Cost runner invocation.
func (i *Instruments) RecordPhaseCycle(ctx context.Context, phase string, cycle int) {
	i.counter("graphmind.phase.cycles").Add(ctx, 1,
		metric.WithAttributes(attribute.String("phase", phase), attribute.Int("cycle", cycle)))
}

// RecordArchLoopOutcome records whether an architecture loop run
// converged within its cycle bound or was cut off by it.
func (i *Instruments) RecordArchLoopOutcome(ctx context.Context, converged bool, cycles int) {
	i.counter("graphmind.archloop.runs").Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("converged", converged)))
	i.histogram("graphmind.archloop.cycles").Record(ctx, float64(cycles))
}

// RecordPipelineStage records one Verification Pipeline stage's outcome
// and duration.
func (i *Instruments) RecordPipelineStage(ctx context.Context, stage string, success bool, durationSeconds float64) {
	i.counter("graphmind.pipeline.stage_total").Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage), attribute.Bool("success", success)))
	i.histogram("graphmind.pipeline.stage_duration_seconds").Record(ctx, durationSeconds,
		metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordPipelineRepair records one self-healing repair attempt between
// pipeline stages.
func (i *Instruments) RecordPipelineRepair(ctx context.Context, stage string, attempt int) {
	i.counter("graphmind.pipeline.repairs").Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage), attribute.Int("attempt", attempt)))
}

// RecordDropped reports an Emitter's overflow-drop counts, keyed by
// event kind, at stream completion.
func (i *Instruments) RecordDropped(ctx context.Context, dropped map[string]int) {
	for kind, n := range dropped {
		if n == 0 {
			continue
		}
		i.counter("graphmind.events.dropped").Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
	}
}
