// Package phases implements the four Phase Runners (C4): Intent, Policy,
// Expansion, and Cost. Each is a stateless transformation of an input
// GraphState into an output GraphState, emitting events along the way.
//
// Every runner is expressed as the "Event | Terminal(graph)" tagged
// variant the spec calls for (§9 redesign note): a Run method that emits
// through an *events.Emitter as it works and returns the terminal
// GraphState (or an error) only at the end, rather than returning a
// channel the caller must range over and type-switch. The lazy-generator
// idiom is adapted from the teacher's workflow engine
// (orchestration/workflow_engine.go), which drives a DAG of steps
// through a single synchronous call per node rather than a persistent
// worker per node; here a single runner call plays the same role for one
// phase.
package phases

import (
	"context"

	"github.com/graphmind/graphmind/internal/events"
	"github.com/graphmind/graphmind/internal/graphmodel"
	"github.com/graphmind/graphmind/internal/llm"
)

// Deps bundles the collaborators every runner needs: a model client to
// call and an emitter to report progress through. Individual runners
// accept additional config (max cycles, cost table) as constructor
// arguments instead of cramming everything into one god-struct.
type Deps struct {
	Model   *llm.Client
	Emitter *events.Emitter
}

// Result is the terminal outcome of a runner: either a new GraphState or
// an error. Callers (the Architecture Loop, the Orchestrator) inspect
// Err first.
type Result struct {
	Graph *graphmodel.GraphState
	Err   error
}
