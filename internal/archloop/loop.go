package archloop

import (
	"context"
	"fmt"

	"github.com/graphmind/graphmind/internal/config"
	"github.com/graphmind/graphmind/internal/events"
	"github.com/graphmind/graphmind/internal/graphmodel"
	"github.com/graphmind/graphmind/internal/graphstore"
	"github.com/graphmind/graphmind/internal/phases"
)

// Loop drives the S0-S5 architecture state machine (§4.5): Policy then
// Expansion then structural Verify, comparing the canonical hash of
// successive implementation graphs until it stops changing (a fixed
// point) or MaxGlobalCycles is exhausted.
type Loop struct {
	Policy    *phases.PolicyRunner
	Expansion *phases.ExpansionRunner
	Cost      *phases.CostRunner
	Emitter   *events.Emitter

	MaxGlobalCycles int
}

// New builds a Loop bounded to cfg.ArchLoop.MaxGlobalCycles (defaulting
// to 3 when unset).
func New(policy *phases.PolicyRunner, expansion *phases.ExpansionRunner, cost *phases.CostRunner, emitter *events.Emitter, cfg config.ArchLoopConfig) *Loop {
	max := cfg.MaxGlobalCycles
	if max <= 0 {
		max = 3
	}
	return &Loop{Policy: policy, Expansion: expansion, Cost: cost, Emitter: emitter, MaxGlobalCycles: max}
}

// Outcome is the Loop's terminal result.
type Outcome struct {
	Reasoned       *graphmodel.GraphState
	Implementation *graphmodel.GraphState
	Decisions      []graphmodel.DecisionLogEntry
	Cycles         int
	Converged      bool
}

// Run executes the loop starting from the approved Intent graph.
func (l *Loop) Run(ctx context.Context, intent *graphmodel.GraphState) (*Outcome, error) {
	var (
		prevHash       string
		reasoned       *graphmodel.GraphState
		lastImplementation *graphmodel.GraphState
		allDecisions   []graphmodel.DecisionLogEntry
		cycles         int
	)

	input := intent

	for cycles = 1; cycles <= l.MaxGlobalCycles; cycles++ {
		l.Emitter.Stage("Architecture Loop", events.StageRunning)

		var err error
		var decisions []graphmodel.DecisionLogEntry
		reasoned, decisions, err = l.Policy.Run(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("archloop: policy cycle %d: %w", cycles, err)
		}
		allDecisions = append(allDecisions, decisions...)

		implementation, err := l.Expansion.Run(ctx, reasoned)
		if err != nil {
			return nil, fmt.Errorf("archloop: expansion cycle %d: %w", cycles, err)
		}

		verification := Verify(implementation)
		if !verification.OK() {
			for _, w := range verification.Warnings {
				l.Emitter.Log("structural warning: " + w)
			}
			l.Emitter.Stage("Architecture Loop", events.StageWarning)
		}

		hash := graphstore.CanonicalHash(implementation)
		if hash == prevHash && cycles > 1 {
			l.Emitter.Decision(graphmodel.DecisionLogEntry{
				Stage:   "archloop",
				Cycle:   cycles,
				Trigger: "Convergence Check",
				Action:  "Fixed Point Reached",
				Result:  "converged",
			})
			final := l.Cost.Run(implementation)
			l.Emitter.Stage("Architecture Loop", events.StageSuccess)
			return &Outcome{
				Reasoned:       reasoned,
				Implementation: final,
				Decisions:      allDecisions,
				Cycles:         cycles,
				Converged:      true,
			}, nil
		}

		prevHash = hash
		lastImplementation = implementation
		// Per §4.5's state machine, S4's "input=S3.output" feeds the
		// just-verified implementation graph back into S1 as the next
		// cycle's policy input, not the reasoned graph — each cycle
		// re-reviews the concrete architecture, not the abstract one.
		input = implementation
	}

	// Exhausted MaxGlobalCycles without converging: the last S3 output is
	// emitted with a warning and treated as final (§4.5) — no further
	// model calls are made.
	l.Emitter.Log(fmt.Sprintf("warning: architecture loop exhausted %d cycles without reaching a fixed point", l.MaxGlobalCycles))
	final := l.Cost.Run(lastImplementation)
	l.Emitter.Stage("Architecture Loop", events.StageWarning)
	return &Outcome{
		Reasoned:       reasoned,
		Implementation: final,
		Decisions:      allDecisions,
		Cycles:         l.MaxGlobalCycles,
		Converged:      false,
	}, nil
}
