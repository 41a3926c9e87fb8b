package phases

import (
	"fmt"
	"strings"

	"github.com/graphmind/graphmind/internal/config"
	"github.com/graphmind/graphmind/internal/events"
	"github.com/graphmind/graphmind/internal/graphmodel"
)

// CostRunner annotates an Implementation graph with a structural cost
// estimate. No call to the model or a live pricing source is made — the
// rule table is a configured substring → monthly-unit-cost map (§4.4.4,
// Open Question (b)). Grounded on
// original_source/backend/agent.py:calculate_cost_gen.
type CostRunner struct {
	Emitter *events.Emitter
	Table   *config.CostTable
}

// NewCostRunner builds a CostRunner reading through table so a running
// architecture loop picks up hot-reloaded cost rules.
func NewCostRunner(emitter *events.Emitter, table *config.CostTable) *CostRunner {
	return &CostRunner{Emitter: emitter, Table: table}
}

// Run populates metadata.cost_estimate, metadata.cost_breakdown, and
// metadata.architecture_version_id on implementation, returning the same
// *GraphState for convenience.
func (r *CostRunner) Run(implementation *graphmodel.GraphState) *graphmodel.GraphState {
	r.Emitter.Stage("Phase 4: Cost", events.StageRunning)

	rules := r.Table.Rules()
	breakdown := make(map[string]float64, len(implementation.Resources))
	var total float64
	for _, res := range implementation.Resources {
		unit := matchCostRule(res.Type, rules)
		if unit == 0 {
			continue
		}
		breakdown[res.ID] = unit
		total += unit
	}

	if implementation.Metadata == nil {
		implementation.Metadata = map[string]interface{}{}
	}
	implementation.Metadata["cost_estimate"] = formatCostEstimate(total)
	implementation.Metadata["cost_breakdown"] = breakdown
	implementation.Metadata["architecture_version_id"] = implementation.GraphVersion

	r.Emitter.Stage("Phase 4: Cost", events.StageSuccess)
	return implementation
}

// formatCostEstimate renders total with a currency prefix and trailing
// zero cents trimmed (§8 S1 expects exactly "$100/mo", not "$100.00/mo"),
// keeping cents only when the total isn't a whole dollar amount.
func formatCostEstimate(total float64) string {
	if total == float64(int64(total)) {
		return fmt.Sprintf("$%d/mo", int64(total))
	}
	return fmt.Sprintf("$%.2f/mo", total)
}

// matchCostRule finds the unit cost for a resource type via
// substring match against the rule table (e.g. "instance" matches
// "aws_instance" and "aws_db_instance" both). When several keys match,
// the one occurring earliest in the type wins, ties going to the longer
// key; a type no key matches costs 0.
func matchCostRule(resourceType string, rules map[string]float64) float64 {
	lower := strings.ToLower(resourceType)
	// Earliest match wins, so "db" beats the later "instance" in
	// "aws_db_instance".
	type rule struct {
		key  string
		cost float64
	}
	ordered := make([]rule, 0, len(rules))
	for k, v := range rules {
		ordered = append(ordered, rule{k, v})
	}
	best := rule{}
	bestPos := -1
	for _, rl := range ordered {
		pos := strings.Index(lower, rl.key)
		if rl.key == "" || pos < 0 {
			continue
		}
		if bestPos == -1 || pos < bestPos || (pos == bestPos && len(rl.key) > len(best.key)) {
			best, bestPos = rl, pos
		}
	}
	return best.cost
}
