// Package archloop implements the Architecture Loop (C5): the S0-S5
// state machine that repeatedly runs Policy → Expansion → structural
// Verify → Cost until the implementation graph reaches a fixed point or
// MAX_GLOBAL_CYCLES is exhausted. Grounded on
// orchestration/workflow_engine.go for the bounded cyclic-execution
// shape and original_source/backend/agent.py:stream_expanded_architecture
// for the convergence semantics.
package archloop

import (
	"fmt"

	"github.com/graphmind/graphmind/internal/graphmodel"
	"github.com/graphmind/graphmind/internal/graphstore"
)

// deniedConnections is the small provider-policy table of which concrete
// type pairs may be directly connected, per §4.5(c). Anything not listed
// is permitted — this is a denylist of known-bad pairs, not an
// allowlist, since the expansion model is free to introduce new
// concrete types the table hasn't seen yet.
var deniedConnections = map[[2]string]string{
	{"aws_instance", "aws_db_instance"}: "compute must not connect directly to a database; route through a private subnet boundary",
}

// VerifyResult is the outcome of one structural verification pass.
type VerifyResult struct {
	Warnings []string
}

// OK reports whether verification found no structural issues.
func (v VerifyResult) OK() bool { return len(v.Warnings) == 0 }

// Verify runs the four structural checks from §4.5: (a) parent_id
// resolves to a container-typed resource, (b) no orphan subnets, (c) no
// denied connects_to type pairs, (d) no cycles in the contains relation.
// Violations are reported as warnings, never errors: the Architecture
// Loop decides whether to re-iterate.
func Verify(g *graphmodel.GraphState) VerifyResult {
	var result VerifyResult

	typeByID := g.TypeByID()

	store := graphstore.New()
	for _, r := range g.Resources {
		store.AddNode(r)
	}
	for _, e := range g.Edges {
		_ = store.AddEdge(e)
	}

	for _, r := range g.Resources {
		if r.ParentID == "" {
			continue
		}
		parentType, ok := typeByID[r.ParentID]
		if !ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("resource %q has parent_id %q which does not exist", r.ID, r.ParentID))
			continue
		}
		if !isContainerType(parentType) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("resource %q's parent %q is not a container-typed resource", r.ID, r.ParentID))
		}
	}

	for _, r := range g.Resources {
		if isSubnetType(r.Type) && r.ParentID == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("subnet %q has no containing network", r.ID))
		}
	}

	for _, e := range g.Edges {
		if e.Relation != graphmodel.RelationConnectsTo {
			continue
		}
		srcType, dstType := typeByID[e.Source], typeByID[e.Target]
		if reason, denied := deniedConnections[[2]string{srcType, dstType}]; denied {
			result.Warnings = append(result.Warnings, fmt.Sprintf("connects_to %s -> %s denied: %s", e.Source, e.Target, reason))
		}
	}

	if store.HasCycle(graphmodel.RelationContains) {
		result.Warnings = append(result.Warnings, "cycle detected in contains relation")
	}

	return result
}

func isContainerType(t string) bool {
	switch t {
	case "aws_vpc", "aws_subnet", "network_container", "network_zone":
		return true
	default:
		return false
	}
}

func isSubnetType(t string) bool {
	return t == "aws_subnet"
}
