package orchestrator

import (
	"fmt"

	"github.com/graphmind/graphmind/internal/graphmodel"
	"github.com/graphmind/graphmind/internal/llm"
)

// decodePlanDiff turns a brace-extracted, alias-normalized model payload
// into a PlanDiff. It does not route through llm.NormalizeGraphPayload's
// top-level add_resources/add_edges remap (that collapses a diff into a
// single resources/edges list, which is right for a full-graph phase
// response but wrong here — a diff must keep additions and removals
// distinct), but does reuse the endpoint/parent key aliasing per edge and
// resource so a modification prompt can use the same loose vocabulary the
// phase prompts do.
func decodePlanDiff(payload map[string]interface{}) (*graphmodel.PlanDiff, error) {
	normalizeEdgeKeys(payload)

	var diff graphmodel.PlanDiff
	for _, key := range []string{"add_resources", "resources"} {
		if v, ok := payload[key]; ok {
			payload["add_resources"] = v
			break
		}
	}
	if resources, ok := payload["add_resources"].([]interface{}); ok {
		for _, item := range resources {
			r, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if v, ok := r["parent"]; ok {
				if _, exists := r["parent_id"]; !exists {
					r["parent_id"] = v
				}
				delete(r, "parent")
			}
		}
	}
	for _, key := range []string{"add_edges", "edges"} {
		if v, ok := payload[key]; ok {
			payload["add_edges"] = v
			break
		}
	}
	if err := remarshalInto(payload, &diff); err != nil {
		return nil, fmt.Errorf("%w: decode plan diff: %v", graphmodel.ErrParse, err)
	}
	return &diff, nil
}

// normalizeEdgeKeys aliases every nested edge's endpoint keys in-place,
// same vocabulary as llm.NormalizeGraphPayload but operating on
// add_edges/remove_edges instead of a single edges list.
func normalizeEdgeKeys(payload map[string]interface{}) {
	for _, key := range []string{"add_edges", "edges", "remove_edges"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		edges, ok := raw.([]interface{})
		if !ok {
			continue
		}
		for _, e := range edges {
			edgeMap, ok := e.(map[string]interface{})
			if !ok {
				continue
			}
			llm.AliasEndpointKeys(edgeMap)
		}
	}
}

func remarshalInto(payload map[string]interface{}, out interface{}) error {
	return llm.Remarshal(payload, out)
}

// applyPlanDiff materializes diff on top of base, returning a new
// GraphState whose added resources carry status=proposed (I6: proposed
// only ever appears inside the pending graph) and whose removed
// resources/edges are dropped. base is not mutated.
func applyPlanDiff(base *graphmodel.GraphState, diff *graphmodel.PlanDiff) *graphmodel.GraphState {
	out := base.Clone()
	out.GraphPhase = graphmodel.PhaseImplementation
	out.Reasoning = diff.Reasoning

	removed := make(map[string]bool, len(diff.RemoveResource))
	for _, id := range diff.RemoveResource {
		removed[id] = true
	}

	kept := out.Resources[:0]
	for _, r := range out.Resources {
		if !removed[r.ID] {
			kept = append(kept, r)
		}
	}
	out.Resources = kept

	for _, r := range diff.AddResources {
		r.Status = graphmodel.StatusProposed
		out.Resources = append(out.Resources, r)
	}

	keptEdges := out.Edges[:0]
	for _, e := range out.Edges {
		if removed[e.Source] || removed[e.Target] {
			continue
		}
		if containsEdge(diff.RemoveEdges, e) {
			continue
		}
		keptEdges = append(keptEdges, e)
	}
	out.Edges = append(keptEdges, diff.AddEdges...)

	return out
}

func containsEdge(edges []graphmodel.Edge, target graphmodel.Edge) bool {
	for _, e := range edges {
		if e == target {
			return true
		}
	}
	return false
}
