package phases

import (
	"encoding/json"
	"fmt"

	"github.com/graphmind/graphmind/internal/graphmodel"
)

// decodeGraph re-marshals a normalized JSON payload into a GraphState,
// going through encoding/json rather than manual map-walking so that
// Resource/Edge's existing struct tags do the field mapping.
func decodeGraph(payload map[string]interface{}, phase graphmodel.GraphPhase) (*graphmodel.GraphState, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("phases: remarshal payload: %w", err)
	}

	var decoded struct {
		Resources []graphmodel.Resource `json:"resources"`
		Edges     []graphmodel.Edge     `json:"edges"`
		Reasoning string                `json:"reasoning"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", graphmodel.ErrParse, err)
	}

	graph := graphmodel.NewGraphState(phase)
	graph.Resources = decoded.Resources
	graph.Edges = decoded.Edges
	graph.Reasoning = decoded.Reasoning
	for i := range graph.Resources {
		if graph.Resources[i].Status == "" {
			graph.Resources[i].Status = graphmodel.StatusPlanned
		}
	}
	return graph, nil
}

// remarshal re-encodes payload as JSON and decodes it into out, used to
// turn a generic map[string]interface{} into a typed struct without
// hand-walking fields.
func remarshal(payload map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("phases: remarshal: %w", err)
	}
	return json.Unmarshal(raw, out)
}

// validateReferentialIntegrity enforces I2: every edge's source and
// target must name a resource present in the same graph.
func validateReferentialIntegrity(g *graphmodel.GraphState) error {
	ids := g.IDs()
	for _, e := range g.Edges {
		if !ids[e.Source] {
			return fmt.Errorf("phases: edge source %q: %w", e.Source, graphmodel.ErrReferentialIntegrity)
		}
		if !ids[e.Target] {
			return fmt.Errorf("phases: edge target %q: %w", e.Target, graphmodel.ErrReferentialIntegrity)
		}
	}
	return nil
}
