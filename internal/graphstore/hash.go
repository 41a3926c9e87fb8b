package graphstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/graphmind/graphmind/internal/graphmodel"
)

// canonicalResource is the subset of a Resource that participates in the
// canonical hash: metadata (debug/telemetry annotations) is excluded so
// that two graphs differing only in bookkeeping still hash equal, per the
// original implementation's stable_graph_hash.
type canonicalResource struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	ParentID   string                 `json:"parent_id,omitempty"`
	Status     graphmodel.ResourceStatus `json:"status,omitempty"`
}

type canonicalEdge struct {
	Source   string             `json:"source"`
	Target   string             `json:"target"`
	Relation graphmodel.Relation `json:"relation"`
}

// CanonicalHash computes a stable sha256 digest of a GraphState: resources
// sorted by id (metadata excluded), edges sorted by (source, target,
// relation). Two graphs are semantically equivalent for fixed-point
// convergence purposes iff their CanonicalHash matches.
func CanonicalHash(g *graphmodel.GraphState) string {
	resources := make([]canonicalResource, len(g.Resources))
	for i, r := range g.Resources {
		resources[i] = canonicalResource{
			ID:         r.ID,
			Type:       r.Type,
			Properties: r.Properties,
			ParentID:   r.ParentID,
			Status:     r.Status,
		}
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].ID < resources[j].ID })

	edges := make([]canonicalEdge, len(g.Edges))
	for i, e := range g.Edges {
		edges[i] = canonicalEdge{Source: e.Source, Target: e.Target, Relation: e.Relation}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		if edges[i].Target != edges[j].Target {
			return edges[i].Target < edges[j].Target
		}
		return edges[i].Relation < edges[j].Relation
	})

	payload := struct {
		Resources []canonicalResource `json:"resources"`
		Edges     []canonicalEdge     `json:"edges"`
	}{resources, edges}

	// json.Marshal on a struct with fixed field order already produces a
	// stable encoding; the sort above is what actually makes the hash
	// insensitive to insertion order.
	b, err := json.Marshal(payload)
	if err != nil {
		// Marshal of this struct can only fail on a Properties value that
		// isn't JSON-representable; treat that as an empty digest input
		// rather than panicking inside a hot convergence loop.
		b = []byte{}
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
