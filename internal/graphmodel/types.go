// Package graphmodel defines the data types shared across every phase of
// the graph lifecycle: Resource, Edge, GraphState, PlanDiff, decision log
// entries, and session state. Nothing in this package talks to the model
// backend, the graph store, or disk — it is pure data.
package graphmodel

import (
	"time"

	"github.com/google/uuid"
)

// ResourceStatus is the lifecycle status of a single Resource within a
// GraphState.
type ResourceStatus string

const (
	StatusPlanned  ResourceStatus = "planned"
	StatusProposed ResourceStatus = "proposed"
	StatusActive   ResourceStatus = "active"
	StatusDeleted  ResourceStatus = "deleted"
)

// GraphPhase identifies which of the three lifecycle representations a
// GraphState belongs to.
type GraphPhase string

const (
	PhaseIntent         GraphPhase = "intent"
	PhaseReasoned       GraphPhase = "reasoned"
	PhaseImplementation GraphPhase = "implementation"
)

// Relation is the semantic label carried by an Edge.
type Relation string

const (
	RelationContains     Relation = "contains"
	RelationConnectsTo   Relation = "connects_to"
	RelationReadsFrom    Relation = "reads_from"
	RelationWritesTo     Relation = "writes_to"
	RelationPublishesTo  Relation = "publishes_to"
	RelationConsumesFrom Relation = "consumes_from"
	RelationDependsOn    Relation = "depends_on"
)

// AbstractTypes is the closed set of semantic resource types that may
// appear in an Intent or Reasoned graph. Per I5, none of these may survive
// into an Implementation graph.
var AbstractTypes = map[string]bool{
	"compute_service":     true,
	"relational_database": true,
	"object_storage":      true,
	"load_balancer":       true,
	"message_queue":       true,
	"pubsub_topic":        true,
	"cache_service":       true,
	"network_container":   true,
	"network_zone":        true,
}

// Resource is a single node in a GraphState. Its id is the stable identity
// carried across all three lifecycle phases (I3).
type Resource struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	ParentID   string                 `json:"parent_id,omitempty"`
	Status     ResourceStatus         `json:"status,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Edge is a directed, typed relationship between two Resource ids.
type Edge struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Relation Relation `json:"relation"`
}

// GraphState is one of the three lifecycle representations of the
// architecture: Intent, Reasoned, or Implementation.
type GraphState struct {
	GraphPhase   GraphPhase             `json:"graph_phase"`
	GraphVersion string                 `json:"graph_version"`
	Resources    []Resource             `json:"resources"`
	Edges        []Edge                 `json:"edges"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Reasoning    string                 `json:"reasoning,omitempty"`
}

// NewGraphState returns an empty GraphState for the given phase with a
// freshly generated version id.
func NewGraphState(phase GraphPhase) *GraphState {
	return &GraphState{
		GraphPhase:   phase,
		GraphVersion: uuid.New().String(),
		Metadata:     map[string]interface{}{},
	}
}

// Clone returns a deep-enough copy of the GraphState safe to mutate
// independently (resources/edges slices and their maps are copied;
// individual property values are not).
func (g *GraphState) Clone() *GraphState {
	if g == nil {
		return nil
	}
	out := &GraphState{
		GraphPhase:   g.GraphPhase,
		GraphVersion: g.GraphVersion,
		Reasoning:    g.Reasoning,
	}
	out.Resources = make([]Resource, len(g.Resources))
	for i, r := range g.Resources {
		out.Resources[i] = r.clone()
	}
	out.Edges = make([]Edge, len(g.Edges))
	copy(out.Edges, g.Edges)
	out.Metadata = cloneMap(g.Metadata)
	return out
}

func (r Resource) clone() Resource {
	r.Properties = cloneMap(r.Properties)
	r.Metadata = cloneMap(r.Metadata)
	return r
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// IDs returns the set of resource ids present in the graph.
func (g *GraphState) IDs() map[string]bool {
	out := make(map[string]bool, len(g.Resources))
	for _, r := range g.Resources {
		out[r.ID] = true
	}
	return out
}

// TypeByID returns a lookup from resource id to its semantic/concrete type.
func (g *GraphState) TypeByID() map[string]string {
	out := make(map[string]string, len(g.Resources))
	for _, r := range g.Resources {
		out[r.ID] = r.Type
	}
	return out
}

// PlanDiff is the set of changes derived from differencing two
// Implementation graphs.
type PlanDiff struct {
	AddResources   []Resource `json:"add_resources"`
	RemoveResource []string   `json:"remove_resources"`
	AddEdges       []Edge     `json:"add_edges"`
	RemoveEdges    []Edge     `json:"remove_edges"`
	Reasoning      string     `json:"reasoning"`
	Logs           []string   `json:"logs,omitempty"`
}

// DecisionLogEntry records one reasoning/mutation decision made by a phase
// runner. The decision log is append-only within a session (P8).
type DecisionLogEntry struct {
	Stage          string    `json:"stage"`
	Cycle          int       `json:"cycle"`
	Timestamp      time.Time `json:"timestamp"`
	Trigger        string    `json:"trigger"`
	AffectedNodes  []string  `json:"affected_nodes"`
	Action         string    `json:"action"`
	Result         string    `json:"result"`
}

// SessionPhase is the Orchestrator's phase-contract state (§4.8).
type SessionPhase string

const (
	SessionIdle           SessionPhase = "idle"
	SessionIntentReview   SessionPhase = "intent_review"
	SessionReasonedReview SessionPhase = "reasoned_review"
	SessionGraphPending   SessionPhase = "graph_pending"
	SessionCodePending    SessionPhase = "code_pending"
	SessionDeploying      SessionPhase = "deploying"
	SessionDeployed       SessionPhase = "deployed"
)

// SessionState is the full persisted state of one orchestration session.
type SessionState struct {
	Phase              SessionPhase      `json:"phase"`
	ExecutionMode      string            `json:"execution_mode"`
	SimulatePipeline   bool              `json:"simulate_pipeline"`
	IntentGraph        *GraphState       `json:"intent_graph,omitempty"`
	ReasonedGraph      *GraphState       `json:"reasoned_graph,omitempty"`
	ImplementationGraph *GraphState      `json:"implementation_graph,omitempty"`
	PendingGraph       *GraphState       `json:"pending_graph,omitempty"`
	GeneratedCode      string            `json:"generated_code,omitempty"`
	TestScript         string            `json:"test_script,omitempty"`
	History            []DecisionLogEntry `json:"history"`
	Timestamp          time.Time         `json:"timestamp"`
}

// ConfirmationReason explains why user confirmation is required before a
// deploy proceeds (restored from the original implementation's
// ConfirmationRequired/ConfirmationReason schema; SPEC_FULL §3).
type ConfirmationReason struct {
	Resource string `json:"resource,omitempty"`
	Type     string `json:"type,omitempty"`
	Reason   string `json:"reason"`
	Severity string `json:"severity"`
}

// ConfirmationRequired is the computed result of checking the
// implementation graph against the cost-sensitive resource type set.
type ConfirmationRequired struct {
	Required bool                  `json:"required"`
	Reasons  []ConfirmationReason  `json:"reasons"`
	Message  string                `json:"message"`
}

// IntentAnalysis is the result of the "think" operation: a quick read of
// user intent without advancing session phase (SPEC_FULL §3).
type IntentAnalysis struct {
	Summary          string   `json:"summary"`
	Risks            []string `json:"risks"`
	SuggestedActions []string `json:"suggested_actions"`
}

// BlastAnalysis describes the downstream impact of removing a resource.
type BlastAnalysis struct {
	TargetNode         string   `json:"target_node"`
	ImpactLevel        string   `json:"impact_level"`
	AffectedCount      int      `json:"affected_count"`
	AffectedNodeIDs    []string `json:"affected_node_ids"`
	Explanation        string   `json:"explanation"`
	MitigationStrategy string   `json:"mitigation_strategy"`
}
