package graphstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmind/graphmind/internal/graphmodel"
)

func TestAddEdgeRejectsMissingEndpoints(t *testing.T) {
	s := New()
	s.AddNode(graphmodel.Resource{ID: "a"})
	err := s.AddEdge(graphmodel.Edge{Source: "a", Target: "missing", Relation: graphmodel.RelationContains})
	require.Error(t, err)
}

func TestAddEdgeRejectsSelfLoop(t *testing.T) {
	s := New()
	s.AddNode(graphmodel.Resource{ID: "a"})
	err := s.AddEdge(graphmodel.Edge{Source: "a", Target: "a", Relation: graphmodel.RelationContains})
	require.Error(t, err)
}

func TestDescendantsRelationFilter(t *testing.T) {
	s := New()
	s.AddNode(graphmodel.Resource{ID: "vpc"})
	s.AddNode(graphmodel.Resource{ID: "subnet"})
	s.AddNode(graphmodel.Resource{ID: "instance"})
	require.NoError(t, s.AddEdge(graphmodel.Edge{Source: "vpc", Target: "subnet", Relation: graphmodel.RelationContains}))
	require.NoError(t, s.AddEdge(graphmodel.Edge{Source: "subnet", Target: "instance", Relation: graphmodel.RelationContains}))
	require.NoError(t, s.AddEdge(graphmodel.Edge{Source: "instance", Target: "vpc", Relation: graphmodel.RelationConnectsTo}))

	desc, err := s.Descendants("vpc", graphmodel.RelationContains)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"subnet", "instance"}, desc)
}

func TestHasCycleOnlyConsidersRequestedRelation(t *testing.T) {
	s := New()
	s.AddNode(graphmodel.Resource{ID: "a"})
	s.AddNode(graphmodel.Resource{ID: "b"})
	require.NoError(t, s.AddEdge(graphmodel.Edge{Source: "a", Target: "b", Relation: graphmodel.RelationConnectsTo}))
	require.NoError(t, s.AddEdge(graphmodel.Edge{Source: "b", Target: "a", Relation: graphmodel.RelationConnectsTo}))

	assert.True(t, s.HasCycle(graphmodel.RelationConnectsTo))
	assert.False(t, s.HasCycle(graphmodel.RelationContains))
}

func TestExportImportRoundTrip(t *testing.T) {
	s := New()
	s.AddNode(graphmodel.Resource{ID: "a", Type: "compute_service"})
	s.AddNode(graphmodel.Resource{ID: "b", Type: "network_zone"})
	require.NoError(t, s.AddEdge(graphmodel.Edge{Source: "b", Target: "a", Relation: graphmodel.RelationContains}))

	snapshot := s.Export(graphmodel.PhaseIntent)

	s2 := New()
	require.NoError(t, s2.Import(snapshot))
	assert.True(t, s2.HasNode("a"))
	assert.True(t, s2.HasEdge(graphmodel.Edge{Source: "b", Target: "a", Relation: graphmodel.RelationContains}))
}

func TestImportRejectsDanglingEdge(t *testing.T) {
	s := New()
	g := graphmodel.NewGraphState(graphmodel.PhaseIntent)
	g.Resources = []graphmodel.Resource{{ID: "a"}}
	g.Edges = []graphmodel.Edge{{Source: "a", Target: "ghost", Relation: graphmodel.RelationContains}}
	require.Error(t, s.Import(g))
}

func TestCanonicalHashIgnoresMetadataAndOrder(t *testing.T) {
	g1 := graphmodel.NewGraphState(graphmodel.PhaseImplementation)
	g1.Resources = []graphmodel.Resource{
		{ID: "b", Type: "aws_instance", Metadata: map[string]interface{}{"trace": "x"}},
		{ID: "a", Type: "aws_vpc"},
	}
	g1.Edges = []graphmodel.Edge{{Source: "a", Target: "b", Relation: graphmodel.RelationContains}}

	g2 := graphmodel.NewGraphState(graphmodel.PhaseImplementation)
	g2.Resources = []graphmodel.Resource{
		{ID: "a", Type: "aws_vpc"},
		{ID: "b", Type: "aws_instance", Metadata: map[string]interface{}{"trace": "different"}},
	}
	g2.Edges = []graphmodel.Edge{{Source: "a", Target: "b", Relation: graphmodel.RelationContains}}

	assert.Equal(t, CanonicalHash(g1), CanonicalHash(g2))
}

func TestCanonicalHashDetectsRealDifference(t *testing.T) {
	g1 := graphmodel.NewGraphState(graphmodel.PhaseImplementation)
	g1.Resources = []graphmodel.Resource{{ID: "a", Type: "aws_vpc"}}

	g2 := graphmodel.NewGraphState(graphmodel.PhaseImplementation)
	g2.Resources = []graphmodel.Resource{{ID: "a", Type: "aws_subnet"}}

	assert.NotEqual(t, CanonicalHash(g1), CanonicalHash(g2))
}
