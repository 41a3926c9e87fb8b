package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/graphmind/graphmind/internal/graphmodel"
)

func TestGenerateProducesVPCSubnetAndInstance(t *testing.T) {
	g := graphmodel.NewGraphState(graphmodel.PhaseImplementation)
	g.Resources = []graphmodel.Resource{
		{ID: "vpc-main", Type: "aws_vpc"},
		{ID: "subnet-public-a", Type: "aws_subnet", ParentID: "vpc-main"},
		{ID: "web", Type: "aws_instance", ParentID: "subnet-public-a"},
	}

	hcl := Generate(g)

	assert.Contains(t, hcl, `resource "aws_vpc" "vpc-main"`)
	assert.Contains(t, hcl, `resource "aws_subnet" "subnet-public-a"`)
	assert.Contains(t, hcl, `resource "aws_instance" "web"`)
	assert.Contains(t, hcl, "aws_subnet.subnet-public-a.id")
	assert.Contains(t, hcl, "aws_route_table_association")
}

func TestGenerateMocksSecondSubnetForDBHighAvailability(t *testing.T) {
	g := graphmodel.NewGraphState(graphmodel.PhaseImplementation)
	g.Resources = []graphmodel.Resource{
		{ID: "vpc-main", Type: "aws_vpc"},
		{ID: "subnet-a", Type: "aws_subnet", ParentID: "vpc-main"},
		{ID: "db-main", Type: "aws_db_instance"},
	}

	hcl := Generate(g)

	assert.Contains(t, hcl, `resource "aws_db_instance" "db-main"`)
	assert.Contains(t, hcl, "aws_db_subnet_group.db-subnet-group-main.name")
	assert.Contains(t, hcl, "subnet-db-ha-mock")
}

func TestGenerateIsDeterministicAcrossCalls(t *testing.T) {
	g := graphmodel.NewGraphState(graphmodel.PhaseImplementation)
	g.Resources = []graphmodel.Resource{
		{ID: "b-instance", Type: "aws_instance"},
		{ID: "a-instance", Type: "aws_instance"},
	}

	first := Generate(g)
	second := Generate(g)
	assert.Equal(t, first, second)
}
