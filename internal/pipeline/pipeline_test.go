package pipeline

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmind/graphmind/internal/events"
	"github.com/graphmind/graphmind/internal/llm"
	"github.com/graphmind/graphmind/internal/logger"
)

type noopProvider struct{}

func (noopProvider) Name() string { return "noop" }
func (noopProvider) GenerateResponse(ctx context.Context, prompt string, opts llm.Options) (*llm.Response, error) {
	return &llm.Response{Content: "resource \"aws_instance\" \"web\" {}"}, nil
}

func (p noopProvider) GenerateStream(ctx context.Context, prompt string, opts llm.Options) (<-chan llm.StreamChunk, error) {
	resp, err := p.GenerateResponse(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	return llm.ChunksFromText(resp.Content), nil
}

func TestSimulatedPipelineSucceeds(t *testing.T) {
	dir := t.TempDir()
	emitter := events.New(64)
	model := llm.New(noopProvider{}, logger.NoOp())
	p := New(model, emitter, dir, 3, 0, true)

	result, err := p.Run(context.Background(), "resource \"aws_instance\" \"web\" {}", "print('{}')", "deploy", false,
		[]string{"vpc-main", "subnet-public", "web-server"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "success", result.ResourceStatuses["web-server"])

	data, readErr := os.ReadFile(dir + "/main.tf")
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "aws_instance")
}

func TestDraftModeStopsBeforeApply(t *testing.T) {
	dir := t.TempDir()
	emitter := events.New(64)
	model := llm.New(noopProvider{}, logger.NoOp())
	p := New(model, emitter, dir, 3, 0, true)

	result, err := p.Run(context.Background(), "resource \"aws_instance\" \"web\" {}", "print('{}')", "draft", false, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.ResourceStatuses)
}

func TestValidateRejectsInlineSecurityGroupRules(t *testing.T) {
	hcl := `resource "aws_security_group" "web" {
  ingress {
    from_port = 80
  }
}`
	assert.True(t, HasInlineSecurityGroupRules(hcl))
}

func TestDeterministicFixersStripInlineBlocksAndRenameSG(t *testing.T) {
	hcl := `resource "aws_security_group" "sg-web" {
  name = "sg-web"
  ingress {
    from_port = 80
  }
}`
	fixed := ApplyDeterministicFixers(hcl)
	assert.False(t, HasInlineSecurityGroupRules(fixed))
	assert.Contains(t, fixed, `name = "web-sg"`)
}

func TestDeterministicFixersRewriteDestinationSecurityGroupID(t *testing.T) {
	hcl := `egress {
  destination_security_group_id = aws_security_group.other.id
}`
	fixed := ApplyDeterministicFixers(hcl)
	assert.Contains(t, fixed, "source_security_group_id")
	assert.NotContains(t, fixed, "destination_security_group_id")
}
