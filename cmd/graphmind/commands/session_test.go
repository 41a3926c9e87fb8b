package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionShowPrintsIdlePhaseForFreshSession(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GRAPHMIND_SESSION_DIR", dir)

	root := NewRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"session", "show", "--session-id", "s1"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `"phase": "idle"`)
}

func TestSessionResetReturnsSessionToIdle(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GRAPHMIND_SESSION_DIR", dir)

	root := NewRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"session", "show", "--session-id", "s2"})
	require.NoError(t, root.Execute())

	resetCmd := NewRootCommand()
	resetOut := &bytes.Buffer{}
	resetCmd.SetOut(resetOut)
	resetCmd.SetArgs([]string{"session", "reset", "--session-id", "s2"})
	require.NoError(t, resetCmd.Execute())
	assert.Contains(t, resetOut.String(), "session reset to idle")

	showAgain := NewRootCommand()
	showOut := &bytes.Buffer{}
	showAgain.SetOut(showOut)
	showAgain.SetArgs([]string{"session", "show", "--session-id", "s2"})
	require.NoError(t, showAgain.Execute())
	assert.Contains(t, showOut.String(), `"phase": "idle"`)
}
