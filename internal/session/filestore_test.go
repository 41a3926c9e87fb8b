package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmind/graphmind/internal/graphmodel"
)

func TestSaveDebugSnapshotWritesTimestampedPhaseFile(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	g := graphmodel.NewGraphState(graphmodel.PhaseIntent)
	require.NoError(t, fs.SaveDebugSnapshot("intent_review", g))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var found bool
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "debug_") && strings.Contains(e.Name(), "intent_review") {
			found = true
		}
	}
	assert.True(t, found, "expected a debug_<ts>_intent_review.json file, got %v", entries)
}

func TestWriteAtomicLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, fs.SaveMeta(Meta{Phase: graphmodel.SessionIdle}))

	_, err = os.Stat(filepath.Join(dir, "session_meta.json.tmp"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "session_meta.json"))
	assert.NoError(t, err)
}
