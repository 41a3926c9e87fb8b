// Package session implements the Session Manager (C7): persistence of
// the three graph slots, the pending-modification slot, the decision
// log, and session metadata, plus debug snapshots. Grounded on
// original_source/backend/agent.py's save_state_to_disk/load_full_state
// for the file layout and on the teacher's core/redis_client.go
// connection-setup idiom for the optional Redis mirror
// (internal/session/redisstore.go).
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/graphmind/graphmind/internal/graphmodel"
)

// Meta is the `session_meta.json` record.
type Meta struct {
	Phase            graphmodel.SessionPhase `json:"phase"`
	ExecutionMode    string                  `json:"execution_mode"`
	SimulatePipeline bool                    `json:"simulate_pipeline"`
	Timestamp        time.Time               `json:"timestamp"`
}

// FileStore persists one session's state under a directory, writing
// every file atomically (temp file + rename) so a crash mid-write never
// leaves a half-written file on disk (§5's "session metadata file is
// written atomically").
type FileStore struct {
	dir string
}

// NewFileStore returns a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", graphmodel.ErrWorkspaceIO, err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(name string) string { return filepath.Join(f.dir, name) }

// writeAtomic marshals v as JSON and writes it to name via a temp file
// followed by a rename, so readers never observe a partial write.
func (f *FileStore) writeAtomic(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal %s: %w", name, err)
	}
	target := f.path(name)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", graphmodel.ErrWorkspaceIO, name, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("%w: rename %s: %v", graphmodel.ErrWorkspaceIO, name, err)
	}
	return nil
}

func (f *FileStore) readInto(name string, v interface{}) (bool, error) {
	data, err := os.ReadFile(f.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: read %s: %v", graphmodel.ErrWorkspaceIO, name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", graphmodel.ErrParse, name, err)
	}
	return true, nil
}

// SaveGraph persists one of the three lifecycle graphs or the pending
// slot, keyed by filename (e.g. "intent_graph.json").
func (f *FileStore) SaveGraph(filename string, g *graphmodel.GraphState) error {
	return f.writeAtomic(filename, g)
}

// LoadGraph loads a previously-saved graph; ok is false if the file does
// not exist (a session with that slot never populated).
func (f *FileStore) LoadGraph(filename string) (*graphmodel.GraphState, bool, error) {
	var g graphmodel.GraphState
	ok, err := f.readInto(filename, &g)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &g, true, nil
}

// SaveDecisionLog persists the full decision log (append-only in
// memory; the file is simply overwritten with the current full slice,
// which preserves append-only semantics because the in-memory slice
// itself is never truncated — see internal/session/manager.go).
func (f *FileStore) SaveDecisionLog(entries []graphmodel.DecisionLogEntry) error {
	return f.writeAtomic("decision_log.json", entries)
}

// LoadDecisionLog loads the decision log, returning an empty slice if
// none was ever persisted.
func (f *FileStore) LoadDecisionLog() ([]graphmodel.DecisionLogEntry, error) {
	var entries []graphmodel.DecisionLogEntry
	_, err := f.readInto("decision_log.json", &entries)
	return entries, err
}

// SaveMeta persists session_meta.json.
func (f *FileStore) SaveMeta(m Meta) error {
	return f.writeAtomic("session_meta.json", m)
}

// LoadMeta loads session_meta.json; ok is false if absent.
func (f *FileStore) LoadMeta() (Meta, bool, error) {
	var m Meta
	ok, err := f.readInto("session_meta.json", &m)
	return m, ok, err
}

// clearPending removes pending_graph.json, used when a modification is
// rejected or the architecture loop absorbs it into the reasoned graph.
func (f *FileStore) clearPending() error {
	if err := os.Remove(f.path("pending_graph.json")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove pending_graph.json: %v", graphmodel.ErrWorkspaceIO, err)
	}
	return nil
}

// SaveDebugSnapshot writes a timestamped snapshot keyed by phase name,
// per §4.7's "each phase transition may write a timestamped snapshot
// (key = timestamp + phase name)".
func (f *FileStore) SaveDebugSnapshot(phase string, g *graphmodel.GraphState) error {
	name := fmt.Sprintf("debug_%d_%s.json", time.Now().UnixNano(), phase)
	return f.writeAtomic(name, g)
}

// HardReset deletes every file the session has written: the three
// lifecycle graphs, the pending graph, the decision log, and the
// metadata record. Debug snapshots are left in place as historical
// trace data.
func (f *FileStore) HardReset() error {
	for _, name := range []string{
		"intent_graph.json", "reasoned_graph.json", "implementation_graph.json",
		"pending_graph.json", "decision_log.json", "session_meta.json",
	} {
		if err := os.Remove(f.path(name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: remove %s: %v", graphmodel.ErrWorkspaceIO, name, err)
		}
	}
	return nil
}
