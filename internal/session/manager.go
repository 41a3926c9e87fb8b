package session

import (
	"context"
	"sync"
	"time"

	"github.com/graphmind/graphmind/internal/graphmodel"
	"github.com/graphmind/graphmind/internal/logger"
)

const (
	fileIntentGraph         = "intent_graph.json"
	fileReasonedGraph       = "reasoned_graph.json"
	fileImplementationGraph = "implementation_graph.json"
	filePendingGraph        = "pending_graph.json"
)

// Manager owns one session's full persisted state: the three lifecycle
// graphs, the optional pending graph, the decision log, and session
// metadata. It holds the in-memory graphmodel.SessionState and is the
// single writer of that state to disk; callers (the Orchestrator) read
// it through State and change it through the Set* methods. Grounded on
// original_source/backend/agent.py's save_state_to_disk/load_full_state
// for exactly which slots exist and what "prefer the implementation
// graph on load" means.
type Manager struct {
	mu    sync.Mutex
	files *FileStore
	redis *RedisStore
	log   logger.Logger

	sessionID string
	state     *graphmodel.SessionState
}

// NewManager opens (creating if needed) a session directory and loads
// any previously-persisted state. redisStore may be nil when the debug
// mirror is disabled.
func NewManager(sessionID, dir string, redisStore *RedisStore, log logger.Logger) (*Manager, error) {
	files, err := NewFileStore(dir)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		files:     files,
		redis:     redisStore,
		log:       log,
		sessionID: sessionID,
	}
	state, err := m.load()
	if err != nil {
		return nil, err
	}
	m.state = state
	return m, nil
}

// load reconstructs a SessionState from whatever slots are present on
// disk. It does not seed a Graph Store; the Orchestrator seeds its store
// from the implementation graph alone when one was loaded, with no
// fallback to the reasoned or intent graph.
func (m *Manager) load() (*graphmodel.SessionState, error) {
	state := &graphmodel.SessionState{Phase: graphmodel.SessionIdle}

	meta, ok, err := m.files.LoadMeta()
	if err != nil {
		return nil, err
	}
	if ok {
		state.Phase = meta.Phase
		state.ExecutionMode = meta.ExecutionMode
		state.SimulatePipeline = meta.SimulatePipeline
		state.Timestamp = meta.Timestamp
	}

	if g, ok, err := m.files.LoadGraph(fileIntentGraph); err != nil {
		return nil, err
	} else if ok {
		state.IntentGraph = g
	}
	if g, ok, err := m.files.LoadGraph(fileReasonedGraph); err != nil {
		return nil, err
	} else if ok {
		state.ReasonedGraph = g
	}
	if g, ok, err := m.files.LoadGraph(fileImplementationGraph); err != nil {
		return nil, err
	} else if ok {
		state.ImplementationGraph = g
	}
	if g, ok, err := m.files.LoadGraph(filePendingGraph); err != nil {
		return nil, err
	} else if ok {
		state.PendingGraph = g
	}

	history, err := m.files.LoadDecisionLog()
	if err != nil {
		return nil, err
	}
	state.History = history

	return state, nil
}

// State returns the manager's in-memory copy of the session state. The
// returned pointer is owned by the Manager; callers must go through
// Manager's setters to mutate it so persistence stays authoritative.
func (m *Manager) State() *graphmodel.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetIntentGraph persists the intent graph and updates in-memory state.
func (m *Manager) SetIntentGraph(g *graphmodel.GraphState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.files.SaveGraph(fileIntentGraph, g); err != nil {
		return err
	}
	m.state.IntentGraph = g
	return nil
}

// SetReasonedGraph persists the reasoned graph and updates in-memory state.
func (m *Manager) SetReasonedGraph(g *graphmodel.GraphState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.files.SaveGraph(fileReasonedGraph, g); err != nil {
		return err
	}
	m.state.ReasonedGraph = g
	return nil
}

// SetImplementationGraph persists the implementation graph and updates
// in-memory state.
func (m *Manager) SetImplementationGraph(g *graphmodel.GraphState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.files.SaveGraph(fileImplementationGraph, g); err != nil {
		return err
	}
	m.state.ImplementationGraph = g
	return nil
}

// SetPendingGraph persists the pending-modification slot, or clears it
// on disk when g is nil.
func (m *Manager) SetPendingGraph(g *graphmodel.GraphState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g == nil {
		m.state.PendingGraph = nil
		return m.files.clearPending()
	}
	if err := m.files.SaveGraph(filePendingGraph, g); err != nil {
		return err
	}
	m.state.PendingGraph = g
	return nil
}

// AppendDecisions appends to the in-memory decision log (append-only,
// per P8) and rewrites decision_log.json with the full slice.
func (m *Manager) AppendDecisions(entries ...graphmodel.DecisionLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.History = append(m.state.History, entries...)
	return m.files.SaveDecisionLog(m.state.History)
}

// SetPhase persists the new phase (and whatever execution_mode/
// simulate_pipeline are currently set) to session_meta.json.
func (m *Manager) SetPhase(phase graphmodel.SessionPhase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Phase = phase
	return m.saveMetaLocked()
}

// SetExecutionOptions persists the execution mode and simulate-pipeline
// flag chosen at submit time.
func (m *Manager) SetExecutionOptions(executionMode string, simulatePipeline bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.ExecutionMode = executionMode
	m.state.SimulatePipeline = simulatePipeline
	return m.saveMetaLocked()
}

func (m *Manager) saveMetaLocked() error {
	m.state.Timestamp = time.Now()
	return m.files.SaveMeta(Meta{
		Phase:            m.state.Phase,
		ExecutionMode:    m.state.ExecutionMode,
		SimulatePipeline: m.state.SimulatePipeline,
		Timestamp:        m.state.Timestamp,
	})
}

// SnapshotDebug writes a timestamped debug snapshot for the given phase
// transition to disk, and best-effort mirrors it to Redis when a
// RedisStore was configured. Redis failures are logged, not returned —
// the debug mirror must never block a phase transition.
func (m *Manager) SnapshotDebug(ctx context.Context, phase string, g *graphmodel.GraphState) error {
	if err := m.files.SaveDebugSnapshot(phase, g); err != nil {
		return err
	}
	if m.redis == nil {
		return nil
	}
	snap := DebugSnapshot{SessionID: m.sessionID, Phase: phase, Graph: g, Timestamp: time.Now()}
	if err := m.redis.Store(ctx, snap); err != nil && m.log != nil {
		m.log.Warn("debug snapshot redis mirror failed", "session_id", m.sessionID, "phase", phase, "error", err)
	}
	return nil
}

// HardReset clears every slot, in-memory and on disk, returning the
// session to idle. Debug snapshots already written are left in place.
func (m *Manager) HardReset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.files.HardReset(); err != nil {
		return err
	}
	m.state = &graphmodel.SessionState{Phase: graphmodel.SessionIdle, Timestamp: time.Now()}
	return nil
}
