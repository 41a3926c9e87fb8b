package events

import (
	"sync"
)

// DefaultBufferSize is the default bound on a session's in-flight event
// queue before the overflow-drop policy engages.
const DefaultBufferSize = 256

// Emitter is a multi-producer, single-consumer bounded event queue. Any
// number of goroutines may call Emit (the phase runners, the pipeline
// worker, the architecture loop), but exactly one consumer goroutine
// should call Next/Drain per session, matching the "exactly one writer
// per event stream" requirement (§5) — "writer" here meaning the
// consumer that writes records onto the wire.
type Emitter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Event
	capacity int
	closed   bool

	// dropped counts events discarded by the overflow policy, keyed by
	// kind, for observability; read through Dropped().
	dropped map[Kind]int
}

// New returns an Emitter bounded to capacity buffered events.
func New(capacity int) *Emitter {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	e := &Emitter{capacity: capacity, dropped: make(map[Kind]int)}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Emit enqueues an event. If the queue is at capacity, the
// lowest-priority droppable event already queued (log, then thought) is
// evicted to make room; if no droppable victim exists and the incoming
// event is itself droppable, the incoming event is dropped instead.
// decision/stage/graph_snapshot/control/result/error are never dropped:
// Emit blocks until room is available or the Emitter is closed.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for !e.closed && len(e.queue) >= e.capacity {
		if e.evictDroppableLocked() {
			break
		}
		if _, isDroppable := dropPriority[ev.Kind]; isDroppable {
			e.dropped[ev.Kind]++
			return
		}
		// No droppable victim and this event must not be lost: wait for
		// the consumer to make room.
		e.cond.Wait()
	}
	if e.closed {
		return
	}
	e.queue = append(e.queue, ev)
	e.cond.Signal()
}

// evictDroppableLocked removes the single best eviction candidate
// (lowest priority first: log before thought) from the queue. Returns
// true if something was evicted. Caller must hold e.mu.
func (e *Emitter) evictDroppableLocked() bool {
	victim := -1
	victimPriority := -1
	for i, queued := range e.queue {
		p, ok := dropPriority[queued.Kind]
		if !ok {
			continue
		}
		if victim == -1 || p < victimPriority {
			victim = i
			victimPriority = p
		}
	}
	if victim == -1 {
		return false
	}
	e.dropped[e.queue[victim].Kind]++
	e.queue = append(e.queue[:victim], e.queue[victim+1:]...)
	return true
}

// Next blocks until an event is available or the Emitter is closed and
// drained, in which case ok is false.
func (e *Emitter) Next() (ev Event, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.queue) == 0 && !e.closed {
		e.cond.Wait()
	}
	if len(e.queue) == 0 {
		return Event{}, false
	}
	ev = e.queue[0]
	e.queue = e.queue[1:]
	e.cond.Signal()
	return ev, true
}

// Close marks the Emitter closed: pending events already queued are
// still delivered by Next, but Emit becomes a no-op and blocked Emit
// callers are released.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.cond.Broadcast()
}

// Dropped returns a snapshot of drop counts by kind, for metrics.
func (e *Emitter) Dropped() map[Kind]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[Kind]int, len(e.dropped))
	for k, v := range e.dropped {
		out[k] = v
	}
	return out
}

// Log is a convenience wrapper for emitting an operator-visible log line.
func (e *Emitter) Log(msg string) { e.Emit(Event{Kind: KindLog, Payload: msg}) }

// Thought emits a model reasoning summary.
func (e *Emitter) Thought(summary string) { e.Emit(Event{Kind: KindThought, Payload: summary}) }

// Stage emits a pipeline/phase stage transition.
func (e *Emitter) Stage(name string, status StageStatus) {
	e.Emit(Event{Kind: KindStage, Payload: StagePayload{Name: name, Status: status}})
}

// Control emits a routing signal. Control events never terminate the
// stream (§6).
func (e *Emitter) Control(action, nextPhase string) {
	e.Emit(Event{Kind: KindControl, Payload: ControlPayload{Action: action, NextPhase: nextPhase}})
}

// Decision emits a structured decision log entry.
func (e *Emitter) Decision(payload interface{}) {
	e.Emit(Event{Kind: KindDecision, Payload: payload})
}

// GraphSnapshot emits a full graph state.
func (e *Emitter) GraphSnapshot(payload interface{}) {
	e.Emit(Event{Kind: KindGraphSnapshot, Payload: payload})
}

// Result emits the terminal success payload and closes the stream. Per
// P7 a stream ends with exactly one of result or error; callers must not
// emit further events after calling Result or Error.
func (e *Emitter) Result(payload interface{}) {
	e.Emit(Event{Kind: KindResult, Payload: payload})
	e.Close()
}

// Error emits the terminal error string and closes the stream.
func (e *Emitter) Error(message string) {
	e.Emit(Event{Kind: KindError, Payload: message})
	e.Close()
}
