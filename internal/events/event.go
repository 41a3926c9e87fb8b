// Package events implements the Event Emitter (C1): a single-producer,
// bounded-buffer stream of typed records delivered to one subscribed
// client per session request. The overflow-drop priority policy is
// generalized from the teacher's BaseTool background-retry pattern
// (core/tool.go), which accepts that a slow consumer of best-effort
// status updates may lose some of them without losing the operation's
// outcome; here that same tradeoff is made explicit per event Kind.
package events

import "encoding/json"

// Kind identifies the shape of an Event's Payload, per SPEC_FULL §4.1.
type Kind string

const (
	KindLog           Kind = "log"
	KindThought        Kind = "thought"
	KindDecision       Kind = "decision"
	KindStage          Kind = "stage"
	KindGraphSnapshot  Kind = "graph_snapshot"
	KindControl        Kind = "control"
	KindResult         Kind = "result"
	KindError          Kind = "error"
)

// dropPriority is the droppable set: only kinds in this set may be
// discarded under sustained backpressure; every other kind is never
// dropped. A lower value is dropped first, so log goes before thought.
var dropPriority = map[Kind]int{
	KindLog:     0,
	KindThought: 1,
}

// Event is one record in the stream. Record framing on the wire is
// `{"type": <kind>, "content": <payload>}` (§6); Payload here is the Go
// value that gets marshaled into "content".
type Event struct {
	Kind    Kind        `json:"type"`
	Payload interface{} `json:"content"`
}

// StageStatus is the status field of a `stage` event payload.
type StageStatus string

const (
	StageRunning  StageStatus = "running"
	StageSuccess  StageStatus = "success"
	StageFailed   StageStatus = "failed"
	StageFixing   StageStatus = "fixing"
	StageThinking StageStatus = "thinking"
	StageWarning  StageStatus = "warning"
)

// StagePayload is the payload of a `stage` event.
type StagePayload struct {
	Name   string      `json:"name"`
	Status StageStatus `json:"status"`
}

// ControlPayload is the payload of a `control` event: a routing signal
// that does not itself terminate the stream (§6).
type ControlPayload struct {
	Action   string `json:"action"`
	NextPhase string `json:"next_phase,omitempty"`
}

// MarshalRecord renders an Event in the wire's newline-delimited JSON
// framing, one record per line.
func MarshalRecord(e Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
