package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainAll(e *Emitter) []Event {
	var out []Event
	for {
		ev, ok := e.Next()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func TestEmitOrderPreservedFIFO(t *testing.T) {
	e := New(16)
	e.Log("a")
	e.Log("b")
	e.Result("done")

	got := drainAll(e)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Payload)
	assert.Equal(t, "b", got[1].Payload)
	assert.Equal(t, KindResult, got[2].Kind)
}

func TestOverflowDropsLogBeforeThought(t *testing.T) {
	e := New(2)
	e.Thought("keep-me")
	e.Log("drop-me-1")
	// queue full (thought, log); emitting another log should evict the
	// existing log (log has lower priority than thought, so it goes first).
	e.Log("drop-me-2")

	got := drainAll2(t, e)
	var kinds []Kind
	for _, ev := range got {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, KindThought)
	assert.Equal(t, 1, len(got)-countKind(got, KindThought))
	assert.True(t, e.Dropped()[KindLog] >= 1)
}

func countKind(evs []Event, k Kind) int {
	n := 0
	for _, ev := range evs {
		if ev.Kind == k {
			n++
		}
	}
	return n
}

func drainAll2(t *testing.T, e *Emitter) []Event {
	t.Helper()
	var out []Event
	for i := 0; i < 2; i++ {
		ev, ok := e.Next()
		if !ok {
			break
		}
		out = append(out, ev)
	}
	return out
}

func TestNeverDropsDecisionEvenUnderPressure(t *testing.T) {
	e := New(1)
	e.Log("filler")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.Decision("critical-decision")
	}()

	// Give the goroutine a moment to run. The queue is full, but filler
	// is droppable, so the decision evicts it immediately rather than
	// blocking.
	time.Sleep(10 * time.Millisecond)
	wg.Wait()

	got := drainAll(e)
	var sawDecision bool
	for _, ev := range got {
		if ev.Kind == KindDecision {
			sawDecision = true
		}
	}
	assert.True(t, sawDecision)
}

func TestResultClosesStreamAfterDraining(t *testing.T) {
	e := New(4)
	e.Log("one")
	e.Result("final")

	got := drainAll(e)
	require.Len(t, got, 2)
	assert.Equal(t, KindResult, got[1].Kind)

	_, ok := e.Next()
	assert.False(t, ok)
}
