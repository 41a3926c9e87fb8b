package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmind/graphmind/internal/events"
	"github.com/graphmind/graphmind/internal/logger"
)

func TestServeSSEFramesEachEventAsDataLineAndFlushes(t *testing.T) {
	emitter := events.New(4)
	emitter.Log("thinking")
	emitter.Result(map[string]string{"ok": "true"})

	req := httptest.NewRequest(http.MethodGet, "/submit", nil)
	rec := httptest.NewRecorder()

	ServeSSE(rec, req, emitter, logger.NoOp())

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `data: {"type":"log","content":"thinking"}`))
	assert.True(t, strings.Contains(body, `data: {"type":"result"`))
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestServeSSEStopsWhenEmitterCloses(t *testing.T) {
	emitter := events.New(4)
	emitter.Error("boom")

	req := httptest.NewRequest(http.MethodGet, "/submit", nil)
	rec := httptest.NewRecorder()

	ServeSSE(rec, req, emitter, logger.NoOp())

	require.True(t, strings.Contains(rec.Body.String(), `"type":"error"`))
}
