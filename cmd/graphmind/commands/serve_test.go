package commands

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmind/graphmind/internal/config"
	"github.com/graphmind/graphmind/internal/logger"
)

func TestBuildRouterWiresOrchestratorEndpoints(t *testing.T) {
	cfg := config.Default()
	cfg.SessionDir = t.TempDir()
	cfg.Pipeline.WorkDir = t.TempDir()
	cfg.Model.Provider = "httpgeneric"

	router, err := buildRouter("test-session", cfg, logger.NoOp())
	require.NoError(t, err)
	require.NotNil(t, router)

	req := httptest.NewRequest("GET", "/session", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"phase"`)
}

func TestBuildRouterRejectsUnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.SessionDir = t.TempDir()
	cfg.Model.Provider = "no-such-provider"

	_, err := buildRouter("test-session", cfg, logger.NoOp())
	require.Error(t, err)
}
