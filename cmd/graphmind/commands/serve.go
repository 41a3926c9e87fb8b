package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/graphmind/graphmind/internal/config"
	"github.com/graphmind/graphmind/internal/llm"
	"github.com/graphmind/graphmind/internal/logger"
	"github.com/graphmind/graphmind/internal/orchestrator"
	"github.com/graphmind/graphmind/internal/session"
	"github.com/graphmind/graphmind/internal/telemetry"
	"github.com/graphmind/graphmind/internal/transport"
)

// NewServeCommand returns the `graphmind serve` command: boots the HTTP
// server that streams Orchestrator phase progress over SSE/WebSocket.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the GraphMind HTTP server",
		Long:  "Loads configuration, resolves an LLM provider, and serves the Orchestrator's submit/approve/modify/deploy/reset/session/graph/cost/simulate endpoints over SSE and (if built with -tags websocket) WebSocket.",
		RunE:  runServe,
	}

	cmd.Flags().String("otel-endpoint", "", "OTLP/gRPC trace collector endpoint (falls back to stdout tracing when empty)")
	cmd.Flags().String("session-id", "default", "session identifier; one server process currently serves one session directory")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("serve: load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	log := logger.New(cfg.LogLevel)

	otelEndpoint, _ := cmd.Flags().GetString("otel-endpoint")
	telemetryProvider, err := telemetry.New("graphmind", otelEndpoint)
	if err != nil {
		return fmt.Errorf("serve: set up telemetry: %w", err)
	}
	defer telemetryProvider.Shutdown(ctx)

	sessionID, _ := cmd.Flags().GetString("session-id")
	router, err := buildRouter(sessionID, cfg, log)
	if err != nil {
		return err
	}

	log.Info("graphmind listening", "addr", cfg.HTTPAddr)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}

// buildRouter wires a Session Manager, LLM Client, Cost Table, and
// Orchestrator into an HTTP handler. Split out from runServe so tests can
// exercise the wiring without binding a real listening socket.
func buildRouter(sessionID string, cfg *config.Config, log logger.Logger) (http.Handler, error) {
	var redisStore *session.RedisStore
	if cfg.Redis.Enabled {
		redisStore = session.NewRedisStore(cfg.Redis.Addr, 0)
	}

	sess, err := session.NewManager(sessionID, cfg.SessionDir, redisStore, log)
	if err != nil {
		return nil, fmt.Errorf("serve: open session %q: %w", sessionID, err)
	}

	provider, err := llm.Create(cfg.Model.Provider, llm.ProviderConfig{
		Model:       cfg.Model.Model,
		APIKey:      cfg.Model.APIKey,
		BaseURL:     cfg.Model.BaseURL,
		Region:      cfg.Model.Region,
		Temperature: cfg.Model.Temperature,
		MaxTokens:   cfg.Model.MaxTokens,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("serve: resolve LLM provider: %w", err)
	}
	model := llm.New(provider, log).WithRetryConfig(llm.RetryConfig{
		MaxAttempts: cfg.Model.MaxAttempts,
		Delay:       cfg.Model.RetryDelay,
	})

	costTable := config.NewCostTable(cfg.CostTable)
	o := orchestrator.New(sess, model, costTable, cfg, log)

	return transport.NewRouter(o, log), nil
}
