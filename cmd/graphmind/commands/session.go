package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graphmind/graphmind/internal/config"
	"github.com/graphmind/graphmind/internal/logger"
	"github.com/graphmind/graphmind/internal/session"
)

// NewSessionCommand returns the `graphmind session` command group, for
// inspecting and resetting a session directory without starting the HTTP
// server.
func NewSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or reset a GraphMind session",
	}

	cmd.PersistentFlags().String("session-id", "default", "session identifier")

	cmd.AddCommand(newSessionResetCommand())
	cmd.AddCommand(newSessionShowCommand())

	return cmd
}

func newSessionShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print a session's current state as JSON",
		RunE:  runSessionShow,
	}
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	mgr, err := openSessionManager(cmd)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(mgr.State(), "", "  ")
	if err != nil {
		return fmt.Errorf("session show: encode state: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func newSessionResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Hard-reset a session to idle, discarding every graph and the decision log",
		RunE:  runSessionReset,
	}
}

func runSessionReset(cmd *cobra.Command, args []string) error {
	mgr, err := openSessionManager(cmd)
	if err != nil {
		return err
	}
	if err := mgr.HardReset(); err != nil {
		return fmt.Errorf("session reset: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), "session reset to idle")
	return err
}

// openSessionManager is the dependency-injection seam shared by the
// session subcommands: every RunE funnels through here so tests can stub
// session directories without touching global state.
func openSessionManager(cmd *cobra.Command) (*session.Manager, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("session: load config: %w", err)
	}

	sessionID, _ := cmd.Flags().GetString("session-id")
	return session.NewManager(sessionID, cfg.SessionDir, nil, logger.NoOp())
}
