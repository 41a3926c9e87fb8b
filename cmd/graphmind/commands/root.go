// Package commands contains the Cobra subcommands for the graphmind
// binary. Grounded on bartekus-stagecraft's internal/cli command-tree
// idiom: one root command with persistent flags, subcommands registered
// in lexicographic order, each subcommand in its own file with a
// dependency-injectable runX function underneath its Cobra RunE.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand constructs the graphmind root Cobra command.
func NewRootCommand() *cobra.Command {
	version := os.Getenv("GRAPHMIND_VERSION")
	if version == "" {
		version = "0.0.0-dev"
	}

	cmd := &cobra.Command{
		Use:           "graphmind",
		Short:         "GraphMind — an autonomous cloud-infrastructure design agent",
		Long:          "GraphMind lifts a free-text request into an intent graph, reasons it into an architecture, expands it into an implementation graph, and deploys it through a self-healing verification pipeline.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "path to a graphmind config YAML file")
	cmd.PersistentFlags().StringP("log-level", "l", "", "override the configured log level")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the graphmind version",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "graphmind version "+version)
		},
	})

	// Subcommands registered in lexicographic order by .Use.
	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewSessionCommand())

	return cmd
}
