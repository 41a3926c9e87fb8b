// Command graphmind runs the GraphMind Orchestrator: either as an HTTP
// server streaming phase progress over SSE/WebSocket, or as a one-shot
// session inspection tool.
package main

import (
	"fmt"
	"os"

	"github.com/graphmind/graphmind/cmd/graphmind/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
