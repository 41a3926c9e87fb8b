package commands

// Blank-imported so each provider package's init() registers itself with
// internal/llm's registry (ai/registry.go's auto-registration pattern).
import (
	_ "github.com/graphmind/graphmind/internal/llm/providers/bedrock"
	_ "github.com/graphmind/graphmind/internal/llm/providers/httpgeneric"
	_ "github.com/graphmind/graphmind/internal/llm/providers/openaicompat"
)
