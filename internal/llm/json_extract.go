package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/graphmind/graphmind/internal/graphmodel"
)

// ExtractJSON scans text for the first brace-balanced `{...}` object and
// unmarshals it. Model responses routinely wrap the JSON payload in
// prose or a "THOUGHT: ..." preamble (per the original implementation's
// generate_intent_stream), so extraction cannot assume the response is
// pure JSON.
func ExtractJSON(text string) (map[string]interface{}, error) {
	raw, err := braceBalance(text)
	if err != nil {
		return nil, graphmodel.NewError("llm.ExtractJSON", "parse", fmt.Errorf("%w: %v", graphmodel.ErrParse, err))
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, graphmodel.NewError("llm.ExtractJSON", "parse", fmt.Errorf("%w: %v", graphmodel.ErrParse, err))
	}
	return out, nil
}

// braceBalance returns the substring spanning the first `{` through its
// matching `}`, tracking string literals and escapes so braces inside
// quoted values don't confuse the count.
func braceBalance(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", fmt.Errorf("no opening brace found")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced braces")
}

// LastJSONLine scans logLines in reverse for the last brace-balanced JSON
// object, used to parse a verify-stage test script's trailing status map
// (§4.6, S6). Returns an error if no line contains one.
func LastJSONLine(logLines []string) (map[string]string, error) {
	for i := len(logLines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(logLines[i])
		if line == "" || !strings.Contains(line, "{") {
			continue
		}
		raw, err := braceBalance(line)
		if err != nil {
			continue
		}
		var out map[string]string
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			continue
		}
		return out, nil
	}
	return nil, fmt.Errorf("no status map")
}

// topLevelAliases maps alternate key names a model might use onto the
// canonical schema key, per §4.4.1's remap table.
var topLevelAliases = map[string]string{
	"add_resources": "resources",
	"add_edges":     "edges",
}

var endpointAliases = map[string]string{
	"from":       "source",
	"source_id":  "source",
	"from_id":    "source",
	"to":         "target",
	"target_id":  "target",
	"to_id":      "target",
}

var parentAliases = map[string]string{
	"parent": "parent_id",
}

// NormalizeGraphPayload remaps alias keys and sanitizes resource statuses
// in a decoded model payload, in place, returning the same map for
// convenience. Per §4.4.1: resources/edges aliasing, from/to aliasing on
// each edge, parent aliasing on each resource, and proposed→planned
// status sanitization (a freshly-generated graph has no "proposed"
// resources yet — that status only appears in a pending-modification
// graph, per I6).
func NormalizeGraphPayload(payload map[string]interface{}) map[string]interface{} {
	for from, to := range topLevelAliases {
		if v, ok := payload[from]; ok {
			if _, exists := payload[to]; !exists {
				payload[to] = v
			}
			delete(payload, from)
		}
	}

	if resources, ok := payload["resources"].([]interface{}); ok {
		for _, item := range resources {
			r, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			for from, to := range parentAliases {
				if v, ok := r[from]; ok {
					if _, exists := r[to]; !exists {
						r[to] = v
					}
					delete(r, from)
				}
			}
			if status, ok := r["status"].(string); ok && status == "proposed" {
				r["status"] = "planned"
			}
		}
	}

	if edges, ok := payload["edges"].([]interface{}); ok {
		for _, item := range edges {
			e, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			for from, to := range endpointAliases {
				if v, ok := e[from]; ok {
					if _, exists := e[to]; !exists {
						e[to] = v
					}
					delete(e, from)
				}
			}
		}
	}

	return payload
}

// AliasEndpointKeys remaps a single edge map's from/source_id/from_id and
// to/target_id/to_id keys onto source/target in place. Exported for
// internal/orchestrator's plan-diff decoding, which aliases edges
// individually rather than through a single top-level "edges" list.
func AliasEndpointKeys(edge map[string]interface{}) {
	for from, to := range endpointAliases {
		if v, ok := edge[from]; ok {
			if _, exists := edge[to]; !exists {
				edge[to] = v
			}
			delete(edge, from)
		}
	}
}

// Remarshal is a generic JSON re-encode/decode helper: it serializes
// payload and decodes it into out, letting the standard struct tags do
// field mapping instead of hand-written type assertions. Exported for
// internal/orchestrator's PlanDiff decoding.
func Remarshal(payload map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
