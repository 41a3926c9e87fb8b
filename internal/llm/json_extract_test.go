package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONIgnoresSurroundingProse(t *testing.T) {
	text := `THOUGHT: isolating the database now.
{"resources": [{"id": "db", "type": "aws_db_instance"}], "edges": []}
trailing commentary`
	out, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Contains(t, out, "resources")
}

func TestExtractJSONHandlesBracesInsideStrings(t *testing.T) {
	text := `{"reasoning": "uses { and } inside a string", "edges": []}`
	out, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Equal(t, "uses { and } inside a string", out["reasoning"])
}

func TestLastJSONLineScansInReverse(t *testing.T) {
	lines := []string{
		`{"not": "the one"}`,
		"some noise",
		`{"vpc-main": "success", "web": "failed"}`,
	}
	statuses, err := LastJSONLine(lines)
	require.NoError(t, err)
	assert.Equal(t, "failed", statuses["web"])
}

func TestLastJSONLineNoStatusMap(t *testing.T) {
	_, err := LastJSONLine([]string{"no json here at all"})
	assert.Error(t, err)
}

func TestNormalizeGraphPayloadAliasesAndSanitizes(t *testing.T) {
	payload := map[string]interface{}{
		"add_resources": []interface{}{
			map[string]interface{}{"id": "db", "parent": "vpc", "status": "proposed"},
		},
		"add_edges": []interface{}{
			map[string]interface{}{"from_id": "web", "to": "db"},
		},
	}
	out := NormalizeGraphPayload(payload)

	resources := out["resources"].([]interface{})
	r := resources[0].(map[string]interface{})
	assert.Equal(t, "vpc", r["parent_id"])
	assert.Equal(t, "planned", r["status"])

	edges := out["edges"].([]interface{})
	e := edges[0].(map[string]interface{})
	assert.Equal(t, "web", e["source"])
	assert.Equal(t, "db", e["target"])
}
