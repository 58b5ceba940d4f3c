package llm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractJSONPlain(t *testing.T) {
	doc, err := ExtractJSON(`{"score": 7, "recommendation": "ACTIVATE"}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"score": 7, "recommendation": "ACTIVATE"}`, doc)
}

func TestExtractJSONFenced(t *testing.T) {
	content := "Here is my analysis:\n```json\n{\"score\": 4}\n```\nLet me know."
	doc, err := ExtractJSON(content)
	require.NoError(t, err)
	require.JSONEq(t, `{"score": 4}`, doc)
}

func TestExtractJSONEmbeddedInProse(t *testing.T) {
	content := `Sure! The result is {"ideas": ["a", "b"]} as requested.`
	doc, err := ExtractJSON(content)
	require.NoError(t, err)
	require.JSONEq(t, `{"ideas": ["a", "b"]}`, doc)
}

func TestExtractJSONRepairsMalformed(t *testing.T) {
	// Trailing comma and single quotes, typical small-model output.
	content := "{'score': 5, 'risks': ['churn',],}"
	doc, err := ExtractJSON(content)
	require.NoError(t, err)

	var parsed struct {
		Score float64  `json:"score"`
		Risks []string `json:"risks"`
	}
	require.NoError(t, Decode(doc, &parsed))
	require.Equal(t, 5.0, parsed.Score)
	require.Equal(t, []string{"churn"}, parsed.Risks)
}

func TestExtractJSONFailure(t *testing.T) {
	_, err := ExtractJSON("I cannot answer that question.")
	var pf *ParseFailure
	require.ErrorAs(t, err, &pf)
	require.Equal(t, "I cannot answer that question.", pf.Raw)
}

func TestDecodeArray(t *testing.T) {
	content := "```\n[{\"name\": \"tool-a\"}, {\"name\": \"tool-b\"}]\n```"
	var ideas []struct {
		Name string `json:"name"`
	}
	require.NoError(t, Decode(content, &ideas))
	require.Len(t, ideas, 2)
	require.Equal(t, "tool-a", ideas[0].Name)
}

func TestDecodeTypeMismatchIsParseFailure(t *testing.T) {
	var target struct {
		Score float64 `json:"score"`
	}
	err := Decode(`{"score": "seven"}`, &target)
	var pf *ParseFailure
	require.ErrorAs(t, err, &pf)
}
