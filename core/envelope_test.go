package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := map[string]any{
		"summary": "Revenue grew 21.7%",
		"actions": []any{
			map[string]any{"action": "Expand sales team", "rating": 9.0},
		},
	}

	text, err := BuildEnvelope(StrategyPrefix, payload)
	require.NoError(t, err)
	assert.True(t, len(text) > len(StrategyPrefix))

	decoded, ok := ExtractEnvelope(text, StrategyPrefix)
	require.True(t, ok)
	assert.Equal(t, payload, decoded)
}

func TestExtractEnvelopeWithSurroundingText(t *testing.T) {
	text := `ANALYSIS: Revenue trend is positive. | DATA: {"quarters": ["Q1", "Q2"], "revenue": [2.3, 2.8]}`

	payload, ok := ExtractEnvelope(text, DataPrefix)
	require.True(t, ok)
	assert.Equal(t, []any{"Q1", "Q2"}, payload["quarters"])
}

func TestExtractEnvelopeNestedBraces(t *testing.T) {
	text := `CHART_CONFIG: {"type": "line", "data": {"labels": ["Q1"], "values": [2.3]}} trailing`

	payload, ok := ExtractEnvelope(text, "CHART_CONFIG:")
	require.True(t, ok)
	data, ok := payload["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"Q1"}, data["labels"])
}

func TestExtractEnvelopeStringWithBraces(t *testing.T) {
	text := `DATA: {"note": "uses {curly} braces and a \" quote", "n": 1}`

	payload, ok := ExtractEnvelope(text, DataPrefix)
	require.True(t, ok)
	assert.Equal(t, 1.0, payload["n"])
}

func TestExtractEnvelopeFailures(t *testing.T) {
	cases := map[string]string{
		"missing prefix":    `{"a": 1}`,
		"no object":         "DATA: nothing here",
		"unbalanced braces": `DATA: {"a": {"b": 1}`,
		"invalid json":      `DATA: {not json}`,
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			payload, ok := ExtractEnvelope(text, DataPrefix)
			assert.False(t, ok)
			assert.Nil(t, payload)
		})
	}
}
