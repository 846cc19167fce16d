package expressions

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPrefixes(t *testing.T) {
	tests := []struct {
		in     string
		engine string
		body   string
	}{
		{"cel: outputs.a == 'ok'", "cel", "outputs.a == 'ok'"},
		{"expr: outputs?.a ?? false", "expr", "outputs?.a ?? false"},
		{"outputs.a == 'ok'", "cel", "outputs.a == 'ok'"},
	}
	for _, tt := range tests {
		engine, body := Split(tt.in)
		assert.Equal(t, tt.engine, engine)
		assert.Equal(t, tt.body, body)
	}
}

func TestCELEvaluateCondition(t *testing.T) {
	eng, err := NewCELEngine()
	require.NoError(t, err)

	out, err := eng.Evaluate(context.Background(), `outputs["triage"].intent == "research"`, map[string]any{
		"outputs": map[string]any{"triage": map[string]any{"intent": "research"}},
	})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCELMissingScopeDefaultsToEmpty(t *testing.T) {
	eng, err := NewCELEngine()
	require.NoError(t, err)

	out, err := eng.Evaluate(context.Background(), `"x" in outputs`, nil)
	require.NoError(t, err)
	assert.Equal(t, false, out)
}

func TestCELCheckRejectsBadSyntax(t *testing.T) {
	eng, err := NewCELEngine()
	require.NoError(t, err)
	assert.Error(t, eng.Check("outputs ==="))
	assert.NoError(t, eng.Check("1 + 1 == 2"))
}

func TestExprEvaluate(t *testing.T) {
	eng := NewExprEngine()
	out, err := eng.Evaluate(context.Background(), `score > 3 and label != nil`, map[string]any{
		"score": 5,
		"label": "high",
	})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestRegistryRoutesAndCoerces(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	ok, err := reg.EvaluateBool(context.Background(), "expr: count ?? 0 > 0", map[string]any{"count": 2})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.EvaluateBool(context.Background(), `inputs["mode"] == "dry"`, map[string]any{
		"inputs": map[string]any{"mode": "wet"},
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGoJQSelector(t *testing.T) {
	eng := NewGoJQEngine()

	sel, err := eng.Selector(".choices[0].message.content")
	require.NoError(t, err)

	out, err := sel(json.RawMessage(`{"choices":[{"message":{"content":"hi"}}]}`))
	require.NoError(t, err)
	assert.Equal(t, `"hi"`, string(out))
}

func TestGoJQSelectorBadProgram(t *testing.T) {
	eng := NewGoJQEngine()
	_, err := eng.Selector(".[unclosed")
	assert.Error(t, err)
}
