package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateArithmeticAndScope(t *testing.T) {
	e := New(100 * time.Millisecond)
	out, err := e.Evaluate(context.Background(), "input.count + 1", map[string]interface{}{
		"input": map[string]interface{}{"count": 4.0},
	})
	require.NoError(t, err)
	assert.Equal(t, 5.0, out)
}

func TestEvaluateUndefinedVariableYieldsNilNotError(t *testing.T) {
	e := New(100 * time.Millisecond)
	out, err := e.Evaluate(context.Background(), "input.missing", map[string]interface{}{
		"input": map[string]interface{}{},
	})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestEvaluateCannotReachCapabilitiesNotInScope(t *testing.T) {
	e := New(100 * time.Millisecond)
	_, err := e.Evaluate(context.Background(), "os.Getenv('HOME')", map[string]interface{}{})
	require.Error(t, err)
}

func TestEvaluateTimesOutOnSlowProgram(t *testing.T) {
	e := New(5 * time.Millisecond)
	_, err := e.Evaluate(context.Background(), "reduce(1..5000000, acc + 1, 0)", map[string]interface{}{})
	require.Error(t, err)
}

func TestEvaluateCachesCompiledProgram(t *testing.T) {
	e := New(100 * time.Millisecond)
	scope := map[string]interface{}{"input": map[string]interface{}{"x": 1.0}}

	_, err := e.Evaluate(context.Background(), "input.x", scope)
	require.NoError(t, err)

	e.mu.Lock()
	_, cached := e.cache["input.x"]
	e.mu.Unlock()
	assert.True(t, cached)

	out, err := e.Evaluate(context.Background(), "input.x", scope)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out)
}
