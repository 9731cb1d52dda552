package executor

import (
	"testing"

	"github.com/atlanticdynamic/usercode/internal/usercode/scripts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func risorProgram(src string, bindings map[string]any) Program {
	p := program(src, bindings)
	p.Filename = "/memory/global/actions/test.risor"
	p.Language = scripts.LanguageRisor
	return p
}

func TestRisor_ReturnedPartitionsReplaceState(t *testing.T) {
	t.Parallel()

	exec := NewRisor()
	src := `{"temp": {"doubled": ctx["args"]["amount"] * 2}}`

	result, err := exec.Run(t.Context(), risorProgram(src, eventBindings()))
	require.NoError(t, err)

	require.Contains(t, result.State, "temp")
	assert.EqualValues(t, 4, result.State["temp"]["doubled"])
	assert.Equal(t, map[string]any{"name": "ana"}, result.State["user"], "untouched partitions are kept")
}

func TestRisor_NonMapResult(t *testing.T) {
	t.Parallel()

	result, err := NewRisor().Run(t.Context(), risorProgram(`ctx["args"]["amount"] + 1`, eventBindings()))
	require.NoError(t, err)
	assert.EqualValues(t, 3, result.Value)
	assert.EqualValues(t, 1, result.State["temp"]["count"])
}

func TestRisor_CompileError(t *testing.T) {
	t.Parallel()

	_, err := NewRisor().Run(t.Context(), risorProgram(`func (`, nil))
	require.ErrorIs(t, err, ErrSyntax)
}

func TestGivenPartitions(t *testing.T) {
	t.Parallel()

	bindings := eventBindings()
	bindings["session"] = map[string]any{"direct": true}

	got := givenPartitions(bindings)
	assert.Equal(t, map[string]any{"direct": true}, got["session"])
	assert.EqualValues(t, 1, got["temp"]["count"])

	got["temp"]["count"] = 99
	state := bindings["event"].(map[string]any)["state"].(map[string]any)
	assert.EqualValues(t, 1, state["temp"].(map[string]any)["count"], "partitions are copied")
}
