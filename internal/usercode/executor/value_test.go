package executor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestToStarlark(t *testing.T) {
	t.Parallel()

	v, err := ToStarlark(map[string]any{
		"list":   []any{1, "two", nil},
		"nested": []map[string]any{{"a": true}},
		"float":  1.5,
	})
	require.NoError(t, err)

	d, ok := v.(*starlark.Dict)
	require.True(t, ok)
	assert.Equal(t, 3, d.Len())

	back, err := FromStarlark(v)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"list":   []any{int64(1), "two", nil},
		"nested": []any{map[string]any{"a": true}},
		"float":  1.5,
	}, back)
}

func TestToStarlark_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := ToStarlark(map[string]any{"ch": make(chan int)})
	require.ErrorIs(t, err, ErrUnsupportedValue)

	_, err = ToStarlark(map[int]string{1: "x"})
	require.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestFromStarlark_Errors(t *testing.T) {
	t.Parallel()

	d := starlark.NewDict(1)
	require.NoError(t, d.SetKey(starlark.MakeInt(1), starlark.True))
	_, err := FromStarlark(d)
	require.ErrorIs(t, err, ErrUnsupportedValue)

	_, err = FromStarlark(starlark.NewBuiltin("f", nil))
	require.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestExecutionError(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: connection refused")
	err := &ExecutionError{Kind: KindTransportFailure, Script: "fetch", Reason: "http:connection_refused", Err: cause}

	require.ErrorIs(t, err, ErrTransportFailure)
	require.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrRuntime)
	assert.Equal(t, "TransportFailure error in fetch (http:connection_refused): dial tcp: connection refused", err.Error())
	assert.Equal(t, err.Error(), err.Stacktrace())

	wrapped := AsExecutionError("other", cause)
	assert.Equal(t, KindRuntime, wrapped.Kind)
	assert.Same(t, err, AsExecutionError("other", err))
	assert.Nil(t, AsExecutionError("other", nil))
}
