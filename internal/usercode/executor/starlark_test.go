package executor

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atlanticdynamic/usercode/internal/usercode/event"
	"github.com/atlanticdynamic/usercode/internal/usercode/resolver"
	"github.com/atlanticdynamic/usercode/internal/usercode/scripts"
	"github.com/atlanticdynamic/usercode/internal/usercode/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

const actionPath = "/memory/global/actions/test.star"

func newFixture() (*store.MemoryStore, *resolver.Resolver) {
	mem := store.NewMemoryStore()
	res := resolver.New(mem, resolver.Options{
		SharedLibs: mem.Path(scripts.Global(), "shared_libs", ""),
	}, nil)
	return mem, res
}

func program(src string, bindings map[string]any) Program {
	return Program{
		Script:   "test",
		Filename: actionPath,
		Source:   src,
		Target: resolver.Target{
			Path:     actionPath,
			Scope:    scripts.Global(),
			Marker:   "actions",
			Language: scripts.LanguageStarlark,
		},
		Bindings: bindings,
	}
}

func eventBindings() map[string]any {
	ev := &event.Event{
		ID:    "evt1",
		BotID: "bot1",
		State: event.State{
			Temp: map[string]any{"count": 1},
			User: map[string]any{"name": "ana"},
		},
	}
	return map[string]any{
		"args":  map[string]any{"amount": 2},
		"event": ev.Map(),
	}
}

func TestStarlark_StateMutations(t *testing.T) {
	t.Parallel()

	_, res := newFixture()

	tests := []struct {
		name string
		src  string
		want event.StateDelta
	}{
		{
			name: "mutate partition alias",
			src:  `temp["count"] = temp["count"] + args["amount"]`,
			want: event.StateDelta{
				"temp":    {"count": int64(3)},
				"user":    {"name": "ana"},
				"session": {},
			},
		},
		{
			name: "mutate through event state",
			src:  `event["state"]["user"]["name"] = "bo"`,
			want: event.StateDelta{
				"temp":    {"count": int64(1)},
				"user":    {"name": "bo"},
				"session": {},
			},
		},
		{
			name: "reassign partition",
			src:  `session = {"lang": "fr"}`,
			want: event.StateDelta{
				"temp":    {"count": int64(1)},
				"user":    {"name": "ana"},
				"session": {"lang": "fr"},
			},
		},
	}

	for _, mode := range []Mode{ModeDirect, ModeSandboxed} {
		for _, tt := range tests {
			t.Run(mode.String()+"/"+tt.name, func(t *testing.T) {
				t.Parallel()
				exec := newStarlark(mode, res, store.NewMemoryStore())
				result, err := exec.Run(t.Context(), program(tt.src, eventBindings()))
				require.NoError(t, err)
				assert.Equal(t, tt.want, result.State)
			})
		}
	}
}

func TestStarlark_NoPartitionsWithoutState(t *testing.T) {
	t.Parallel()

	mem, res := newFixture()
	result, err := NewSandboxed(res, mem).Run(t.Context(), program("result = 1 + 1", nil))
	require.NoError(t, err)
	assert.Empty(t, result.State)
	assert.Equal(t, int64(2), result.Value)
}

func TestStarlark_SandboxDropsCallerGlobals(t *testing.T) {
	t.Parallel()

	mem, res := newFixture()
	bp := starlarkstruct.FromStringDict(starlark.String("bp"), starlark.StringDict{
		"botId": starlark.String("bot1"),
	})
	bindings := map[string]any{"bp": bp, "args": map[string]any{}}
	src := `result = bp.botId`

	result, err := NewDirect(res, mem).Run(t.Context(), program(src, bindings))
	require.NoError(t, err)
	assert.Equal(t, "bot1", result.Value)

	_, err = NewSandboxed(res, mem).Run(t.Context(), program(src, bindings))
	require.ErrorIs(t, err, ErrSyntax)
	assert.Contains(t, err.Error(), "undefined: bp")
}

func TestStarlark_SandboxPermittedGlobals(t *testing.T) {
	t.Parallel()

	mem, res := newFixture()
	bindings := map[string]any{
		"suggestions": []any{"a", "b"},
		"secret":      "hidden",
	}

	p := program(`result = len(suggestions)`, bindings)
	p.Permitted = []string{"suggestions"}
	result, err := NewSandboxed(res, mem).Run(t.Context(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Value)

	p = program(`result = secret`, bindings)
	p.Permitted = []string{"suggestions"}
	_, err = NewSandboxed(res, mem).Run(t.Context(), p)
	require.ErrorIs(t, err, ErrSyntax)
}

func TestStarlark_Imports(t *testing.T) {
	t.Parallel()

	mem, res := newFixture()
	mem.PutPath("/memory/global/shared_libs/money.star", `
load("@stdlib/math", "math")
_rate = 2

def double(x):
    return math.floor(x * _rate)
`)
	mem.PutPath("/memory/global/actions/helpers.star", "PREFIX = 'n='\n")

	src := `
load("money", "double")
load("./helpers", "PREFIX")
json = require("@stdlib/json")
money = require("money")
result = PREFIX + json.encode({"v": double(args["amount"]), "again": money.double(1)})
`
	for _, exec := range []*Starlark{NewDirect(res, mem), NewSandboxed(res, mem)} {
		result, err := exec.Run(t.Context(), program(src, eventBindings()))
		require.NoError(t, err, exec.Mode().String())
		assert.Equal(t, `n={"again":2,"v":4}`, result.Value)
	}
}

func TestStarlark_PrivateNamesNotExported(t *testing.T) {
	t.Parallel()

	mem, res := newFixture()
	mem.PutPath("/memory/global/shared_libs/lib.star", "_hidden = 1\nshown = 2\n")

	_, err := NewSandboxed(res, mem).Run(t.Context(), program(`result = require("lib")._hidden`, nil))
	require.ErrorIs(t, err, ErrRuntime)
}

func TestStarlark_Errors(t *testing.T) {
	t.Parallel()

	mem, res := newFixture()
	mem.PutPath("/memory/global/shared_libs/broken.star", "def (\n")

	tests := []struct {
		name    string
		src     string
		opts    []Option
		timeout time.Duration
		want    error
		reason  string
	}{
		{name: "runtime", src: `fail("boom")`, want: ErrRuntime},
		{name: "syntax", src: "def main(:\n", want: ErrSyntax},
		{name: "syntax in library", src: `load("broken", "x")`, want: ErrSyntax},
		{name: "missing module", src: `load("nowhere", "x")`, want: ErrModuleNotFound},
		{name: "missing module via require", src: `x = require("nowhere")`, want: ErrModuleNotFound},
		{name: "unknown builtin", src: `load("@stdlib/os", "os")`, want: ErrModuleNotFound},
		{
			name:    "timeout",
			src:     "while True:\n    pass\n",
			timeout: 50 * time.Millisecond,
			want:    ErrTimeout,
			reason:  "timeout",
		},
		{
			name:   "step budget",
			src:    "while True:\n    pass\n",
			opts:   []Option{WithMaxSteps(1000)},
			want:   ErrTimeout,
			reason: "max_steps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			exec := NewSandboxed(res, mem, tt.opts...)
			p := program(tt.src, nil)
			p.Timeout = tt.timeout

			start := time.Now()
			_, err := exec.Run(t.Context(), p)
			require.ErrorIs(t, err, tt.want)
			assert.Less(t, time.Since(start), 2*time.Second)

			var ee *ExecutionError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, "test", ee.Script)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, ee.Reason)
			}
		})
	}
}

func TestStarlark_RuntimeBacktrace(t *testing.T) {
	t.Parallel()

	mem, res := newFixture()
	src := "def inner():\n    fail('deep')\n\ninner()\n"
	_, err := NewDirect(res, mem).Run(t.Context(), program(src, nil))

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindRuntime, ee.Kind)
	assert.Contains(t, ee.Stacktrace(), "inner")
	assert.Contains(t, ee.Stacktrace(), "deep")
}

func TestStarlark_DirectHasNoTimeout(t *testing.T) {
	t.Parallel()

	mem, res := newFixture()
	exec := NewDirect(res, mem, WithTimeout(10*time.Millisecond))
	src := "n = 0\nfor i in range(200000):\n    n += i\nresult = n\n"
	result, err := exec.Run(t.Context(), program(src, nil))
	require.NoError(t, err)
	assert.Equal(t, int64(19999900000), result.Value)
}

func TestStarlark_Print(t *testing.T) {
	t.Parallel()

	mem, res := newFixture()
	var mu sync.Mutex
	var lines []string
	p := program(`print("hello", args["amount"])`, eventBindings())
	p.Print = func(msg string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, msg)
	}

	_, err := NewSandboxed(res, mem).Run(t.Context(), p)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello 2"}, lines)
}

func TestStarlark_ProcessBinding(t *testing.T) {
	t.Parallel()

	mem, res := newFixture()
	snapshot := map[string]any{"env": map[string]any{"HOME": "/home/bot"}, "platform": "linux"}
	exec := NewSandboxed(res, mem, WithProcess(snapshot))

	result, err := exec.Run(t.Context(), program(`result = process["env"]["HOME"]`, nil))
	require.NoError(t, err)
	assert.Equal(t, "/home/bot", result.Value)
}

func TestProcessSnapshot(t *testing.T) {
	t.Setenv("USERCODE_TEST_API_TOKEN", "s3cr3t")
	t.Setenv("USERCODE_TEST_REGION", "eu")

	snapshot, err := ProcessSnapshot(DefaultSecretPatterns)
	require.NoError(t, err)
	env, ok := snapshot["env"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "eu", env["USERCODE_TEST_REGION"])
	assert.NotContains(t, env, "USERCODE_TEST_API_TOKEN")
	for name := range env {
		assert.False(t, strings.Contains(strings.ToUpper(name), "SECRET"), name)
	}

	_, err = ProcessSnapshot([]string{"[unclosed"})
	require.Error(t, err)
}
