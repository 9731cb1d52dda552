package execution

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/atlanticdynamic/usercode/internal/usercode/execution/finitestate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Lifecycle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		strategy string
		fail     bool
		want     string
	}{
		{name: "direct completes", strategy: finitestate.StateDirect, want: finitestate.StateCompleted},
		{name: "sandboxed fails", strategy: finitestate.StateSandboxed, fail: true, want: finitestate.StateFailed},
		{name: "delegated completes", strategy: finitestate.StateDelegated, want: finitestate.StateCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			run, err := New("greet", "bot1", "evt1", nil)
			require.NoError(t, err)
			assert.Equal(t, finitestate.StateLoaded, run.GetState())
			assert.False(t, run.IsDone())
			assert.False(t, run.ID.IsNil())

			require.NoError(t, run.Begin(tt.strategy))
			if tt.fail {
				require.NoError(t, run.Fail(errors.New("boom")))
			} else {
				require.NoError(t, run.Complete())
			}
			assert.Equal(t, tt.want, run.GetState())
			assert.True(t, run.IsDone())

			// terminal states accept no further transition
			require.Error(t, run.Complete())
		})
	}
}

func TestRun_InvalidTransition(t *testing.T) {
	t.Parallel()

	run, err := New("greet", "", "", nil)
	require.NoError(t, err)
	require.Error(t, run.Complete(), "a run must pick a strategy first")
	require.Error(t, run.Begin("bogus"))
}

func TestRun_Logs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	run, err := New("greet", "bot1", "evt1", handler)
	require.NoError(t, err)
	run.Print("hello from script")
	require.NoError(t, run.Begin(finitestate.StateSandboxed))
	require.NoError(t, run.Complete())

	logs := run.Logs()
	var messages []string
	for _, l := range logs {
		messages = append(messages, l.Message)
	}
	assert.Contains(t, messages, "hello from script")
	assert.Contains(t, messages, "Run completed")
	assert.Contains(t, buf.String(), "hello from script", "records are forwarded")

	var replay bytes.Buffer
	require.NoError(t, run.PlaybackLogs(slog.NewTextHandler(&replay, &slog.HandlerOptions{Level: slog.LevelDebug})))
	assert.Contains(t, replay.String(), "hello from script")
	assert.Positive(t, run.Duration())
}
