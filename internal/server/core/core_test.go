package core

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/atlanticdynamic/usercode/internal/config"
	"github.com/atlanticdynamic/usercode/internal/testutil"
	"github.com/atlanticdynamic/usercode/internal/usercode/event"
	"github.com/atlanticdynamic/usercode/internal/usercode/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCore(t *testing.T, extra string) (*Core, string) {
	t.Helper()

	dataDir := t.TempDir()
	cfg, err := config.NewConfigFromBytes([]byte(`data_dir = "` + filepath.ToSlash(dataDir) + `"` + "\n" + extra))
	require.NoError(t, err)

	c, err := New(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, c.Close()) })
	return c, dataDir
}

func TestNew_NilConfig(t *testing.T) {
	t.Parallel()

	_, err := New(t.Context(), nil)
	require.Error(t, err)
}

func TestCore_RunsActionsFromDataDir(t *testing.T) {
	t.Parallel()

	c, dataDir := newCore(t, "[invalidation]\ndebounce = \"1ms\"\n")
	testutil.WriteScript(t, dataDir, "global/shared_libs/greeting.star", "def greet(who):\n    return \"hi \" + who\n")
	testutil.WriteScript(t, dataDir, "bots/bot1/actions/greet.star", "load(\"greeting\", \"greet\")\ntemp[\"msg\"] = greet(args[\"who\"])\n")

	ev := &event.Event{ID: "evt1", BotID: "bot1"}
	out, err := c.Engine().RunAction(t.Context(), "greet", map[string]any{"who": "ada"}, ev)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "hi ada", ev.State.Temp["msg"])

	assert.Equal(t, c.Store().Root(), c.Config().DataDir)
	assert.NotNil(t, c.Hooks())
	assert.Nil(t, c.delegator, "no app secret, no delegation")
}

func TestCore_BusClearsRegistry(t *testing.T) {
	t.Parallel()

	c, dataDir := newCore(t, "[invalidation]\ndebounce = \"1ms\"\n")
	before := c.Registry().Clears()

	c.Bus().Publish(filepath.ToSlash(filepath.Join(dataDir, "global", "actions", "a.star")))
	assert.Equal(t, before+1, c.Registry().Clears())

	c.Bus().Publish(filepath.ToSlash(filepath.Join(dataDir, "README.md")))
	assert.Equal(t, before+1, c.Registry().Clears(), "keys outside user code are ignored")

	c.Reload()
	assert.Equal(t, before+2, c.Registry().Clears())
}

func TestCore_TaskRepository(t *testing.T) {
	t.Parallel()

	t.Run("memory by default", func(t *testing.T) {
		t.Parallel()
		c, _ := newCore(t, "")
		_, ok := c.Tasks().(*tasks.MemoryRepository)
		assert.True(t, ok)
	})

	t.Run("sqlite when configured", func(t *testing.T) {
		t.Parallel()
		db := filepath.ToSlash(filepath.Join(t.TempDir(), "tasks.db"))
		c, _ := newCore(t, "[tasks]\ndatabase = \""+db+"\"\n")
		_, ok := c.Tasks().(*tasks.SQLiteRepository)
		assert.True(t, ok)
	})
}

func TestCore_Delegation(t *testing.T) {
	t.Parallel()

	c, _ := newCore(t, `app_secret = "s3cret"
[[action_servers]]
id = "remote"
base_url = "http://127.0.0.1:1"

[[bots]]
id = "bot1"
action_server = "remote"
`)
	require.NotNil(t, c.delegator)
}

func TestCore_RunAndStop(t *testing.T) {
	t.Parallel()

	c, dataDir := newCore(t, "")
	testutil.WriteScript(t, dataDir, "global/hooks/after_server_start/boot.star", "x = 1\n")

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(t.Context()) }()

	assert.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.runCancel != nil
	}, time.Second, 5*time.Millisecond)

	c.Stop()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("core did not stop")
	}
	assert.Equal(t, "core.Core", c.String())
}
