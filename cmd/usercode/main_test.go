package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atlanticdynamic/usercode/internal/config/errz"
	"github.com/atlanticdynamic/usercode/internal/testutil"
	"github.com/atlanticdynamic/usercode/internal/usercode/hooks"
	"github.com/atlanticdynamic/usercode/internal/usercode/registry"
	"github.com/atlanticdynamic/usercode/internal/usercode/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests do not run in parallel: every invocation installs the
// default slog logger.

type fixture struct {
	dir     string
	dataDir string
	config  string
}

func newFixture(t *testing.T, extra string) fixture {
	t.Helper()

	dir := t.TempDir()
	f := fixture{
		dir:     dir,
		dataDir: filepath.Join(dir, "data"),
		config:  filepath.Join(dir, "usercode.toml"),
	}
	content := `log_level = "error"
data_dir = "` + filepath.ToSlash(f.dataDir) + `"

[invalidation]
debounce = "1ms"

[[bots]]
id = "bot1"
` + extra
	require.NoError(t, os.WriteFile(f.config, []byte(content), 0o600))
	return f
}

func (f fixture) write(t *testing.T, rel, source string) string {
	t.Helper()
	return testutil.WriteScript(t, f.dataDir, rel, source)
}

func (f fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(t.Context(), append([]string{"usercode", "--config", f.config}, args...))
	return out.String(), err
}

func decodeReport(t *testing.T, out string) runReport {
	t.Helper()
	var r runReport
	require.NoError(t, json.Unmarshal([]byte(out), &r), out)
	return r
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	require.NoError(t, app.Run(t.Context(), []string{"usercode", "version"}))
	assert.Equal(t, "usercode version dev\n", out.String())
}

func TestConfigRequired(t *testing.T) {
	t.Setenv(envConfig, "")

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(t.Context(), []string{"usercode", "actions", "list"})
	require.ErrorIs(t, err, errConfigRequired)
}

func TestConfigFromEnvironment(t *testing.T) {
	f := newFixture(t, "")
	f.write(t, "global/actions/greet.star", `temp["msg"] = "hi"`+"\n")
	t.Setenv(envConfig, f.config)

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	require.NoError(t, app.Run(t.Context(), []string{"usercode", "actions", "list", "--json"}))
	assert.Contains(t, out.String(), `"name": "greet"`)
}

func TestValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		f := newFixture(t, "")
		out, err := f.run(t, "validate")
		require.NoError(t, err)
		assert.Contains(t, out, "is valid")
		assert.Contains(t, out, "- Bots: 1")
		assert.Contains(t, out, "Use --tree")
	})

	t.Run("tree view", func(t *testing.T) {
		f := newFixture(t, "")
		out, err := f.run(t, "validate", "--tree")
		require.NoError(t, err)
		assert.Contains(t, out, "is valid")
		assert.NotContains(t, out, "Use --tree")
		assert.Contains(t, out, "bot1")
	})

	t.Run("positional path wins", func(t *testing.T) {
		f := newFixture(t, "")
		other := filepath.Join(t.TempDir(), "other.toml")
		require.NoError(t, os.WriteFile(other, []byte("unknown_key = 1\n"), 0o600))

		_, err := f.run(t, "validate", other)
		require.Error(t, err)
		require.ErrorIs(t, err, errz.ErrFailedToLoadConfig)
		assert.Contains(t, err.Error(), "validation failed")
	})

	t.Run("missing file", func(t *testing.T) {
		f := newFixture(t, "")
		_, err := f.run(t, "lint", filepath.Join(f.dir, "missing.toml"))
		require.ErrorIs(t, err, errz.ErrFailedToLoadConfig)
	})
}

func TestActionsList(t *testing.T) {
	f := newFixture(t, "")
	f.write(t, "global/actions/greet.star", `temp["msg"] = "hi"`+"\n")
	f.write(t, "bots/bot1/actions/local.star", `temp["msg"] = "local"`+"\n")

	t.Run("global tree", func(t *testing.T) {
		out, err := f.run(t, "actions", "list")
		require.NoError(t, err)
		assert.Contains(t, out, "global")
		assert.Contains(t, out, "greet")
		assert.NotContains(t, out, "local")
	})

	t.Run("bot json", func(t *testing.T) {
		out, err := f.run(t, "actions", "list", "--bot", "bot1", "--json")
		require.NoError(t, err)

		var got []actionSummary
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		names := make([]string, 0, len(got))
		for _, a := range got {
			names = append(names, a.Name)
		}
		assert.ElementsMatch(t, []string{"greet", "local"}, names)
	})

	t.Run("local only", func(t *testing.T) {
		out, err := f.run(t, "actions", "list", "--bot", "bot1", "--local", "--json")
		require.NoError(t, err)

		var got []actionSummary
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "local", got[0].Name)
		assert.Equal(t, "bots/bot1", got[0].Scope)
	})

	t.Run("local needs bot", func(t *testing.T) {
		_, err := f.run(t, "actions", "list", "--local")
		require.Error(t, err)
	})

	t.Run("unknown bot", func(t *testing.T) {
		_, err := f.run(t, "actions", "list", "--bot", "ghost")
		require.ErrorIs(t, err, errz.ErrBotNotFound)
	})
}

func TestActionsRun(t *testing.T) {
	f := newFixture(t, "")
	f.write(t, "global/actions/greet.star", `temp["msg"] = "hi " + args["who"]`+"\n")
	f.write(t, "global/actions/broken.star", `fail("boom")`+"\n")

	t.Run("runs with args", func(t *testing.T) {
		out, err := f.run(t, "actions", "run", "greet", "--bot", "bot1", "--args", `{"who": "ada"}`)
		require.NoError(t, err)

		r := decodeReport(t, out)
		require.Len(t, r.Outcomes, 1)
		assert.True(t, r.Outcomes[0].Success)
		assert.Equal(t, "hi ada", r.State.Temp["msg"])
		assert.NotEmpty(t, r.Steps)
	})

	t.Run("event file", func(t *testing.T) {
		evPath := filepath.Join(t.TempDir(), "event.json")
		require.NoError(t, os.WriteFile(evPath, []byte(`{
  "id": "evt-1",
  "botId": "bot1",
  "state": {"temp": {}, "user": {"name": "ada"}, "session": {}}
}`), 0o600))

		out, err := f.run(t, "actions", "run", "greet", "--event", evPath, "--args", `{"who": "bob"}`)
		require.NoError(t, err)

		r := decodeReport(t, out)
		assert.Equal(t, "hi bob", r.State.Temp["msg"])
		assert.Equal(t, "ada", r.State.User["name"])
	})

	t.Run("failing action still reports", func(t *testing.T) {
		out, err := f.run(t, "actions", "run", "broken", "--bot", "bot1")
		require.Error(t, err)

		r := decodeReport(t, out)
		require.Len(t, r.Outcomes, 1)
		assert.False(t, r.Outcomes[0].Success)
		assert.Contains(t, r.Outcomes[0].Error, "boom")
	})

	t.Run("unknown action", func(t *testing.T) {
		_, err := f.run(t, "actions", "run", "missing", "--bot", "bot1")
		require.ErrorIs(t, err, registry.ErrActionNotFound)
	})

	t.Run("input errors", func(t *testing.T) {
		tests := []struct {
			name string
			args []string
		}{
			{"no action", []string{"actions", "run", "--bot", "bot1"}},
			{"no bot", []string{"actions", "run", "greet"}},
			{"bad args", []string{"actions", "run", "greet", "--bot", "bot1", "--args", "[1]"}},
			{"missing event file", []string{"actions", "run", "greet", "--event", filepath.Join(f.dir, "nope.json")}},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				_, err := f.run(t, tc.args...)
				require.Error(t, err)
			})
		}
	})
}

func TestActionsCheck(t *testing.T) {
	f := newFixture(t, "")
	f.write(t, "global/shared_libs/greeting.star", "def greet(who):\n    return \"hi \" + who\n")
	f.write(t, "global/actions/good.star", `load("greeting", "greet")`+"\n"+`temp["msg"] = greet("ada")`+"\n")
	f.write(t, "global/actions/bad.star", `load("nowhere", "thing")`+"\n")

	t.Run("single action", func(t *testing.T) {
		out, err := f.run(t, "actions", "check", "good")
		require.NoError(t, err)
		assert.Contains(t, out, "ok")
		assert.Contains(t, out, "good")
	})

	t.Run("all actions", func(t *testing.T) {
		out, err := f.run(t, "actions", "check")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad")
		assert.Contains(t, out, "FAIL")
		assert.Contains(t, out, "good")
	})
}

func TestHooks(t *testing.T) {
	f := newFixture(t, `
[[lifecycles]]
name = "after_bot_mount"
throw_on_error = true
`)
	dir := registry.HookDir(hooks.AfterBotMount)
	f.write(t, "global/"+dir+"/a_greet.star", `temp["order"] = temp.get("order", []) + ["greet"]`+"\n")
	f.write(t, "global/"+dir+"/mymodule/b_setup.star", `temp["order"] = temp.get("order", []) + ["setup"]`+"\n")
	evPath := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(evPath, []byte(`{"id": "evt-1", "botId": "bot1"}`), 0o600))

	t.Run("list", func(t *testing.T) {
		out, err := f.run(t, "hooks", "list")
		require.NoError(t, err)
		assert.Contains(t, out, hooks.AfterBotMount)
		assert.Contains(t, out, "a_greet")
		assert.Contains(t, out, "mymodule")
		assert.Contains(t, out, "throws")
	})

	t.Run("unknown lifecycle", func(t *testing.T) {
		_, err := f.run(t, "hooks", "list", "after_nothing")
		require.ErrorIs(t, err, hooks.ErrUnknownLifecycle)

		_, err = f.run(t, "hooks", "run", "after_nothing")
		require.ErrorIs(t, err, hooks.ErrUnknownLifecycle)
	})

	t.Run("run", func(t *testing.T) {
		out, err := f.run(t, "hooks", "run", hooks.AfterBotMount, "--event", evPath)
		require.NoError(t, err)

		r := decodeReport(t, out)
		assert.Len(t, r.Outcomes, 2)
		assert.Equal(t, []any{"greet", "setup"}, r.State.Temp["order"])
	})

	t.Run("disable and enable", func(t *testing.T) {
		out, err := f.run(t, "hooks", "disable", hooks.AfterBotMount, "b_setup", "--module", "mymodule")
		require.NoError(t, err)
		assert.Contains(t, out, "disabled")

		_, err = f.run(t, "hooks", "disable", hooks.AfterBotMount, "b_setup", "--module", "mymodule")
		require.Error(t, err, "already disabled")

		out, err = f.run(t, "hooks", "run", hooks.AfterBotMount, "--event", evPath)
		require.NoError(t, err)
		assert.Equal(t, []any{"greet"}, decodeReport(t, out).State.Temp["order"])

		_, err = f.run(t, "hooks", "enable", hooks.AfterBotMount, "b_setup", "-m", "mymodule")
		require.NoError(t, err)

		out, err = f.run(t, "hooks", "list", hooks.AfterBotMount)
		require.NoError(t, err)
		assert.Contains(t, out, "b_setup")
	})

	t.Run("toggle needs a name", func(t *testing.T) {
		_, err := f.run(t, "hooks", "enable", hooks.AfterBotMount)
		require.Error(t, err)
	})
}

func TestTasksList(t *testing.T) {
	db := filepath.ToSlash(filepath.Join(t.TempDir(), "tasks.db"))
	f := newFixture(t, "\n[tasks]\ndatabase = \""+db+"\"\n")

	out, err := f.run(t, "tasks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no tasks recorded")

	repo, err := tasks.OpenSQLite(t.Context(), db, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Record(t.Context(), tasks.Start("evt-1", "bot1", "greet", "remote").Complete(200)))
	require.NoError(t, repo.Record(t.Context(), tasks.Start("evt-2", "bot1", "sync", "remote").Fail(502, "bad gateway")))
	require.NoError(t, repo.Close())

	out, err = f.run(t, "tasks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "greet")
	assert.Contains(t, out, "bad gateway")

	out, err = f.run(t, "tasks", "list", "--status", "failed", "--json")
	require.NoError(t, err)
	var got []tasks.Task
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "sync", got[0].ScriptName)

	_, err = f.run(t, "tasks", "list", "--status", "running")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown task status"))
}
