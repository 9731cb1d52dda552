package watcher

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atlanticdynamic/usercode/internal/server/finitestate"
	"github.com/atlanticdynamic/usercode/internal/usercode/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *recorder) listen(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

func (r *recorder) seen(suffix string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.ContainsFunc(r.keys, func(k string) bool { return strings.HasSuffix(k, suffix) })
}

func startRunner(t *testing.T, root string) (*Runner, *recorder, chan error) {
	t.Helper()

	b := bus.New(nil)
	rec := &recorder{}
	b.Subscribe(rec.listen)

	r, err := NewRunner(root, b)
	require.NoError(t, err)
	assert.Equal(t, finitestate.StatusNew, r.GetState())

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(t.Context()) }()

	require.Eventually(t, r.IsRunning, time.Second, 10*time.Millisecond)
	return r, rec, errCh
}

func TestNewRunner_RequiresPublisher(t *testing.T) {
	t.Parallel()

	_, err := NewRunner(t.TempDir(), nil)
	require.Error(t, err)
}

func TestRunner_PublishesChanges(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	actions := filepath.Join(root, "global", "actions")
	require.NoError(t, os.MkdirAll(actions, 0o755))

	r, rec, errCh := startRunner(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(actions, "greet.star"), []byte("x = 1"), 0o600))
	assert.Eventually(t, func() bool { return rec.seen("/global/actions/greet.star") },
		2*time.Second, 10*time.Millisecond)

	// directories created after boot are picked up
	hooksDir := filepath.Join(root, "bots", "b1", "hooks", "after_bot_mount")
	require.NoError(t, os.MkdirAll(hooksDir, 0o755))
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.watched[hooksDir]
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(hooksDir, "a.star"), []byte("x = 1"), 0o600))
	assert.Eventually(t, func() bool { return rec.seen("/hooks/after_bot_mount/a.star") },
		2*time.Second, 10*time.Millisecond)

	r.Stop()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
	assert.Equal(t, finitestate.StatusStopped, r.GetState())
}

func TestRunner_CreatesMissingRoot(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "not", "yet")
	r, _, errCh := startRunner(t, root)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	r.Stop()
	require.NoError(t, <-errCh)
}

func TestRunner_SkipsVendoredDirs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "global", "node_modules", "pkg"), 0o755))

	r, _, errCh := startRunner(t, root)

	r.mu.Lock()
	for dir := range r.watched {
		assert.NotContains(t, dir, "node_modules")
	}
	r.mu.Unlock()

	assert.True(t, skipped("/data/global/node_modules/pkg/index.js"))
	assert.False(t, skipped("/data/global/actions/a.star"))

	r.Stop()
	require.NoError(t, <-errCh)
}
