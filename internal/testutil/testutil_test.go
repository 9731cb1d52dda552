package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreePort_Unique(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		ports = make(map[int]bool)
	)
	for range 20 {
		wg.Go(func() {
			p := FreePort(t)
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, ports[p], "port %d handed out twice", p)
			ports[p] = true
		})
	}
	wg.Wait()
	assert.Len(t, ports, 20)
}

func TestListenAddress(t *testing.T) {
	t.Parallel()

	addr := ListenAddress(t)
	assert.Regexp(t, `^127\.0\.0\.1:\d+$`, addr)
}

func TestSyncBuffer(t *testing.T) {
	t.Parallel()

	var (
		b  SyncBuffer
		wg sync.WaitGroup
	)
	for i := range 10 {
		wg.Go(func() { fmt.Fprintf(&b, "line %d\n", i) })
	}
	wg.Wait()
	assert.True(t, b.Contains("line 7"))
	assert.False(t, b.Contains("line 10"))
}

func TestWriteScript(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	p := WriteScript(t, root, "bots/b1/actions/greet.star", "x = 1\n")
	assert.Equal(t, filepath.Join(root, "bots", "b1", "actions", "greet.star"), p)

	raw, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(raw))
}
