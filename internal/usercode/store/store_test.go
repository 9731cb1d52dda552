package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/atlanticdynamic/usercode/internal/usercode/scripts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeUnderTest bundles a store with a way to seed it.
type storeUnderTest struct {
	name  string
	store Store
	put   func(t *testing.T, scope scripts.Scope, dir, name, src string)
}

func newStores(t *testing.T) []storeUnderTest {
	t.Helper()

	disk, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	mem := NewMemoryStore()

	return []storeUnderTest{
		{
			name:  "disk",
			store: disk,
			put: func(t *testing.T, scope scripts.Scope, dir, name, src string) {
				t.Helper()
				require.NoError(t, disk.Write(t.Context(), scope, dir, name, src))
			},
		},
		{
			name:  "memory",
			store: mem,
			put: func(t *testing.T, scope scripts.Scope, dir, name, src string) {
				t.Helper()
				mem.Put(scope, dir, name, src)
			},
		},
	}
}

func TestStore_List(t *testing.T) {
	t.Parallel()

	for _, st := range newStores(t) {
		t.Run(st.name, func(t *testing.T) {
			global := scripts.Global()
			st.put(t, global, "actions", "b.star", "x = 1")
			st.put(t, global, "actions", "a.star", "x = 1")
			st.put(t, global, "actions", "builtin/set.star", "x = 1")
			st.put(t, global, "actions", ".disabled.star", "x = 1")
			st.put(t, global, "actions", "calc.risor", "1")
			st.put(t, global, "actions", "notes.txt", "nope")
			st.put(t, global, "actions", "node_modules/dep/index.star", "x = 1")
			st.put(t, scripts.Bot("bot1"), "actions", "local.star", "x = 1")

			names, err := st.store.List(t.Context(), global, "actions", scripts.ScriptPattern, scripts.DefaultExcludes)
			require.NoError(t, err)
			assert.Equal(t, []string{".disabled.star", "a.star", "b.star", "builtin/set.star", "calc.risor"}, names)

			names, err = st.store.List(t.Context(), scripts.Bot("bot1"), "actions", scripts.ScriptPattern, nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"local.star"}, names)

			names, err = st.store.List(t.Context(), scripts.Bot("missing"), "actions", scripts.ScriptPattern, nil)
			require.NoError(t, err)
			assert.Empty(t, names)
		})
	}
}

func TestStore_ReadAndRename(t *testing.T) {
	t.Parallel()

	for _, st := range newStores(t) {
		t.Run(st.name, func(t *testing.T) {
			ctx := t.Context()
			global := scripts.Global()
			st.put(t, global, "hooks/after_bot_mount", "audit.star", "print('mounted')")

			src, err := st.store.Read(ctx, global, "hooks/after_bot_mount", "audit.star")
			require.NoError(t, err)
			assert.Equal(t, "print('mounted')", src)

			_, err = st.store.Read(ctx, global, "hooks/after_bot_mount", "missing.star")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, st.store.Rename(ctx, global, "hooks/after_bot_mount", "audit.star", ".audit.star"))
			_, err = st.store.Read(ctx, global, "hooks/after_bot_mount", "audit.star")
			require.ErrorIs(t, err, ErrNotFound)

			err = st.store.Rename(ctx, global, "hooks/after_bot_mount", "audit.star", ".audit.star")
			require.ErrorIs(t, err, ErrNotFound)

			st.put(t, global, "hooks/after_bot_mount", "audit.star", "again")
			err = st.store.Rename(ctx, global, "hooks/after_bot_mount", "audit.star", ".audit.star")
			require.ErrorIs(t, err, ErrExists)
		})
	}
}

func TestStore_BadGlob(t *testing.T) {
	t.Parallel()

	mem := NewMemoryStore()
	_, err := mem.List(t.Context(), scripts.Global(), "actions", "[", nil)
	require.ErrorIs(t, err, ErrBadGlob)
}

func TestDiskStore_Paths(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	disk, err := NewDiskStore(root)
	require.NoError(t, err)

	p := disk.Path(scripts.Bot("bot1"), "libraries", "util.star")
	assert.Equal(t, filepath.Join(root, "bots", "bot1", "libraries", "util.star"), p)
	assert.False(t, disk.Exists(p))

	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("x = 1"), 0o644))
	assert.True(t, disk.Exists(p))
	assert.False(t, disk.Exists(filepath.Dir(p)))

	src, err := disk.ReadPath(t.Context(), p)
	require.NoError(t, err)
	assert.Equal(t, "x = 1", src)
}

func TestMemoryStore_CountsReads(t *testing.T) {
	t.Parallel()

	mem := NewMemoryStore()
	mem.Put(scripts.Global(), "actions", "a.star", "x = 1")

	_, err := mem.Read(t.Context(), scripts.Global(), "actions", "a.star")
	require.NoError(t, err)
	_, err = mem.Read(t.Context(), scripts.Global(), "actions", "b.star")
	require.Error(t, err)

	assert.Equal(t, int64(2), mem.Reads())
	assert.Equal(t, "/memory/global/actions/a.star", mem.Path(scripts.Global(), "actions", "a.star"))
}
