// Package testutil holds helpers shared by tests that lay out user code on disk.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteScript writes source to the slash-separated path rel under root,
// creating parent directories, and returns the native path.
func WriteScript(t *testing.T, root, rel, source string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(source), 0o600))
	return p
}
