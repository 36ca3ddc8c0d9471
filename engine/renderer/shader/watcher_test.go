package shader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReportsShaderEdits(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "lib"), 0o755))

	w, err := NewWatcher(dir)
	require.NoError(t, err)
	defer w.Close()

	target := filepath.Join(dir, "lib", "pbr.wgsl")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(target, []byte("fn f() {}"), 0o644))

	select {
	case paths := <-w.Changes():
		assert.Contains(t, paths, target)
		assert.NotContains(t, paths, filepath.Join(dir, "notes.txt"))
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}
