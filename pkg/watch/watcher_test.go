package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string, ignore ...string) <-chan []string {
	t.Helper()
	w, err := NewWatcher(root, 50*time.Millisecond, ignore...)
	require.NoError(t, err)

	changes := make(chan []string, 16)
	w.OnChange = func(_ context.Context, paths []string) error {
		changes <- paths
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return changes
}

func waitChange(t *testing.T, changes <-chan []string) []string {
	t.Helper()
	select {
	case paths := <-changes:
		return paths
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
		return nil
	}
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	root := t.TempDir()
	changes := startWatcher(t, root)

	a := filepath.Join(root, "a.csv")
	b := filepath.Join(root, "b.csv")
	require.NoError(t, os.WriteFile(a, []byte("id\n1\n"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("id\n2\n"), 0644))

	abs, err := filepath.Abs(root)
	require.NoError(t, err)
	paths := waitChange(t, changes)
	assert.Contains(t, paths, filepath.Join(abs, "a.csv"))
}

func TestWatcher_NewSubdirectories(t *testing.T) {
	root := t.TempDir()
	changes := startWatcher(t, root)

	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	waitChange(t, changes)

	// Give the loop a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "c.json"), []byte("[]"), 0644))

	abs, err := filepath.Abs(sub)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		select {
		case paths := <-changes:
			for _, p := range paths {
				if p == filepath.Join(abs, "c.json") {
					return true
				}
			}
		default:
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_IgnoresOutputDir(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "processed")
	require.NoError(t, os.Mkdir(out, 0755))
	changes := startWatcher(t, root, out)

	require.NoError(t, os.WriteFile(filepath.Join(out, "master_dataset.csv"), []byte("x\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".master.csv.tmp-123"), []byte("x\n"), 0644))

	select {
	case paths := <-changes:
		t.Fatalf("unexpected change: %v", paths)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_OutputDirIsRoot(t *testing.T) {
	root := t.TempDir()
	master := filepath.Join(root, "master_dataset.csv")
	changes := startWatcher(t, root, root, master)

	require.NoError(t, os.WriteFile(master, []byte("x\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.csv"), []byte("id\n1\n"), 0644))

	abs, err := filepath.Abs(root)
	require.NoError(t, err)
	paths := waitChange(t, changes)
	assert.Contains(t, paths, filepath.Join(abs, "a.csv"))
	assert.NotContains(t, paths, filepath.Join(abs, "master_dataset.csv"))
}

func TestNewWatcher_MissingRoot(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), time.Second)
	assert.Error(t, err)
}
