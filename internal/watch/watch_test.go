package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysSupported(string) bool { return true }

func TestWatcherCoalescesRapidWritesIntoOneReindex(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package a\n"), 0o644))

	var mu sync.Mutex
	var reindexCount int
	done := make(chan struct{}, 1)

	w, err := New(root, nil, alwaysSupported, Handler{
		Reindex: func(ctx context.Context, relPath string) error {
			mu.Lock()
			reindexCount++
			mu.Unlock()
			select {
			case done <- struct{}{}:
			default:
			}
			return nil
		},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("package a\n// v"), 0o644))
		time.Sleep(100 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reindex callback")
	}
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, reindexCount)
}

func TestWatcherCallsRemoveImmediatelyOnDeletion(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package a\n"), 0o644))

	removed := make(chan string, 1)
	w, err := New(root, nil, alwaysSupported, Handler{
		Remove: func(ctx context.Context, relPath string) error {
			removed <- relPath
			return nil
		},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.Remove(path))

	select {
	case rel := <-removed:
		assert.Equal(t, "a.go", rel)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for remove callback")
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, nil, alwaysSupported, Handler{}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
