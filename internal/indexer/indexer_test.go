package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ervantix/semcode-mcp/internal/chunker"
	"github.com/ervantix/semcode-mcp/internal/embed"
	"github.com/ervantix/semcode-mcp/internal/store"
)

func newTestIndexer(t *testing.T) (*Indexer, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	emb, err := embed.NewLocalProvider(nil)
	require.NoError(t, err)

	return New(chunker.New(nil), emb, s, nil), s
}

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestIndexRootIndexesNewFiles(t *testing.T) {
	idx, s := newTestIndexer(t)
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc Hello() string {\n\treturn \"hi\"\n}\n")

	stats, err := idx.IndexRoot(context.Background(), root, Config{})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesTotal)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 0, stats.FilesFailed)
	assert.Greater(t, stats.ChunksCreated, 0)

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stats.ChunksCreated, count)
}

func TestIndexRootSkipsUnchangedFiles(t *testing.T) {
	idx, _ := newTestIndexer(t)
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc Hello() string {\n\treturn \"hi\"\n}\n")

	ctx := context.Background()
	_, err := idx.IndexRoot(ctx, root, Config{})
	require.NoError(t, err)

	stats, err := idx.IndexRoot(ctx, root, Config{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 0, stats.FilesSkipped)
}

func TestIndexRootReplacesChangedFileRecords(t *testing.T) {
	idx, s := newTestIndexer(t)
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc Hello() string {\n\treturn \"hi\"\n}\n")

	ctx := context.Background()
	_, err := idx.IndexRoot(ctx, root, Config{})
	require.NoError(t, err)

	writeFile(t, root, "main.go", "package main\n\nfunc Hello() string {\n\treturn \"bye\"\n}\n\nfunc Extra() int {\n\treturn 1\n}\n")
	stats, err := idx.IndexRoot(ctx, root, Config{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)

	files, err := s.GetIndexedFiles(ctx)
	require.NoError(t, err)
	require.Contains(t, files, filepath.Join(root, "main.go"))
}

func TestIndexRootSkipsOversizedFiles(t *testing.T) {
	idx, _ := newTestIndexer(t)
	root := t.TempDir()
	writeFile(t, root, "big.go", "package main\n")

	stats, err := idx.IndexRoot(context.Background(), root, Config{MaxFileSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesSkipped)
	assert.Equal(t, 0, stats.FilesIndexed)
}

func TestIndexRootHonorsIgnorePatterns(t *testing.T) {
	idx, _ := newTestIndexer(t)
	root := t.TempDir()
	writeFile(t, root, "vendor/lib.go", "package vendor\n\nfunc V() {}\n")
	writeFile(t, root, "main.go", "package main\n\nfunc Hello() {}\n")

	stats, err := idx.IndexRoot(context.Background(), root, Config{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesTotal)
	assert.Equal(t, 1, stats.FilesIndexed)
}

// failOnEmbedder embeds everything via the real LocalProvider except it
// fails EmbedBatch whenever any text contains a marker substring, letting
// tests simulate one file's embedding failing without touching a real
// provider.
type failOnEmbedder struct {
	embed.Embedder
	failMarker string
}

func (f *failOnEmbedder) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([]embed.BatchItem, error) {
	for _, t := range texts {
		if strings.Contains(t, f.failMarker) {
			return nil, errors.New("simulated embedding failure")
		}
	}
	return f.Embedder.EmbedBatch(ctx, texts, batchSize)
}

// TestIndexRootIsolatesPerFileFailures covers §4.5's per-file failure
// isolation: one file's embedding failure is recorded in IndexStats
// without blocking its siblings in the same batch from being indexed.
func TestIndexRootIsolatesPerFileFailures(t *testing.T) {
	s, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	local, err := embed.NewLocalProvider(nil)
	require.NoError(t, err)
	faulty := &failOnEmbedder{Embedder: local, failMarker: "POISON"}

	idx := New(chunker.New(nil), faulty, s, nil)
	root := t.TempDir()
	writeFile(t, root, "good.go", "package t\n\nfunc Good() string {\n\treturn \"a perfectly fine function\"\n}\n")
	writeFile(t, root, "bad.go", "package t\n\nfunc Bad() string {\n\treturn \"POISON marker triggers a failure\"\n}\n")

	stats, err := idx.IndexRoot(context.Background(), root, Config{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesTotal)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesFailed)
	require.Len(t, stats.ErrorMessages, 1)

	files, err := s.GetIndexedFiles(context.Background())
	require.NoError(t, err)
	assert.Contains(t, files, filepath.Join(root, "good.go"))
	assert.NotContains(t, files, filepath.Join(root, "bad.go"))
}
