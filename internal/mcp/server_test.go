package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ervantix/semcode-mcp/internal/embed"
	"github.com/ervantix/semcode-mcp/pkg/types"
)

func writeFixture(root, relPath, content string) error {
	full := filepath.Join(root, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, []byte(content), 0o644)
}

func searchRequestFor(query string) types.SearchRequest {
	return types.SearchRequest{Query: query, Limit: 10}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, writeFixture(root, "main.go", "package main\n\nfunc Hello() string {\n\treturn \"hi\"\n}\n"))

	emb, err := embed.NewLocalProvider(nil)
	require.NoError(t, err)

	srv, err := NewServer(Config{
		Root:      root,
		IndexPath: filepath.Join(t.TempDir(), "index.db"),
		Watch:     false,
		Embedder:  emb,
		Reranker:  embed.NewLocalReranker(),
	})
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewServerRejectsRelativeRoot(t *testing.T) {
	_, err := NewServer(Config{Root: "relative/path", IndexPath: filepath.Join(t.TempDir(), "index.db")})
	assert.ErrorIs(t, err, ErrPathNotAbsolute)
}

func TestNewServerRegistersSemanticSearchTool(t *testing.T) {
	srv := newTestServer(t)
	assert.NotNil(t, srv.orch)
	assert.NotNil(t, srv.indexer)
	assert.NotNil(t, srv.store)
}

func TestSemanticSearchTriggersLazyIndexBuild(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	empty, err := srv.store.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	resp, err := srv.orch.Search(ctx, searchRequestFor("Hello"))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Results)

	empty, err = srv.store.IsEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)
}
