// Package mcp exposes the single semantic_search tool over the Model
// Context Protocol (§6), and wires internal/indexer, internal/watch, and
// internal/search.Orchestrator behind it. Grounded on gocontext-mcp's
// internal/mcp/server.go, which wraps the same kind of storage/indexer/
// searcher trio behind a server.MCPServer; its three-tool surface
// (index_codebase, search_code, get_status) is consolidated down to one
// tool here since semantic_search triggers its own lazy index build (§5)
// and get_status/index_codebase survive only as CLI-only operational
// helpers (cmd/semcode).
package mcp

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ervantix/semcode-mcp/internal/chunker"
	"github.com/ervantix/semcode-mcp/internal/embed"
	"github.com/ervantix/semcode-mcp/internal/indexer"
	"github.com/ervantix/semcode-mcp/internal/search"
	"github.com/ervantix/semcode-mcp/internal/store"
	"github.com/ervantix/semcode-mcp/internal/watch"
)

const (
	// ServerName is the MCP server name advertised during initialize.
	ServerName = "semcode-mcp"
	// ServerVersion is the current server version.
	ServerVersion = "1.0.0"
	// DefaultIndexPath is the SQLite database location, relative to the
	// codebase root, used when no index path is configured. It lies under
	// the .semantic-code directory that the default ignore patterns skip.
	DefaultIndexPath = ".semantic-code/index/index.db"
)

// Server wraps the MCP transport with the application's collaborators.
type Server struct {
	mcp      *server.MCPServer
	store    *store.Store
	indexer  *indexer.Indexer
	watcher  *watch.Watcher
	orch     *search.Orchestrator
	embedder embed.Embedder
	logger   *log.Logger

	root string
}

// Config configures one Server instance.
type Config struct {
	// Root is the absolute path to the codebase to index and search
	// (SEMANTIC_CODE_ROOT). Required.
	Root string
	// IndexPath is the SQLite database path (SEMANTIC_CODE_INDEX).
	// Defaults to DefaultIndexPath under Root. A leading "~/" is expanded
	// to the user's home directory.
	IndexPath string
	// Logger receives operational log lines; nil discards them.
	Logger *log.Logger
	// Watch starts a filesystem watcher that keeps the index current
	// between explicit reindex calls, per §4.6.
	Watch bool
	// Embedder generates chunk/query vectors. Required; constructed and
	// owned by the caller (cmd/semcode) rather than reached into from a
	// shared global, per §9's Design Notes resolution.
	Embedder embed.Embedder
	// Reranker scores (query, passage) pairs for the rerank stage of
	// hybrid search (§4.7). Required.
	Reranker embed.Reranker
}

// NewServer validates cfg.Root, opens the Vector Store at cfg.IndexPath,
// and wires the Indexer, optional Watcher, and hybrid search Orchestrator
// behind a fresh MCP server advertising ServerName/ServerVersion.
func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	if err := validatePath(cfg.Root); err != nil {
		return nil, err
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Reranker == nil {
		return nil, fmt.Errorf("reranker is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	indexPath := cfg.IndexPath
	if indexPath == "" {
		indexPath = filepath.Join(root, DefaultIndexPath)
	}
	indexPath, err = expandIndexPath(indexPath)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(indexPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
	}

	st, err := store.Open(indexPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	emb := cfg.Embedder

	idx := indexer.New(chunker.New(logger), emb, st, logger)

	orch := search.New(st, emb, cfg.Reranker, chunker.LanguageForExtension,
		func(ctx context.Context) error {
			_, buildErr := idx.IndexRoot(ctx, root, indexer.Config{
				IgnorePatterns: indexer.DefaultIgnorePatterns,
			})
			return buildErr
		})
	orch.SetLogger(logger)

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		store:    st,
		indexer:  idx,
		orch:     orch,
		embedder: emb,
		logger:   logger,
		root:     root,
	}

	if cfg.Watch {
		w, err := watch.New(root, indexer.DefaultIgnorePatterns, indexer.IsSupportedPath, watch.Handler{
			Reindex: func(ctx context.Context, relPath string) error {
				return idx.ReindexFile(ctx, root, relPath)
			},
			Remove: func(ctx context.Context, relPath string) error {
				return idx.RemoveFile(ctx, root, relPath)
			},
		}, logger)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("create watcher: %w", err)
		}
		if err := w.Start(); err != nil {
			st.Close()
			return nil, fmt.Errorf("start watcher: %w", err)
		}
		s.watcher = w
	}

	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until the transport
// returns. ctx is not passed to the transport: canceling it does not make
// Serve return.
func (s *Server) Serve(ctx context.Context) error {
	defer s.Close()
	return server.ServeStdio(s.mcp)
}

// Close releases the watcher and store. Safe to call more than once.
func (s *Server) Close() {
	if s.watcher != nil {
		_ = s.watcher.Stop()
	}
	_ = s.store.Close()
	_ = s.embedder.Close()
}

// Store exposes the underlying Vector Store for CLI-only operational
// helpers (-status, -reindex) that are not part of the MCP tool surface.
func (s *Server) Store() *store.Store { return s.store }

// Indexer exposes the Indexer for the CLI's -reindex flag.
func (s *Server) Indexer() *indexer.Indexer { return s.indexer }

// Root returns the resolved, absolute codebase root.
func (s *Server) Root() string { return s.root }

func (s *Server) registerTools() {
	s.mcp.AddTool(semanticSearchTool(), s.handleSemanticSearch)
}

func expandIndexPath(path string) (string, error) {
	if path == "~" || len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
