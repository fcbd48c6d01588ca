// Command semcode runs the semantic code search MCP server: a -version
// flag, stdio MCP server, graceful shutdown via signal.Notify + context
// cancellation, a positional root argument, -reindex (force a full
// rebuild bypassing the hash-equality shortcut), and -status (prints the
// Store's Health without starting the server).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ervantix/semcode-mcp/internal/embed"
	"github.com/ervantix/semcode-mcp/internal/indexer"
	"github.com/ervantix/semcode-mcp/internal/mcp"
	"github.com/ervantix/semcode-mcp/internal/store"
)

// defaultEmbedCacheSize bounds the in-memory LRU embedding cache (§5).
const defaultEmbedCacheSize = 10000

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	versionFlag := flag.Bool("version", false, "print version information and exit")
	reindex := flag.Bool("reindex", false, "force a full index rebuild, ignoring file-hash shortcuts, then exit")
	status := flag.Bool("status", false, "print index health and exit")
	watchFlag := flag.Bool("watch", true, "watch the codebase root for changes and reindex incrementally")
	indexPath := flag.String("index", os.Getenv("SEMANTIC_CODE_INDEX"), "path to the SQLite index database")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("semcode-mcp %s (built %s)\n", version, buildTime)
		fmt.Printf("Build Mode: %s\n", store.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", store.DriverName)
		os.Exit(0)
	}

	log.SetOutput(os.Stderr)

	root := os.Getenv("SEMANTIC_CODE_ROOT")
	if flag.NArg() > 0 {
		root = flag.Arg(0)
	}
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			log.Fatalf("resolve working directory: %v", err)
		}
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		log.Fatalf("resolve root %q: %v", root, err)
	}
	gitRoot, hasGit := findGitRoot(absRoot)

	log.Printf("semcode-mcp v%s starting (root=%s, build=%s/%s)", version, absRoot, store.BuildMode, store.DriverName)
	if hasGit {
		log.Printf("detected git root: %s", gitRoot)
	}

	emb, err := embed.New(embed.Config{
		Provider:  embed.DetectProvider(),
		CacheSize: defaultEmbedCacheSize,
	})
	if err != nil {
		log.Fatalf("initialize embedder: %v", err)
	}

	srv, err := mcp.NewServer(mcp.Config{
		Root:      absRoot,
		IndexPath: *indexPath,
		Logger:    log.Default(),
		Watch:     *watchFlag && !*status && !*reindex,
		Embedder:  emb,
		Reranker:  embed.NewLocalReranker(),
	})
	if err != nil {
		log.Fatalf("create server: %v", err)
	}
	defer srv.Close()

	if *status {
		printStatus(srv)
		return
	}

	if *reindex {
		runReindex(srv)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		log.Println("semcode-mcp ready, listening on stdio...")
		errChan <- srv.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	case err := <-errChan:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}

	log.Println("server stopped")
}

// runReindex implements -reindex: a full rebuild that bypasses the
// indexer's file-hash shortcut by clearing the store first, rather than
// relying on IndexRoot's incremental change detection (§4.5's
// "force_reindex" behavior, exposed as a real CLI flag since the MCP
// surface here is consolidated to semantic_search alone).
func runReindex(srv *mcp.Server) {
	ctx := context.Background()
	if err := srv.Store().Clear(ctx); err != nil {
		log.Fatalf("clear store: %v", err)
	}
	stats, err := srv.Indexer().IndexRoot(ctx, srv.Root(), indexer.Config{
		IgnorePatterns: indexer.DefaultIgnorePatterns,
	})
	if err != nil {
		log.Fatalf("reindex failed: %v", err)
	}
	log.Printf("reindex complete: %d files indexed, %d skipped, %d failed, %d chunks",
		stats.FilesIndexed, stats.FilesSkipped, stats.FilesFailed, stats.ChunksCreated)
}

func printStatus(srv *mcp.Server) {
	h := srv.Store().Health(context.Background())
	fmt.Printf("database accessible: %v\n", h.DatabaseAccessible)
	fmt.Printf("fts indexes built:   %v\n", h.FTSIndexesBuilt)
	fmt.Printf("schema version:      %s\n", h.SchemaVersion)
	fmt.Printf("files indexed:       %d\n", h.FilesIndexed)
	fmt.Printf("chunks stored:       %d\n", h.ChunkCount)
}

// findGitRoot walks upward from start looking for a .git directory,
// grounded on ChamsBouzaiene-dodo's internal/indexer/git.go. Used purely
// as informational status (SPEC_FULL.md's SUPPLEMENTED FEATURES), not to
// change chunking or search semantics.
func findGitRoot(start string) (string, bool) {
	dir := start
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
