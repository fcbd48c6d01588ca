// Package indexer implements the Indexer component (§4.5): walk a root
// directory, detect changed files by content hash, chunk and embed their
// contents, and flush the result to the Vector Store. Grounded on
// gocontext-mcp's internal/indexer/indexer.go, which drives the same
// errgroup+semaphore batch-worker shape over a normalized multi-table
// schema; this version targets a flat VectorRecord store and switches the
// change-detection hash from SHA-256 to MD5 per the glossary ("Content
// hash — MD5 of file bytes").
package indexer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ervantix/semcode-mcp/internal/chunker"
	"github.com/ervantix/semcode-mcp/internal/embed"
	"github.com/ervantix/semcode-mcp/pkg/types"
)

// maxConcurrentEmbeds bounds the worker pool chunkAndEmbedBatch fans a
// batch's files out across, grounded on gocontext-mcp's errgroup+
// semaphore indexer worker pool shape.
const maxConcurrentEmbeds = 8

// Defaults per §4.5's Inputs.
const (
	DefaultMaxFileSize       = 1 << 20 // 1 MiB
	DefaultBatchSize         = 10
	DefaultMaxChunksInMemory = 500
)

// Store is the subset of the Vector Store the indexer needs.
type Store interface {
	Upsert(ctx context.Context, records []types.VectorRecord) error
	DeleteByFilePath(ctx context.Context, filePath string) error
	GetIndexedFiles(ctx context.Context) (map[string]string, error)
}

// Config configures one indexing pass; zero values take the §4.5 defaults.
type Config struct {
	IgnorePatterns    []string
	MaxFileSize       int64
	BatchSize         int
	MaxChunksInMemory int
	OnProgress        func(types.IndexStats)
}

func (c Config) withDefaults() Config {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxChunksInMemory <= 0 {
		c.MaxChunksInMemory = DefaultMaxChunksInMemory
	}
	return c
}

// Indexer coordinates the scan -> chunk -> embed -> store pipeline.
type Indexer struct {
	chunker  *chunker.Chunker
	embedder embed.Embedder
	store    Store
	logger   *log.Logger
}

// New creates an Indexer. logger may be nil.
func New(c *chunker.Chunker, e embed.Embedder, s Store, logger *log.Logger) *Indexer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Indexer{chunker: c, embedder: e, store: s, logger: logger}
}

// IndexRoot runs one full §4.5 indexing pass over root.
func (idx *Indexer) IndexRoot(ctx context.Context, root string, cfg Config) (types.IndexStats, error) {
	cfg = cfg.withDefaults()
	start := time.Now()
	stats := types.IndexStats{}

	files, err := idx.discoverFiles(root, cfg.IgnorePatterns)
	if err != nil {
		return stats, fmt.Errorf("discover files: %w", err)
	}
	stats.FilesTotal = len(files)

	snapshot, err := idx.store.GetIndexedFiles(ctx)
	if err != nil {
		return stats, fmt.Errorf("snapshot indexed files: %w", err)
	}

	var pending []types.VectorRecord
	var staleDeletions []string

	// flush first deletes the old records of every changed file queued so
	// far, then upserts the pending buffer, so a changed file's old records
	// are gone before its new ones are written and no later flush deletes
	// records an earlier flush wrote.
	flush := func() error {
		for _, path := range staleDeletions {
			if err := idx.store.DeleteByFilePath(ctx, path); err != nil {
				return fmt.Errorf("delete stale records for %s: %w", path, err)
			}
		}
		staleDeletions = staleDeletions[:0]
		if len(pending) == 0 {
			return nil
		}
		if err := idx.store.Upsert(ctx, pending); err != nil {
			return fmt.Errorf("flush %d chunks: %w", len(pending), err)
		}
		stats.ChunksCreated += len(pending)
		pending = pending[:0]
		return nil
	}

	for i := 0; i < len(files); i += cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		end := i + cfg.BatchSize
		if end > len(files) {
			end = len(files)
		}

		// Stat+read+hash is cheap and stays serial; it also decides which
		// files in the batch actually need the expensive chunk+embed step.
		var toProcess []fileCandidate
		for _, relPath := range files[i:end] {
			absPath := filepath.Join(root, relPath)

			info, statErr := os.Stat(absPath)
			if statErr != nil {
				stats.FilesSkipped++
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", relPath, statErr))
				continue
			}
			if info.Size() == 0 || info.Size() > cfg.MaxFileSize {
				stats.FilesSkipped++
				continue
			}

			content, readErr := os.ReadFile(absPath)
			if readErr != nil {
				stats.FilesSkipped++
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", relPath, readErr))
				continue
			}
			hash := contentHashMD5(content)

			// Chunk.FilePath (and the chunk ids derived from it) must carry
			// the absolute path per §3 ("file_path — absolute path to
			// source file"), so change-detection keys off absPath too,
			// matching what GetIndexedFiles/DeleteByFilePath store.
			if prevHash, ok := snapshot[absPath]; ok {
				if prevHash == hash {
					stats.FilesIndexed++
					continue
				}
				staleDeletions = append(staleDeletions, absPath)
			}

			toProcess = append(toProcess, fileCandidate{relPath: relPath, absPath: absPath, content: content, hash: hash})
		}

		// Chunk+embed is CPU/IO-bound per file; a worker pool keyed off
		// errgroup lets the batch's files embed concurrently instead of
		// one at a time.
		batchRecords, batchErrs := idx.chunkAndEmbedBatch(ctx, toProcess)
		for _, fe := range batchErrs {
			stats.FilesFailed++
			stats.ErrorMessages = append(stats.ErrorMessages, fe.Error())
		}
		stats.FilesIndexed += len(toProcess) - len(batchErrs)
		pending = append(pending, batchRecords...)

		if len(pending) >= cfg.MaxChunksInMemory {
			if err := flush(); err != nil {
				return stats, err
			}
		}

		if cfg.OnProgress != nil {
			cfg.OnProgress(stats)
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}

	stats.Duration = float64(time.Since(start).Milliseconds())
	return stats, nil
}

// fileCandidate is one file that has passed the stat/read/hash-compare
// gate and needs chunking and embedding. relPath is kept only for
// human-readable error messages; absPath is what flows into the chunker
// and the store.
type fileCandidate struct {
	relPath string
	absPath string
	content []byte
	hash    string
}

// fileError pairs a candidate's path with the error chunkAndEmbed raised
// for it, so a batch failure can be reported without aborting its siblings.
type fileError struct {
	relPath string
	err     error
}

func (e fileError) Error() string { return fmt.Sprintf("%s: %v", e.relPath, e.err) }

// chunkAndEmbedBatch runs chunkAndEmbed concurrently across candidates,
// bounded by maxConcurrentEmbeds, and isolates per-file failures from one
// another: one file's chunk/embed error does not cancel its siblings'
// in-flight work, matching §4.5's per-file failure isolation.
func (idx *Indexer) chunkAndEmbedBatch(ctx context.Context, candidates []fileCandidate) ([]types.VectorRecord, []fileError) {
	if len(candidates) == 0 {
		return nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentEmbeds)

	var mu sync.Mutex
	var records []types.VectorRecord
	var errs []fileError

	for _, c := range candidates {
		c := c
		g.Go(func() error {
			recs, err := idx.chunkAndEmbed(gctx, c.absPath, c.content, c.hash)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fileError{relPath: c.relPath, err: err})
				return nil
			}
			records = append(records, recs...)
			return nil
		})
	}
	_ = g.Wait() // worker funcs never return a non-nil error; failures are collected above

	return records, errs
}

// chunkAndEmbed chunks one file's content and embeds every resulting
// chunk, constructing the VectorRecords to append to the pending buffer.
// absPath becomes every resulting Chunk.FilePath (and feeds chunk id
// derivation), per §3's "file_path — absolute path to source file".
// Per-item embedding failures (§4.5 Failures) yield a zero vector rather
// than aborting the file.
func (idx *Indexer) chunkAndEmbed(ctx context.Context, absPath string, content []byte, hash string) ([]types.VectorRecord, error) {
	chunks, err := idx.chunker.Chunk(absPath, content)
	if err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	items, err := idx.embedder.EmbedBatch(ctx, texts, embed.DefaultEmbedBatchSize)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}

	now := time.Now()
	records := make([]types.VectorRecord, len(chunks))
	for _, item := range items {
		c := chunks[item.Index]
		vec := item.Result.Vector
		if len(vec) != types.VectorDim {
			vec = make([]float32, types.VectorDim)
		}
		records[item.Index] = types.VectorRecord{
			Chunk:       c,
			Vector:      vec,
			ContentHash: hash,
			IndexedAt:   now,
		}
		if item.Err != nil {
			idx.logger.Printf("embed failed for %s (chunk %s): %v", absPath, c.ID, item.Err)
		}
	}
	return records, nil
}

// ReindexFile re-indexes a single file (§4.6's "Re-index of one file"):
// delete_by_file_path, then chunk, embed, and upsert — without the
// hash-equality shortcut, since the watcher only calls this when an event
// already implies the file changed.
func (idx *Indexer) ReindexFile(ctx context.Context, root, relPath string) error {
	absPath := filepath.Join(root, relPath)
	content, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", relPath, err)
	}
	hash := contentHashMD5(content)

	if err := idx.store.DeleteByFilePath(ctx, absPath); err != nil {
		return fmt.Errorf("delete stale records for %s: %w", relPath, err)
	}

	records, err := idx.chunkAndEmbed(ctx, absPath, content, hash)
	if err != nil {
		return fmt.Errorf("chunk/embed %s: %w", relPath, err)
	}
	if len(records) == 0 {
		return nil
	}
	return idx.store.Upsert(ctx, records)
}

// RemoveFile deletes every record for relPath, resolved against root to
// the same absolute path the records were stored under (§4.6's immediate
// delete on removal).
func (idx *Indexer) RemoveFile(ctx context.Context, root, relPath string) error {
	return idx.store.DeleteByFilePath(ctx, filepath.Join(root, relPath))
}

// IsSupportedPath reports whether path's extension is one the chunker
// recognizes, the same filter discoverFiles applies (§4.6 "for the
// supported extensions").
func IsSupportedPath(path string) bool {
	return chunker.IsSupportedExtension(strings.ToLower(filepath.Ext(path)))
}

// discoverFiles walks root for files with a chunker-supported extension,
// honoring ignore_patterns (§4.5 step 1), and returns paths relative to
// root, deduplicated by filepath.Walk's natural traversal order.
func (idx *Indexer) discoverFiles(root string, patterns []string) ([]string, error) {
	matcher := compileIgnore(patterns)
	supported := make(map[string]bool)
	for _, ext := range chunker.SupportedExtensions() {
		supported[ext] = true
	}

	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if matcher.MatchesPath(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if matcher.MatchesPath(rel) {
			return nil
		}
		if !supported[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	return files, err
}

func contentHashMD5(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}
