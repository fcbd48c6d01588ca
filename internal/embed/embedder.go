// Package embed provides the Embedder and Reranker capabilities the core
// requires from external collaborators (§6): dense-vector generation for
// documents and queries, batched embedding with per-item failure isolation,
// and cross-encoder relevance scoring. Model acquisition and inference
// themselves are out of scope (§1) — providers here call a remote API or,
// for offline/test use, synthesize a deterministic vector.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ervantix/semcode-mcp/pkg/types"
)

// Instruction prefixes prepended before embedding, per §6.
const (
	DocumentPrefix = "search_document: "
	QueryPrefix    = "search_query: "

	// MaxInputChars bounds prefixed input length (≈4 * 8192 chars, §6).
	MaxInputChars = 4 * 8192

	// MaxPassageChars is the truncation length for reranker passages (§6).
	MaxPassageChars = 512

	// DefaultEmbedBatchSize is embed_batch's default concurrent batch size (§6, §5).
	DefaultEmbedBatchSize = 32
)

var (
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
	ErrProviderFailed    = errors.New("embedding provider failed")
)

// EmbedResult is the outcome of embedding a single document or query (§6).
type EmbedResult struct {
	Vector     []float32
	TokenCount int
}

// BatchItem pairs a batch input's index with its outcome, so a caller can
// tell which inputs degraded to a zero-vector placeholder (§4.5's failure
// semantics: "Embedding failures for individual items inside a batch...
// result in that chunk being recorded with a zero vector").
type BatchItem struct {
	Index  int
	Result EmbedResult
	Err    error
}

// Embedder is the capability the core requires for turning text into
// 768-dimensional vectors (§6). A single instance is constructed once at
// Server startup and injected into every collaborator that needs it; the
// interface itself stays a plain collaborator with no shared global state.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) (EmbedResult, error)
	EmbedQuery(ctx context.Context, text string) (EmbedResult, error)
	EmbedBatch(ctx context.Context, texts []string, batchSize int) ([]BatchItem, error)
	Close() error
}

// Reranker is the cross-encoder capability of §6: joint (query, passage)
// relevance scoring, more precise than bi-encoder vector similarity alone
// but too expensive to run over every candidate.
type Reranker interface {
	Score(ctx context.Context, query, passage string) (float64, error)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func clampToVectorDim(v []float32) []float32 {
	out := make([]float32, types.VectorDim)
	n := len(v)
	if n > types.VectorDim {
		n = types.VectorDim
	}
	copy(out, v[:n])
	return out
}

// Cache provides in-memory LRU caching of embeddings by content hash, so
// repeated chunk content (common across near-duplicate files) does not
// re-hit the provider.
type Cache struct {
	cache *lru.Cache[string, EmbedResult]
}

// NewCache creates a new embedding cache with LRU eviction.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	c, err := lru.New[string, EmbedResult](maxLen)
	if err != nil {
		c, _ = lru.New[string, EmbedResult](10000)
	}
	return &Cache{cache: c}
}

// Get retrieves a deep copy of a cached result.
func (c *Cache) Get(hash string) (EmbedResult, bool) {
	res, ok := c.cache.Get(hash)
	if !ok {
		return EmbedResult{}, false
	}
	vectorCopy := make([]float32, len(res.Vector))
	copy(vectorCopy, res.Vector)
	return EmbedResult{Vector: vectorCopy, TokenCount: res.TokenCount}, true
}

// Set stores a result in cache with automatic LRU eviction.
func (c *Cache) Set(hash string, res EmbedResult) {
	c.cache.Add(hash, res)
}

// Size returns the current cache size.
func (c *Cache) Size() int { return c.cache.Len() }

// ComputeHash computes a SHA-256 content-addressed cache key.
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func estimateTokens(s string) int {
	// Heuristic consistent with the rest of the codebase: ~4 chars/token.
	n := len(s) / 4
	if n == 0 && len(s) > 0 {
		n = 1
	}
	return n
}

func validateText(text string) error {
	if text == "" {
		return ErrEmptyText
	}
	return nil
}

func wrapProviderErr(name string, err error) error {
	return fmt.Errorf("%w (%s): %v", ErrProviderFailed, name, err)
}
