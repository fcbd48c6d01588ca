package search

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/ervantix/semcode-mcp/internal/embed"
	"github.com/ervantix/semcode-mcp/pkg/types"
)

// Store is the subset of the Vector Store the orchestrator needs (§4.7).
type Store interface {
	IsEmpty(ctx context.Context) (bool, error)
	VectorSearch(ctx context.Context, query []float32, k int, filterPredicate string) ([]types.SearchResult, error)
}

// Keyword-boost weights, exact per §4.7 step 6.
const (
	boostContentHit   = 0.10
	boostNameHit      = 0.20
	boostSignatureHit = 0.15
	boostWholeTokenHit = 0.25
)

// Orchestrator implements the hybrid search algorithm of §4.7. It keeps
// gocontext-mcp's internal/searcher/searcher.go shape of holding the
// store/embedder/reranker as fields and dispatching a single query
// through them, but replaces its Reciprocal Rank Fusion combination with
// the precise additive keyword-boost formula §4.7 step 6 specifies.
type Orchestrator struct {
	store      Store
	embedder   embed.Embedder
	reranker   embed.Reranker
	langForExt func(ext string) string
	buildIndex func(ctx context.Context) error

	build buildCoordinator
}

// New creates an Orchestrator. buildIndex is invoked at most once
// concurrently (§5's lazy single-flight index build) whenever a search
// arrives and the store is empty.
func New(store Store, embedder embed.Embedder, reranker embed.Reranker, langForExt func(ext string) string, buildIndex func(ctx context.Context) error) *Orchestrator {
	return &Orchestrator{
		store:      store,
		embedder:   embedder,
		reranker:   reranker,
		langForExt: langForExt,
		buildIndex: buildIndex,
	}
}

// SetLogger attaches a logger the build coordinator uses to report
// lazy-build start/completion/await events; nil discards them.
func (o *Orchestrator) SetLogger(logger *log.Logger) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	o.build.logger = logger
}

// Search implements §4.7 steps 1-8.
func (o *Orchestrator) Search(ctx context.Context, req types.SearchRequest) (types.SearchResponse, error) {
	req = withRequestDefaults(req)
	if strings.TrimSpace(req.Query) == "" {
		return types.SearchResponse{}, types.NewCodeError(types.KindInvalidFilter, "query cannot be empty", types.ErrEmptyQuery)
	}

	// Step 1: lazy single-flight index build on an empty store.
	empty, err := o.store.IsEmpty(ctx)
	if err != nil {
		return types.SearchResponse{}, types.NewCodeError(types.KindIoFailure, "check store emptiness", err)
	}
	if empty {
		if o.buildIndex == nil {
			return types.SearchResponse{Query: req.Query}, nil
		}
		if err := o.build.ensure(ctx, o.buildIndex); err != nil {
			return types.SearchResponse{}, types.NewCodeError(types.KindIoFailure, "build index", err)
		}
		empty, err = o.store.IsEmpty(ctx)
		if err != nil {
			return types.SearchResponse{}, types.NewCodeError(types.KindIoFailure, "check store emptiness", err)
		}
		if empty {
			return types.SearchResponse{Query: req.Query}, nil
		}
	}

	// Step 2: embed the query.
	qResult, err := o.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return types.SearchResponse{}, types.NewCodeError(types.KindEmbeddingGeneration, "embed query", err)
	}

	// Step 3: candidate pool size.
	k := req.Limit
	if req.UseReranking {
		k = req.Limit * req.CandidateMultiplier
	}

	// Step 4: filter.
	filter, err := BuildFilter(req.Path, req.FilePattern, o.langForExt)
	if err != nil {
		return types.SearchResponse{}, err
	}

	// Step 5: vector search.
	candidates, err := o.store.VectorSearch(ctx, qResult.Vector, k, filter.Predicate)
	if err != nil {
		return types.SearchResponse{}, types.NewCodeError(types.KindIoFailure, "vector search", err)
	}

	// Step 6: keyword boost.
	keywords := tokenizeQuery(req.Query)
	for i := range candidates {
		applyKeywordBoost(&candidates[i], keywords)
	}

	// Step 7: reranking, only when shortlisting actually narrows the pool.
	if req.UseReranking && len(candidates) > req.Limit && o.reranker != nil {
		if err := o.rerank(ctx, req.Query, candidates); err != nil {
			// Fall back to the boosted scores (§4.7 step 7).
			_ = err
		}
	}

	// Step 8: sort and truncate.
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].CombinedScore > candidates[j].CombinedScore })
	if len(candidates) > req.Limit {
		candidates = candidates[:req.Limit]
	}

	return types.SearchResponse{
		Results:      candidates,
		TotalResults: len(candidates),
		Query:        req.Query,
	}, nil
}

func withRequestDefaults(req types.SearchRequest) types.SearchRequest {
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if req.Limit > 50 {
		req.Limit = 50
	}
	if req.CandidateMultiplier <= 0 {
		req.CandidateMultiplier = 5
	}
	if req.CandidateMultiplier > 20 {
		req.CandidateMultiplier = 20
	}
	return req
}

// rerank invokes Reranker.score for every candidate concurrently and
// replaces CombinedScore with the returned relevance probability; any
// single failure leaves that candidate's boosted score untouched, and a
// wholesale failure (e.g. the reranker is unreachable) is reported to the
// caller so Search can fall back per §4.7 step 7.
func (o *Orchestrator) rerank(ctx context.Context, query string, candidates []types.SearchResult) error {
	var wg sync.WaitGroup
	var failures int32Counter

	for i := range candidates {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			passage := candidates[idx].Content
			if len(passage) > embed.MaxPassageChars {
				passage = passage[:embed.MaxPassageChars]
			}
			score, err := o.reranker.Score(ctx, query, passage)
			if err != nil {
				failures.inc()
				return
			}
			candidates[idx].CombinedScore = score
		}(i)
	}
	wg.Wait()

	if failures.load() == len(candidates) {
		return fmt.Errorf("reranker failed for all %d candidates", len(candidates))
	}
	return nil
}

// int32Counter is a minimal atomic counter local to the rerank fan-out.
type int32Counter struct {
	mu sync.Mutex
	n  int
}

func (c *int32Counter) inc()     { c.mu.Lock(); c.n++; c.mu.Unlock() }
func (c *int32Counter) load() int { c.mu.Lock(); defer c.mu.Unlock(); return c.n }

// tokenizeQuery lowercases and splits the query into keyword tokens.
func tokenizeQuery(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	})
	var out []string
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// tokenizeIdentifier splits name into its constituent words (snake_case
// and camelCase boundaries), lowercased, for the "whole token" boost test.
func tokenizeIdentifier(name string) []string {
	var words []string
	var cur strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isAlnum {
			if cur.Len() > 0 {
				words = append(words, strings.ToLower(cur.String()))
				cur.Reset()
			}
			continue
		}
		if i > 0 && cur.Len() > 0 {
			prev := runes[i-1]
			prevLower := prev >= 'a' && prev <= 'z'
			curUpper := r >= 'A' && r <= 'Z'
			if prevLower && curUpper {
				words = append(words, strings.ToLower(cur.String()))
				cur.Reset()
			}
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		words = append(words, strings.ToLower(cur.String()))
	}
	return words
}

// applyKeywordBoost implements §4.7 step 6's additive formula in place.
func applyKeywordBoost(result *types.SearchResult, keywords []string) {
	if len(keywords) == 0 {
		result.CombinedScore = result.VectorScore
		return
	}

	content := strings.ToLower(result.Content)
	name := strings.ToLower(result.Name)
	signature := strings.ToLower(result.Signature)
	nameWords := tokenizeIdentifier(result.Name)

	var boost float64
	for _, kw := range keywords {
		if strings.Contains(content, kw) {
			boost += boostContentHit
		}
		if strings.Contains(name, kw) {
			boost += boostNameHit
		}
		if strings.Contains(signature, kw) {
			boost += boostSignatureHit
		}
		if containsWord(nameWords, kw) {
			boost += boostWholeTokenHit
		}
	}

	result.CombinedScore = math.Min(result.VectorScore+boost, 1.0)
	result.KeywordScore = result.CombinedScore - result.VectorScore
}

func containsWord(words []string, target string) bool {
	for _, w := range words {
		if w == target {
			return true
		}
	}
	return false
}
