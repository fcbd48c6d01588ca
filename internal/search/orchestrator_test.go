package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ervantix/semcode-mcp/internal/chunker"
	"github.com/ervantix/semcode-mcp/internal/embed"
	"github.com/ervantix/semcode-mcp/internal/store"
	"github.com/ervantix/semcode-mcp/pkg/types"
)

type fakeReranker struct {
	fail  bool
	score float64
}

func (r *fakeReranker) Score(_ context.Context, _ string, _ string) (float64, error) {
	if r.fail {
		return 0, errors.New("reranker unavailable")
	}
	return r.score, nil
}

func newOrchestratorStore(t *testing.T) (*store.Store, embed.Embedder) {
	t.Helper()
	s, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	emb, err := embed.NewLocalProvider(nil)
	require.NoError(t, err)
	return s, emb
}

func seedWithVector(t *testing.T, s *store.Store, id, name, content string, vec []float32) {
	t.Helper()
	require.NoError(t, s.Upsert(context.Background(), []types.VectorRecord{{
		Chunk: types.Chunk{
			ID:        id,
			FilePath:  id + ".go",
			Content:   content,
			StartLine: 1,
			EndLine:   3,
			Name:      name,
			NodeType:  "function_declaration",
			Signature: "func " + name + "()",
			Language:  "go",
		},
		Vector:      vec,
		ContentHash: "hash-" + id,
		IndexedAt:   time.Now(),
	}}))
}

func TestSearchEmptyStoreTriggersLazyBuild(t *testing.T) {
	s, emb := newOrchestratorStore(t)
	ctx := context.Background()

	qVec, err := emb.EmbedQuery(ctx, "needle")
	require.NoError(t, err)

	var buildCalls int32
	buildIndex := func(ctx context.Context) error {
		atomic.AddInt32(&buildCalls, 1)
		seedWithVector(t, s, "a", "FindNeedle", "func FindNeedle() {}", qVec.Vector)
		return nil
	}

	o := New(s, emb, nil, chunker.LanguageForExtension, buildIndex)
	resp, err := o.Search(ctx, types.SearchRequest{Query: "needle", UseReranking: false})
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&buildCalls))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "FindNeedle", resp.Results[0].Name)
}

func TestSearchConcurrentEmptyStoreSingleBuild(t *testing.T) {
	s, emb := newOrchestratorStore(t)
	ctx := context.Background()

	qVec, err := emb.EmbedQuery(ctx, "needle")
	require.NoError(t, err)

	var buildCalls int32
	buildIndex := func(ctx context.Context) error {
		atomic.AddInt32(&buildCalls, 1)
		time.Sleep(150 * time.Millisecond)
		seedWithVector(t, s, "a", "FindNeedle", "func FindNeedle() {}", qVec.Vector)
		return nil
	}

	o := New(s, emb, nil, chunker.LanguageForExtension, buildIndex)

	var wg sync.WaitGroup
	results := make([]types.SearchResponse, 5)
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = o.Search(ctx, types.SearchRequest{Query: "needle", UseReranking: false})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&buildCalls))
	for i := range results {
		require.NoError(t, errs[i])
		require.Len(t, results[i].Results, 1)
	}
}

func TestSearchKeywordBoostPrefersNameMatch(t *testing.T) {
	s, emb := newOrchestratorStore(t)
	ctx := context.Background()

	// Independent document embeddings give each candidate a low, roughly
	// equal baseline VectorScore against the query, so the difference in
	// final ranking isolates the keyword-boost contribution.
	aVec, err := emb.EmbedDocument(ctx, "func ParseConfig() { return nil }")
	require.NoError(t, err)
	bVec, err := emb.EmbedDocument(ctx, "func Helper() { return nil }")
	require.NoError(t, err)

	seedWithVector(t, s, "a", "ParseConfig", "func ParseConfig() { return nil }", aVec.Vector)
	seedWithVector(t, s, "b", "Helper", "func Helper() { return nil }", bVec.Vector)

	o := New(s, emb, nil, chunker.LanguageForExtension, nil)
	resp, err := o.Search(ctx, types.SearchRequest{Query: "parseconfig", Limit: 10, UseReranking: false})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "ParseConfig", resp.Results[0].Name)
	assert.Greater(t, resp.Results[0].CombinedScore, resp.Results[1].CombinedScore)
}

// TestApplyKeywordBoostCapsKeywordScoreWithCombinedScore covers §4.7 step
// 8's keyword_score definition: when VectorScore is already high enough
// that the raw boost would push CombinedScore past 1.0, KeywordScore must
// reflect the capped delta actually applied, not the uncapped boost sum.
func TestApplyKeywordBoostCapsKeywordScoreWithCombinedScore(t *testing.T) {
	result := types.SearchResult{
		VectorScore: 0.9,
		Chunk: types.Chunk{
			Content:   "func ParseConfig() { return nil }",
			Name:      "ParseConfig",
			Signature: "func parseconfig()",
		},
	}
	applyKeywordBoost(&result, []string{"parseconfig"})

	rawBoost := boostContentHit + boostNameHit + boostSignatureHit
	require.Equal(t, 1.0, result.CombinedScore)
	assert.Less(t, result.KeywordScore, rawBoost)
	assert.InDelta(t, result.CombinedScore-result.VectorScore, result.KeywordScore, 1e-9)
}

func TestSearchRerankFallsBackOnFailure(t *testing.T) {
	s, emb := newOrchestratorStore(t)
	ctx := context.Background()

	aVec, err := emb.EmbedDocument(ctx, "func ParseConfig() { return nil }")
	require.NoError(t, err)
	bVec, err := emb.EmbedDocument(ctx, "func Helper() { return nil }")
	require.NoError(t, err)
	cVec, err := emb.EmbedDocument(ctx, "func Other() { return nil }")
	require.NoError(t, err)

	seedWithVector(t, s, "a", "ParseConfig", "func ParseConfig() { return nil }", aVec.Vector)
	seedWithVector(t, s, "b", "Helper", "func Helper() { return nil }", bVec.Vector)
	seedWithVector(t, s, "c", "Other", "func Other() { return nil }", cVec.Vector)

	o := New(s, emb, &fakeReranker{fail: true}, chunker.LanguageForExtension, nil)
	resp, err := o.Search(ctx, types.SearchRequest{
		Query: "parseconfig", Limit: 1, UseReranking: true, CandidateMultiplier: 3,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "ParseConfig", resp.Results[0].Name)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	s, emb := newOrchestratorStore(t)
	o := New(s, emb, nil, chunker.LanguageForExtension, nil)
	_, err := o.Search(context.Background(), types.SearchRequest{Query: "   "})
	assert.Error(t, err)
}

func TestSearchOnEmptyStoreWithNoBuilderReturnsEmpty(t *testing.T) {
	s, emb := newOrchestratorStore(t)
	o := New(s, emb, nil, chunker.LanguageForExtension, nil)
	resp, err := o.Search(context.Background(), types.SearchRequest{Query: "anything"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}
