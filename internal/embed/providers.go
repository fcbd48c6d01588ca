package embed

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/ervantix/semcode-mcp/pkg/types"
)

// Provider names and env vars.
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"

	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"

	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// httpProvider is the shared shape of the Jina and OpenAI HTTP-backed
// providers: call a remote embeddings endpoint, cache by content hash,
// retry with backoff, project the returned vector onto the fixed
// VectorDim and L2-normalize it.
type httpProvider struct {
	name       string
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
	cache      *Cache
}

func newHTTPProvider(name, apiKey, model, endpoint string, cache *Cache) *httpProvider {
	return &httpProvider{
		name:       name,
		apiKey:     apiKey,
		model:      model,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
	}
}

func (p *httpProvider) embedOne(ctx context.Context, prefixed string) (EmbedResult, error) {
	hash := ComputeHash(prefixed)
	if p.cache != nil {
		if res, ok := p.cache.Get(hash); ok {
			return res, nil
		}
	}

	config := DefaultRetryConfig()
	vec, err := retryWithBackoff(ctx, config, func() ([]float32, error) {
		return p.callAPI(ctx, prefixed)
	})
	if err != nil {
		return EmbedResult{}, wrapProviderErr(p.name, err)
	}

	vec = clampToVectorDim(vec)
	types.NormalizeL2(vec)
	res := EmbedResult{Vector: vec, TokenCount: estimateTokens(prefixed)}
	if p.cache != nil {
		p.cache.Set(hash, res)
	}
	return res, nil
}

func (p *httpProvider) callAPI(ctx context.Context, text string) ([]float32, error) {
	reqBody := map[string]interface{}{
		"input": []string{text},
		"model": p.model,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return apiResp.Data[0].Embedding, nil
}

// embedBatchConcurrent dispatches up to batchSize items of a batch
// concurrently and collects independently-settled results, matching §5's
// "individual failures do not cancel siblings".
func embedBatchConcurrent(ctx context.Context, texts []string, batchSize int, embedOne func(context.Context, string) (EmbedResult, error)) ([]BatchItem, error) {
	if batchSize <= 0 {
		batchSize = DefaultEmbedBatchSize
	}
	results := make([]BatchItem, len(texts))
	var wg sync.WaitGroup
	sem := make(chan struct{}, batchSize)

	for i, text := range texts {
		wg.Add(1)
		go func(idx int, t string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := embedOne(ctx, t)
			if err != nil {
				results[idx] = BatchItem{
					Index:  idx,
					Result: EmbedResult{Vector: make([]float32, types.VectorDim)},
					Err:    err,
				}
				return
			}
			results[idx] = BatchItem{Index: idx, Result: res}
		}(i, text)
	}
	wg.Wait()
	return results, nil
}

// JinaProvider implements Embedder using the Jina AI embeddings API.
type JinaProvider struct{ *httpProvider }

// NewJinaProvider creates a new Jina AI embedder.
func NewJinaProvider(apiKey string, cache *Cache) (*JinaProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvJinaAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}
	return &JinaProvider{newHTTPProvider(ProviderJina, apiKey, DefaultJinaModel, "https://api.jina.ai/v1/embeddings", cache)}, nil
}

func (j *JinaProvider) EmbedDocument(ctx context.Context, text string) (EmbedResult, error) {
	if err := validateText(text); err != nil {
		return EmbedResult{}, err
	}
	return j.embedOne(ctx, DocumentPrefix+truncate(text, MaxInputChars))
}

func (j *JinaProvider) EmbedQuery(ctx context.Context, text string) (EmbedResult, error) {
	if err := validateText(text); err != nil {
		return EmbedResult{}, err
	}
	return j.embedOne(ctx, QueryPrefix+truncate(text, MaxInputChars))
}

func (j *JinaProvider) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([]BatchItem, error) {
	return embedBatchConcurrent(ctx, texts, batchSize, func(c context.Context, t string) (EmbedResult, error) {
		return j.embedOne(c, DocumentPrefix+truncate(t, MaxInputChars))
	})
}

func (j *JinaProvider) Close() error {
	j.httpClient.CloseIdleConnections()
	return nil
}

// OpenAIProvider implements Embedder using the OpenAI embeddings API.
type OpenAIProvider struct{ *httpProvider }

// NewOpenAIProvider creates a new OpenAI embedder.
func NewOpenAIProvider(apiKey string, cache *Cache) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}
	return &OpenAIProvider{newHTTPProvider(ProviderOpenAI, apiKey, DefaultOpenAIModel, "https://api.openai.com/v1/embeddings", cache)}, nil
}

func (o *OpenAIProvider) EmbedDocument(ctx context.Context, text string) (EmbedResult, error) {
	if err := validateText(text); err != nil {
		return EmbedResult{}, err
	}
	return o.embedOne(ctx, DocumentPrefix+truncate(text, MaxInputChars))
}

func (o *OpenAIProvider) EmbedQuery(ctx context.Context, text string) (EmbedResult, error) {
	if err := validateText(text); err != nil {
		return EmbedResult{}, err
	}
	return o.embedOne(ctx, QueryPrefix+truncate(text, MaxInputChars))
}

func (o *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([]BatchItem, error) {
	return embedBatchConcurrent(ctx, texts, batchSize, func(c context.Context, t string) (EmbedResult, error) {
		return o.embedOne(c, DocumentPrefix+truncate(t, MaxInputChars))
	})
}

func (o *OpenAIProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider is a deterministic, offline embedder: it hashes the
// (prefixed) text into a unit vector. It requires no network access and
// is the default when no API key is configured, and the grounded choice
// for tests (see DESIGN.md).
type LocalProvider struct {
	cache *Cache
}

// NewLocalProvider creates a new local embedder.
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{cache: cache}, nil
}

func (l *LocalProvider) deterministicVector(prefixed string) []float32 {
	vec := make([]float32, types.VectorDim)
	block := []byte(prefixed)
	counter := 0
	for filled := 0; filled < types.VectorDim; {
		h := sha256.Sum256(append(block, byte(counter)))
		for _, b := range h {
			if filled >= types.VectorDim {
				break
			}
			vec[filled] = float32(b)/127.5 - 1.0
			filled++
		}
		counter++
	}
	types.NormalizeL2(vec)
	return vec
}

func (l *LocalProvider) embedOne(prefixed string) EmbedResult {
	hash := ComputeHash(prefixed)
	if l.cache != nil {
		if res, ok := l.cache.Get(hash); ok {
			return res
		}
	}
	res := EmbedResult{Vector: l.deterministicVector(prefixed), TokenCount: estimateTokens(prefixed)}
	if l.cache != nil {
		l.cache.Set(hash, res)
	}
	return res
}

func (l *LocalProvider) EmbedDocument(_ context.Context, text string) (EmbedResult, error) {
	if err := validateText(text); err != nil {
		return EmbedResult{}, err
	}
	return l.embedOne(DocumentPrefix + truncate(text, MaxInputChars)), nil
}

func (l *LocalProvider) EmbedQuery(_ context.Context, text string) (EmbedResult, error) {
	if err := validateText(text); err != nil {
		return EmbedResult{}, err
	}
	return l.embedOne(QueryPrefix + truncate(text, MaxInputChars)), nil
}

func (l *LocalProvider) EmbedBatch(_ context.Context, texts []string, _ int) ([]BatchItem, error) {
	results := make([]BatchItem, len(texts))
	for i, t := range texts {
		results[i] = BatchItem{Index: i, Result: l.embedOne(DocumentPrefix + truncate(t, MaxInputChars))}
	}
	return results, nil
}

func (l *LocalProvider) Close() error { return nil }

// LocalReranker is a deterministic cross-encoder stand-in: it scores a
// (query, passage) pair by cosine similarity of their local embeddings.
// No cross-encoder library exists anywhere in the example pack (see
// DESIGN.md), so this mirrors LocalProvider's determinism pattern rather
// than hand-rolling a cross-encoder architecture from nothing.
type LocalReranker struct {
	provider *LocalProvider
}

// NewLocalReranker creates a deterministic offline reranker.
func NewLocalReranker() *LocalReranker {
	p, _ := NewLocalProvider(nil)
	return &LocalReranker{provider: p}
}

func (r *LocalReranker) Score(ctx context.Context, query, passage string) (float64, error) {
	q, err := r.provider.EmbedQuery(ctx, query)
	if err != nil {
		return 0, err
	}
	d, err := r.provider.EmbedDocument(ctx, truncate(passage, MaxPassageChars))
	if err != nil {
		return 0, err
	}
	sim := types.CosineSimilarity(q.Vector, d.Vector)
	// Cosine similarity is in [-1, 1]; rescale to a [0, 1] relevance probability.
	return (sim + 1) / 2, nil
}
