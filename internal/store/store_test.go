package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ervantix/semcode-mcp/pkg/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func unitVector(seed float32) []float32 {
	v := make([]float32, types.VectorDim)
	v[0] = seed
	v[1] = 1
	types.NormalizeL2(v)
	return v
}

func sampleRecord(id, filePath, name, content string, vec []float32) types.VectorRecord {
	return types.VectorRecord{
		Chunk: types.Chunk{
			ID:        id,
			FilePath:  filePath,
			Content:   content,
			StartLine: 1,
			EndLine:   5,
			Name:      name,
			NodeType:  "function_declaration",
			Signature: "func " + name + "()",
			Language:  "go",
		},
		Vector:      vec,
		ContentHash: "deadbeef",
		IndexedAt:   time.Now(),
	}
}

func TestOpenAndCount(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	empty, err := s.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	err = s.Upsert(ctx, []types.VectorRecord{sampleRecord("a_L1", "a.go", "Foo", "func Foo() { return }", unitVector(1))})
	require.NoError(t, err)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	empty, err = s.IsEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestUpsertReplacesExisting(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("a_L1", "a.go", "Foo", "func Foo() { return 1 }", unitVector(1))
	require.NoError(t, s.Upsert(ctx, []types.VectorRecord{rec}))

	rec.Content = "func Foo() { return 2 }"
	require.NoError(t, s.Upsert(ctx, []types.VectorRecord{rec}))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteByFilePath(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []types.VectorRecord{
		sampleRecord("a_L1", "a.go", "Foo", "func Foo() { return 1 }", unitVector(1)),
		sampleRecord("b_L1", "b.go", "Bar", "func Bar() { return 1 }", unitVector(2)),
	}))

	require.NoError(t, s.DeleteByFilePath(ctx, "a.go"))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	files, err := s.GetIndexedFiles(ctx)
	require.NoError(t, err)
	_, hasA := files["a.go"]
	assert.False(t, hasA)
	assert.Contains(t, files, "b.go")
}

func TestClear(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []types.VectorRecord{
		sampleRecord("a_L1", "a.go", "Foo", "func Foo() { return 1 }", unitVector(1)),
	}))
	require.NoError(t, s.Clear(ctx))

	empty, err := s.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestHealthReportsAccessibleStoreWithFTSAndSchemaVersion(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []types.VectorRecord{
		sampleRecord("a_L1", "a.go", "Foo", "func Foo() { return 1 }", unitVector(1)),
	}))

	h := s.Health(ctx)
	assert.True(t, h.DatabaseAccessible)
	assert.True(t, h.FTSIndexesBuilt)
	assert.Equal(t, 1, h.ChunkCount)
	assert.Equal(t, 1, h.FilesIndexed)
	assert.NotEmpty(t, h.SchemaVersion)
}

func TestHealthOnEmptyStore(t *testing.T) {
	s := setupTestStore(t)
	h := s.Health(context.Background())
	assert.True(t, h.DatabaseAccessible)
	assert.Equal(t, 0, h.ChunkCount)
	assert.Equal(t, 0, h.FilesIndexed)
}

func TestVectorSearchRanksBySimilarity(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	query := unitVector(1)
	near := query
	far := unitVector(-1)

	require.NoError(t, s.Upsert(ctx, []types.VectorRecord{
		sampleRecord("a_L1", "a.go", "Foo", "func Foo() { return 1 }", near),
		sampleRecord("b_L1", "b.go", "Bar", "func Bar() { return 1 }", far),
	}))

	results, err := s.VectorSearch(ctx, query, 10, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a_L1", results[0].ID)
	assert.GreaterOrEqual(t, results[0].VectorScore, results[1].VectorScore)
}

func TestVectorSearchRespectsFilter(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	query := unitVector(1)
	require.NoError(t, s.Upsert(ctx, []types.VectorRecord{
		sampleRecord("src_a_go_L1", "src/a.go", "Foo", "func Foo() { return 1 }", unitVector(1)),
		sampleRecord("other_b_go_L1", "other/b.go", "Bar", "func Bar() { return 1 }", unitVector(1)),
	}))

	results, err := s.VectorSearch(ctx, query, 10, "id LIKE 'src%'")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "src_a_go_L1", results[0].ID)
}

func TestFullTextSearchScoresNameHigherThanContent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []types.VectorRecord{
		sampleRecord("a_L1", "a.go", "ParseConfig", "func ParseConfig() { return nil }", unitVector(1)),
		sampleRecord("b_L1", "b.go", "Helper", "func Helper() { // mentions parseconfig in a comment\n return nil }", unitVector(2)),
	}))

	results, partial, err := s.FullTextSearch(ctx, []string{"parseconfig"}, 10, "")
	require.NoError(t, err)
	assert.False(t, partial)
	require.Len(t, results, 2)
	assert.Equal(t, "a_L1", results[0].ID)
	assert.Greater(t, results[0].KeywordScore, results[1].KeywordScore)
}

func TestFullTextSearchEmptyKeywords(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	results, partial, err := s.FullTextSearch(ctx, nil, 10, "")
	require.NoError(t, err)
	assert.False(t, partial)
	assert.Empty(t, results)
}
