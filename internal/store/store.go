// Package store implements the Vector Store component (§4.4): a single
// SQLite database holding one flat "chunks" table (keyed by the chunk id
// derived in pkg/types) plus an FTS5 shadow table kept in sync by
// triggers. Grounded on gocontext-mcp's internal/storage package, which
// splits the same concerns (schema, migrations, vector ops, dual build
// tags) across a normalized multi-table schema; here the flat
// VectorRecord collapses that down to one table.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ervantix/semcode-mcp/pkg/types"
)

// FullTextScanLimit bounds the number of FTS5 candidate rows scored by the
// manual ranking formula (§4.4, §9 Open Question resolution: bound rather
// than silently truncate — FullTextSearch returns partial = true to its
// caller when the bound is hit).
const FullTextScanLimit = 10000

// Store is the Vector Store contract of §4.4.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open opens (creating if absent) the SQLite database at path and brings
// its schema up to date.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	db, err := sql.Open(DriverName, path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, types.NewCodeError(types.KindIoFailure, "open database", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer; teacher's storage layer does the same.

	if err := migrate(db); err != nil {
		db.Close()
		return nil, types.NewCodeError(types.KindIoFailure, "migrate schema", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces a batch of vector records (§4.4 upsert).
func (s *Store) Upsert(ctx context.Context, records []types.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, file_path, content, start_line, end_line, name, node_type, signature, docstring, language, content_hash, indexed_at, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_path = excluded.file_path,
			content = excluded.content,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			name = excluded.name,
			node_type = excluded.node_type,
			signature = excluded.signature,
			docstring = excluded.docstring,
			language = excluded.language,
			content_hash = excluded.content_hash,
			indexed_at = excluded.indexed_at,
			vector = excluded.vector
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		_, err := stmt.ExecContext(ctx,
			r.ID, r.FilePath, r.Content, r.StartLine, r.EndLine, r.Name, r.NodeType,
			r.Signature, r.Docstring, r.Language, r.ContentHash, r.IndexedAt.Unix(), encodeVector(r.Vector))
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteByFilePath removes every chunk belonging to filePath (§4.4
// delete_by_file_path, used by the indexer on change/removal and by the
// watcher).
func (s *Store) DeleteByFilePath(ctx context.Context, filePath string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_path = ?`, filePath)
	return err
}

// Clear removes every chunk (§4.4 clear, used by full reindex).
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks`)
	return err
}

// Count returns the total number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// IsEmpty reports whether the store holds no chunks at all (§4.7 step 1's
// lazy single-flight index build trigger).
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	n, err := s.Count(ctx)
	return n == 0, err
}

// Health reports the operational status surfaced by the CLI's -status
// flag, grounded on gocontext-mcp's get_status tool
// (DatabaseAccessible/EmbeddingsAvailable/FTSIndexesBuilt); kept as a
// Store method rather than a second MCP tool per §6's consolidated
// surface.
type Health struct {
	DatabaseAccessible bool
	FTSIndexesBuilt    bool
	ChunkCount         int
	FilesIndexed       int
	SchemaVersion      string
}

func (s *Store) Health(ctx context.Context) Health {
	h := Health{}

	count, err := s.Count(ctx)
	if err != nil {
		return h
	}
	h.DatabaseAccessible = true
	h.ChunkCount = count

	files, err := s.GetIndexedFiles(ctx)
	if err == nil {
		h.FilesIndexed = len(files)
	}

	var ftsName string
	if err := s.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'chunks_fts'`,
	).Scan(&ftsName); err == nil && ftsName == "chunks_fts" {
		h.FTSIndexesBuilt = true
	}

	var version string
	if err := s.db.QueryRowContext(ctx,
		`SELECT version FROM schema_migrations ORDER BY applied_at DESC LIMIT 1`,
	).Scan(&version); err == nil {
		h.SchemaVersion = version
	}

	return h
}

// GetIndexedFiles returns file_path -> content_hash for every distinct
// indexed file, the change-detection source the indexer diffs against
// (§4.5 step 2).
func (s *Store) GetIndexedFiles(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_path, content_hash FROM chunks
		GROUP BY file_path
		HAVING indexed_at = MAX(indexed_at)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		out[path] = hash
	}
	return out, rows.Err()
}

const chunkColumns = `id, file_path, content, start_line, end_line, name, node_type, signature, docstring, language, content_hash, indexed_at`

func scanChunk(scanner interface {
	Scan(dest ...any) error
}) (types.VectorRecord, error) {
	var r types.VectorRecord
	var indexedAt int64
	err := scanner.Scan(&r.ID, &r.FilePath, &r.Content, &r.StartLine, &r.EndLine, &r.Name,
		&r.NodeType, &r.Signature, &r.Docstring, &r.Language, &r.ContentHash, &indexedAt)
	r.IndexedAt = time.Unix(indexedAt, 0).UTC()
	return r, err
}

func whereClause(predicate string) string {
	if predicate == "" {
		return ""
	}
	return " WHERE " + predicate
}

// VectorSearch implements §4.4's vector_search: rank every candidate chunk
// (optionally narrowed by filterPredicate) by cosine similarity to query,
// returning the top k.
func (s *Store) VectorSearch(ctx context.Context, query []float32, k int, filterPredicate string) ([]types.SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+`, vector FROM chunks`+whereClause(filterPredicate))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type scored struct {
		rec   types.VectorRecord
		score float64
	}
	var all []scored
	for rows.Next() {
		var r types.VectorRecord
		var indexedAt int64
		var vecBlob []byte
		if err := rows.Scan(&r.ID, &r.FilePath, &r.Content, &r.StartLine, &r.EndLine, &r.Name,
			&r.NodeType, &r.Signature, &r.Docstring, &r.Language, &r.ContentHash, &indexedAt, &vecBlob); err != nil {
			return nil, err
		}
		r.IndexedAt = time.Unix(indexedAt, 0).UTC()
		vec := decodeVector(vecBlob)
		score := cosineScore(query, vec)
		if math.IsNaN(score) {
			continue
		}
		all = append(all, scored{rec: r, score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })
	if k > 0 && len(all) > k {
		all = all[:k]
	}

	results := make([]types.SearchResult, len(all))
	for i, sc := range all {
		results[i] = types.SearchResult{Chunk: chunkOf(sc.rec), VectorScore: sc.score}
	}
	return results, nil
}

func chunkOf(r types.VectorRecord) types.Chunk { return r.Chunk }

// fullTextHit is one FTS5 candidate row plus the raw text needed to score
// it with the manual ranking formula.
type fullTextHit struct {
	rec types.VectorRecord
}

// FullTextSearch implements §4.4's full_text_search: FTS5 MATCH narrows to
// candidate rows (bounded at FullTextScanLimit), then each candidate is
// scored with the manual formula
//
//	score = (2*hits(name) + 1.5*hits(signature) + 1*hits(content)) / (len(keywords)*4)
//
// rather than trusting bm25() directly, since this formula weighs
// fields independently of FTS5's own ranking. partial is true when the
// scan hit the bound, meaning results may have been omitted.
func (s *Store) FullTextSearch(ctx context.Context, keywords []string, k int, filterPredicate string) (results []types.SearchResult, partial bool, err error) {
	keywords = normalizeKeywords(keywords)
	if len(keywords) == 0 {
		return nil, false, nil
	}

	matchQuery := strings.Join(quoteKeywords(keywords), " OR ")
	query := `
		SELECT ` + chunkColumns + `
		FROM chunks
		WHERE id IN (SELECT id FROM chunks_fts WHERE chunks_fts MATCH ?)`
	args := []any{matchQuery}
	if filterPredicate != "" {
		query += ` AND ` + filterPredicate
	}
	query += ` LIMIT ?`
	args = append(args, FullTextScanLimit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var hits []fullTextHit
	for rows.Next() {
		rec, scanErr := scanChunk(rows)
		if scanErr != nil {
			return nil, false, scanErr
		}
		hits = append(hits, fullTextHit{rec: rec})
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	if len(hits) > FullTextScanLimit {
		hits = hits[:FullTextScanLimit]
		partial = true
	}

	denom := float64(len(keywords) * 4)
	scoredResults := make([]types.SearchResult, 0, len(hits))
	for _, h := range hits {
		score := scoreKeywordHits(keywords, h.rec) / denom
		scoredResults = append(scoredResults, types.SearchResult{Chunk: chunkOf(h.rec), KeywordScore: score})
	}

	sort.Slice(scoredResults, func(i, j int) bool { return scoredResults[i].KeywordScore > scoredResults[j].KeywordScore })
	if k > 0 && len(scoredResults) > k {
		scoredResults = scoredResults[:k]
	}
	return scoredResults, partial, nil
}

// scoreKeywordHits implements §4.4's field-weighted hit count:
// 2 per keyword found in name, 1.5 per keyword found in signature,
// 1 per keyword found in content (case-insensitive substring match).
func scoreKeywordHits(keywords []string, rec types.VectorRecord) float64 {
	name := strings.ToLower(rec.Name)
	sig := strings.ToLower(rec.Signature)
	content := strings.ToLower(rec.Content)

	var score float64
	for _, kw := range keywords {
		if strings.Contains(name, kw) {
			score += 2
		}
		if strings.Contains(sig, kw) {
			score += 1.5
		}
		if strings.Contains(content, kw) {
			score += 1
		}
	}
	return score
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// quoteKeywords wraps each keyword in double quotes so FTS5 treats it as
// a literal token rather than query syntax (punctuation in a keyword
// would otherwise be parsed as an FTS5 operator).
func quoteKeywords(keywords []string) []string {
	out := make([]string, len(keywords))
	for i, k := range keywords {
		out[i] = `"` + strings.ReplaceAll(k, `"`, `""`) + `"`
	}
	return out
}
