package store

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// migration is one forward-only schema step, identified by a semver tag so
// that a store opened against an older database can walk forward to the
// current schema. Matches gocontext-mcp's migration-table convention
// (internal/storage/migrations.go), flattened to this package's single
// "chunks" table instead of its normalized repos/files/symbols schema.
type migration struct {
	version *semver.Version
	desc    string
	apply   func(*sql.Tx) error
}

var migrations = []migration{
	{
		version: semver.MustParse("1.0.0"),
		desc:    "initial chunks table, FTS5 index, and sync triggers",
		apply:   applyInitialSchema,
	},
}

func applyInitialSchema(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			id           TEXT PRIMARY KEY,
			file_path    TEXT NOT NULL,
			content      TEXT NOT NULL,
			start_line   INTEGER NOT NULL,
			end_line     INTEGER NOT NULL,
			name         TEXT NOT NULL DEFAULT '',
			node_type    TEXT NOT NULL,
			signature    TEXT NOT NULL DEFAULT '',
			docstring    TEXT NOT NULL DEFAULT '',
			language     TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			indexed_at   INTEGER NOT NULL,
			vector       BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_content_hash ON chunks(content_hash)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			id UNINDEXED,
			name,
			signature,
			content,
			tokenize = 'unicode61'
		)`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(id, name, signature, content)
			VALUES (new.id, new.name, new.signature, new.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
			DELETE FROM chunks_fts WHERE id = old.id;
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
			DELETE FROM chunks_fts WHERE id = old.id;
			INSERT INTO chunks_fts(id, name, signature, content)
			VALUES (new.id, new.name, new.signature, new.content);
		END`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return fmt.Errorf("apply schema statement %q: %w", s, err)
		}
	}
	return nil
}

// migrate brings db up to the latest schema version, recording each
// applied migration in schema_migrations so re-opening an already current
// database is a no-op.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()

	ordered := append([]migration(nil), migrations...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].version.LessThan(ordered[j].version) })

	for _, m := range ordered {
		if applied[m.version.String()] {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s (%s): %w", m.version, m.desc, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version, applied_at) VALUES (?, strftime('%s','now'))`, m.version.String()); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
