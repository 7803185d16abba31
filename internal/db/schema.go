package db

import (
	"context"
	"fmt"
)

// EnsureSchema creates the extension, tables and index used by the store.
// Safe to run repeatedly.
func (db *DB) EnsureSchema(ctx context.Context, dimension int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
			id   INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id          TEXT PRIMARY KEY,
			chunk       TEXT NOT NULL,
			vec         vector(%d) NOT NULL,
			page_num    TEXT NOT NULL,
			document_id INTEGER NOT NULL REFERENCES documents (id)
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS chunks_vec_hnsw ON chunks
		 USING hnsw (vec vector_cosine_ops)`,
	}

	for _, stmt := range stmts {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
