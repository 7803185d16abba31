package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Registry tracks which documents have been ingested. Chunk rows belong
// to the Store. Ingestion is single-writer; Exists and Register are not
// required to be atomic together.
type Registry struct {
	db  *DB
	log *zap.Logger
}

// NewRegistry creates a document registry backed by the shared pool.
func NewRegistry(db *DB, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{db: db, log: log}
}

// Exists reports whether a document with the given name was ever registered.
func (r *Registry) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE name = $1)`,
		name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check document %q: %w", name, err)
	}
	return exists, nil
}

// Register assigns the next document id (max existing + 1, or 1 when the
// table is empty) and persists the (id, name) pair as one statement.
func (r *Registry) Register(ctx context.Context, name string) (int, error) {
	var id int
	err := r.db.pool.QueryRow(ctx,
		`INSERT INTO documents (id, name)
		 SELECT COALESCE(MAX(id), 0) + 1, $1 FROM documents
		 RETURNING id`,
		name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to register document %q: %w", name, err)
	}

	r.log.Info("registered document", zap.String("name", name), zap.Int("id", id))
	return id, nil
}

// ListDocuments returns all registered documents ordered by id.
func (r *Registry) ListDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT id, name FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Name); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}
