package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// Store persists chunks and answers nearest-neighbor similarity queries.
// The vector column is 32-bit float; a configuration asking for 64-bit
// components is rejected at construction rather than silently narrowed.
type Store struct {
	db        *DB
	dimension int
	log       *zap.Logger
}

// QueryResult is a ranked, threshold-filtered similarity search result.
// Passages are ordered by non-increasing similarity. Scanned reports how
// many rows the store returned before thresholding, so callers can tell
// an empty store from a store with nothing relevant.
type QueryResult struct {
	Passages []*Passage
	Scanned  int
}

// NewStore creates a vector store over the shared pool and verifies that
// the chunks table's vector column matches the configured dimension and
// width. A mismatch here is a data-corruption risk, not something to
// reconcile quietly.
func NewStore(ctx context.Context, db *DB, dimension, bits int, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if bits != 32 {
		return nil, fmt.Errorf("configured vector width %d bits, but the pgvector column stores 32-bit components", bits)
	}

	var stored int
	err := db.pool.QueryRow(ctx,
		`SELECT coalesce(atttypmod, -1)
		 FROM pg_attribute
		 WHERE attrelid = 'chunks'::regclass AND attname = 'vec'`,
	).Scan(&stored)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect chunks.vec column: %w", err)
	}
	if stored > 0 && stored != dimension {
		return nil, fmt.Errorf("%w: store has %d, config has %d", ErrDimensionMismatch, stored, dimension)
	}

	return &Store{db: db, dimension: dimension, log: log}, nil
}

// execer is satisfied by both the pool and an acquired connection.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// upsertChunk writes one chunk row. Duplicate ids overwrite silently:
// under the content-hash id strategy identical text collides
// deterministically, which is the dedup mechanism rather than an error.
func (s *Store) upsertChunk(ctx context.Context, ex execer, c *Chunk) error {
	_, err := ex.Exec(ctx,
		`INSERT INTO chunks (id, chunk, vec, page_num, document_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET chunk = EXCLUDED.chunk, vec = EXCLUDED.vec,
		     page_num = EXCLUDED.page_num, document_id = EXCLUDED.document_id`,
		c.ID, c.Text, c.Embedding, c.PageLabel, c.DocumentID,
	)
	return err
}

// Add upserts chunk rows, aborting on the first failure.
func (s *Store) Add(ctx context.Context, chunks []*Chunk) ([]string, error) {
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if err := s.upsertChunk(ctx, s.db.pool, c); err != nil {
			return ids, fmt.Errorf("failed to add chunk %s: %w", c.ID, err)
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// SaveChunks persists all supplied chunk rows under one document and
// returns the number of rows that failed. Row failures are counted, not
// fatal: a bad row is logged and the rest of the batch still lands. This
// is deliberately more forgiving than the embedding step, which aborts
// the whole document.
func (s *Store) SaveChunks(ctx context.Context, ids, texts, pages []string, vectors [][]float32, documentID int) (int, error) {
	if len(ids) != len(texts) || len(ids) != len(pages) || len(ids) != len(vectors) {
		return 0, fmt.Errorf("chunk row slices misaligned: %d ids, %d texts, %d pages, %d vectors",
			len(ids), len(texts), len(pages), len(vectors))
	}

	conn, err := s.db.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	errors := 0
	for i := range ids {
		vec := pgvector.NewVector(vectors[i])
		chunk := &Chunk{
			ID:         ids[i],
			DocumentID: documentID,
			Text:       texts[i],
			PageLabel:  pages[i],
			Embedding:  &vec,
		}
		if err := s.upsertChunk(ctx, conn, chunk); err != nil {
			s.log.Error("failed to save chunk", zap.String("id", ids[i]), zap.Error(err))
			errors++
		}
	}

	s.log.Info("saved chunks",
		zap.Int("document_id", documentID),
		zap.Int("saved", len(ids)-errors),
		zap.Int("errors", errors),
	)
	return errors, nil
}

// Delete is not implemented for this store.
func (s *Store) Delete(ctx context.Context, id string) error {
	return fmt.Errorf("failed to delete chunk %s: %w", id, ErrDeleteUnsupported)
}

// Query runs a cosine-distance nearest-neighbor search, keeps the topK
// closest rows, converts each distance d to similarity s = 1-d and drops
// rows below the threshold before returning. When approximate is false a
// sequential scan is forced so the HNSW index cannot trade exactness for
// speed behind the caller's back.
func (s *Store) Query(ctx context.Context, embedding []float32, topK int, threshold float64, approximate bool) (*QueryResult, error) {
	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has %d components, store has %d",
			ErrDimensionMismatch, len(embedding), s.dimension)
	}

	conn, err := s.db.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin query transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if !approximate {
		if _, err := tx.Exec(ctx, `SET LOCAL enable_indexscan = off`); err != nil {
			return nil, fmt.Errorf("failed to force exact search: %w", err)
		}
	}

	vec := pgvector.NewVector(embedding)
	rows, err := tx.Query(ctx,
		`SELECT c.id, c.chunk, c.page_num, c.vec <=> $1 AS distance, d.name
		 FROM chunks c
		 JOIN documents d ON c.document_id = d.id
		 ORDER BY distance
		 LIMIT $2`,
		vec, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	type scored struct {
		passage  Passage
		distance float64
	}
	var scanned []scored
	for rows.Next() {
		var sc scored
		if err := rows.Scan(&sc.passage.ID, &sc.passage.Text, &sc.passage.PageLabel, &sc.distance, &sc.passage.DocumentName); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		scanned = append(scanned, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunk rows: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit query transaction: %w", err)
	}

	result := &QueryResult{Scanned: len(scanned)}
	for i := range scanned {
		scanned[i].passage.Similarity = 1 - scanned[i].distance
		if scanned[i].passage.Similarity >= threshold {
			result.Passages = append(result.Passages, &scanned[i].passage)
		}
	}

	s.log.Debug("vector query",
		zap.Int("top_k", topK),
		zap.Float64("threshold", threshold),
		zap.Bool("approximate", approximate),
		zap.Int("scanned", result.Scanned),
		zap.Int("kept", len(result.Passages)),
	)
	return result, nil
}

// CountChunks returns the number of stored chunks.
func (s *Store) CountChunks(ctx context.Context) (int, error) {
	var n int
	if err := s.db.pool.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}
