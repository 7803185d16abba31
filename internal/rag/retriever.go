package rag

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/paperchat/cli/internal/db"
)

var (
	// ErrNoEvidence means the store held chunks but none cleared the
	// similarity threshold. A defined outcome, not a failure.
	ErrNoEvidence = errors.New("no passages above the similarity threshold")

	// ErrStoreEmpty means the similarity search had nothing to scan.
	ErrStoreEmpty = errors.New("no documents have been ingested")
)

// Store answers ranked, threshold-filtered similarity queries.
type Store interface {
	Query(ctx context.Context, embedding []float32, topK int, threshold float64, approximate bool) (*db.QueryResult, error)
}

// Embedder turns texts into vectors, one per text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Reranker reorders passages by relevance to the query and narrows them
// to topN, returning passage indices best-first.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []string, topN int) ([]int, error)
}

// Options are the per-query retrieval parameters. They are passed
// explicitly at each call site; the engine holds no ambient UI state.
type Options struct {
	TopK                int
	TopN                int
	SimilarityThreshold float64
	Approximate         bool
}

// Retriever composes a query embedding, the vector store's similarity
// search and an optional reranker into a ranked result set.
type Retriever struct {
	store    Store
	embedder Embedder
	reranker Reranker
	observer Observer
	log      *zap.Logger
}

// NewRetriever creates a retrieval query engine. reranker may be nil, in
// which case the store's own ordering stands. observer may be nil.
func NewRetriever(store Store, embedder Embedder, reranker Reranker, observer Observer, log *zap.Logger) *Retriever {
	if observer == nil {
		observer = NopObserver{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Retriever{
		store:    store,
		embedder: embedder,
		reranker: reranker,
		observer: observer,
		log:      log,
	}
}

// Retrieve returns the passages relevant to the question. When a
// reranker is configured its ordering is trusted over the raw similarity
// ordering, and results are narrowed to opts.TopN; each passage keeps
// its original similarity score so callers can re-check the threshold.
func (r *Retriever) Retrieve(ctx context.Context, question string, opts Options) ([]*db.Passage, error) {
	r.observer.RetrievalStarted(question)
	passages, err := r.retrieve(ctx, question, opts)
	r.observer.RetrievalFinished(question, len(passages), err)
	return passages, err
}

func (r *Retriever) retrieve(ctx context.Context, question string, opts Options) ([]*db.Passage, error) {
	vectors, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	result, err := r.store.Query(ctx, vectors[0], opts.TopK, opts.SimilarityThreshold, opts.Approximate)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector store: %w", err)
	}

	if len(result.Passages) == 0 {
		if result.Scanned == 0 {
			return nil, ErrStoreEmpty
		}
		return nil, ErrNoEvidence
	}

	if r.reranker == nil {
		return result.Passages, nil
	}

	texts := make([]string, len(result.Passages))
	for i, p := range result.Passages {
		texts[i] = p.Text
	}
	indices, err := r.reranker.Rerank(ctx, question, texts, opts.TopN)
	if err != nil {
		return nil, fmt.Errorf("failed to rerank passages: %w", err)
	}

	reranked := make([]*db.Passage, 0, len(indices))
	for _, idx := range indices {
		reranked = append(reranked, result.Passages[idx])
	}

	r.log.Debug("reranked passages",
		zap.Int("candidates", len(result.Passages)),
		zap.Int("kept", len(reranked)),
	)
	return reranked, nil
}
