package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperchat/cli/internal/db"
)

type fakeStore struct {
	result    *db.QueryResult
	err       error
	threshold float64
	topK      int
}

func (f *fakeStore) Query(_ context.Context, _ []float32, topK int, threshold float64, _ bool) (*db.QueryResult, error) {
	f.topK = topK
	f.threshold = threshold
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{0.5, 0.5}
	}
	return vectors, nil
}

type fakeReranker struct {
	indices []int
	err     error
	query   string
	topN    int
}

func (f *fakeReranker) Rerank(_ context.Context, query string, passages []string, topN int) ([]int, error) {
	f.query = query
	f.topN = topN
	if f.err != nil {
		return nil, f.err
	}
	return f.indices, nil
}

func passage(id string, similarity float64) *db.Passage {
	return &db.Passage{
		ID:           id,
		Text:         fmt.Sprintf("passage %s", id),
		PageLabel:    "1",
		DocumentName: "paper.pdf",
		Similarity:   similarity,
	}
}

func defaultOptions() Options {
	return Options{TopK: 5, TopN: 3, SimilarityThreshold: 0.35}
}

func TestRetrieveStoreEmpty(t *testing.T) {
	store := &fakeStore{result: &db.QueryResult{Scanned: 0}}
	r := NewRetriever(store, &fakeEmbedder{}, nil, nil, nil)

	_, err := r.Retrieve(context.Background(), "q", defaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreEmpty))
}

func TestRetrieveNoEvidence(t *testing.T) {
	// Chunks were scanned but the threshold filtered them all out.
	store := &fakeStore{result: &db.QueryResult{Scanned: 5}}
	r := NewRetriever(store, &fakeEmbedder{}, nil, nil, nil)

	_, err := r.Retrieve(context.Background(), "q", defaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoEvidence))
	assert.False(t, errors.Is(err, ErrStoreEmpty))
}

func TestRetrieveWithoutRerankerKeepsStoreOrder(t *testing.T) {
	store := &fakeStore{result: &db.QueryResult{
		Passages: []*db.Passage{passage("a", 0.9), passage("b", 0.7), passage("c", 0.5)},
		Scanned:  3,
	}}
	r := NewRetriever(store, &fakeEmbedder{}, nil, nil, nil)

	passages, err := r.Retrieve(context.Background(), "q", defaultOptions())
	require.NoError(t, err)

	require.Len(t, passages, 3)
	assert.Equal(t, "a", passages[0].ID)
	assert.Equal(t, "b", passages[1].ID)
	assert.Equal(t, "c", passages[2].ID)
}

func TestRetrievePassesQueryParameters(t *testing.T) {
	store := &fakeStore{result: &db.QueryResult{
		Passages: []*db.Passage{passage("a", 0.9)},
		Scanned:  1,
	}}
	r := NewRetriever(store, &fakeEmbedder{}, nil, nil, nil)

	opts := Options{TopK: 12, TopN: 4, SimilarityThreshold: 0.2}
	_, err := r.Retrieve(context.Background(), "q", opts)
	require.NoError(t, err)

	assert.Equal(t, 12, store.topK)
	assert.Equal(t, 0.2, store.threshold)
}

func TestRetrieveRerankerNarrowsAndReorders(t *testing.T) {
	store := &fakeStore{result: &db.QueryResult{
		Passages: []*db.Passage{
			passage("a", 0.9), passage("b", 0.8), passage("c", 0.7),
			passage("d", 0.6), passage("e", 0.5),
		},
		Scanned: 5,
	}}
	reranker := &fakeReranker{indices: []int{3, 1}}
	r := NewRetriever(store, &fakeEmbedder{}, reranker, nil, nil)

	opts := Options{TopK: 5, TopN: 2, SimilarityThreshold: 0.35}
	passages, err := r.Retrieve(context.Background(), "what is d about", opts)
	require.NoError(t, err)

	require.Len(t, passages, 2)
	assert.Equal(t, "d", passages[0].ID)
	assert.Equal(t, "b", passages[1].ID)

	// Reranking reorders but never rewrites similarity scores.
	assert.Equal(t, 0.6, passages[0].Similarity)
	assert.Equal(t, 0.8, passages[1].Similarity)

	assert.Equal(t, "what is d about", reranker.query)
	assert.Equal(t, 2, reranker.topN)
}

func TestRetrieveRerankerErrorPropagates(t *testing.T) {
	store := &fakeStore{result: &db.QueryResult{
		Passages: []*db.Passage{passage("a", 0.9)},
		Scanned:  1,
	}}
	r := NewRetriever(store, &fakeEmbedder{}, &fakeReranker{err: errors.New("service down")}, nil, nil)

	_, err := r.Retrieve(context.Background(), "q", defaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to rerank")
}

func TestRetrieveEmbedderErrorPropagates(t *testing.T) {
	r := NewRetriever(&fakeStore{}, &fakeEmbedder{err: errors.New("no model")}, nil, nil, nil)

	_, err := r.Retrieve(context.Background(), "q", defaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to embed question")
}

type recordingObserver struct {
	started  []string
	finished []int
	errs     []error
}

func (o *recordingObserver) RetrievalStarted(question string) {
	o.started = append(o.started, question)
}

func (o *recordingObserver) RetrievalFinished(_ string, passages int, err error) {
	o.finished = append(o.finished, passages)
	o.errs = append(o.errs, err)
}

func TestRetrieveNotifiesObserver(t *testing.T) {
	store := &fakeStore{result: &db.QueryResult{
		Passages: []*db.Passage{passage("a", 0.9), passage("b", 0.8)},
		Scanned:  2,
	}}
	obs := &recordingObserver{}
	r := NewRetriever(store, &fakeEmbedder{}, nil, obs, nil)

	_, err := r.Retrieve(context.Background(), "q", defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"q"}, obs.started)
	assert.Equal(t, []int{2}, obs.finished)
	require.Len(t, obs.errs, 1)
	assert.NoError(t, obs.errs[0])
}
