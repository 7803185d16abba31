package embeddings

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/paperchat/cli/config"
)

// Provider computes embeddings for one bounded batch of texts, returning
// vectors aligned 1:1 with the input.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Batcher partitions arbitrarily large input lists into bounded batches
// to respect the embedding service's request-size limits, and paces the
// batches to respect its rate limits. Any batch failure is fatal for the
// whole call; there is no partial success at this level.
type Batcher struct {
	provider  Provider
	batchSize int
	dimension int
	limiter   *rate.Limiter
	log       *zap.Logger
}

// NewBatcher wraps a provider with batching and pacing from config.
func NewBatcher(provider Provider, cfg *config.Config, log *zap.Logger) *Batcher {
	if log == nil {
		log = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if pacing := cfg.BatchPacing(); pacing > 0 {
		limiter = rate.NewLimiter(rate.Every(pacing), 1)
	}
	return &Batcher{
		provider:  provider,
		batchSize: cfg.Embeddings.BatchSize,
		dimension: cfg.Embeddings.Dimension,
		limiter:   limiter,
		log:       log,
	}
}

// Embed returns one vector per input text, order-preserving.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))

		if err := b.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed waiting for rate limiter: %w", err)
		}

		batch, err := b.provider.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", start, end, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embedding batch %d-%d returned %d vectors for %d texts",
				start, end, len(batch), end-start)
		}
		for i, vec := range batch {
			if len(vec) != b.dimension {
				return nil, fmt.Errorf("embedding %d has %d components, expected %d",
					start+i, len(vec), b.dimension)
			}
		}
		vectors = append(vectors, batch...)

		b.log.Debug("embedded batch", zap.Int("start", start), zap.Int("end", end))
	}

	return vectors, nil
}
