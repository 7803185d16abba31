package embeddings

import (
	"context"
	"fmt"

	"github.com/paperchat/cli/internal/ollama"
)

// OllamaProvider computes embeddings through a local Ollama server. The
// embeddings endpoint takes one text per request, so a batch becomes a
// sequence of calls; any failed call fails the batch.
type OllamaProvider struct {
	client *ollama.Client
	model  string
}

// NewOllamaProvider creates an Ollama-backed embedding provider.
func NewOllamaProvider(client *ollama.Client, model string) *OllamaProvider {
	return &OllamaProvider{client: client, model: model}
}

// EmbedBatch embeds each text in order.
func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := p.client.Embed(ctx, p.model, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}
