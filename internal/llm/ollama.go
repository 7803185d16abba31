package llm

import (
	"context"
	"fmt"

	"github.com/paperchat/cli/internal/ollama"
)

// OllamaGenerator generates text through a local Ollama server.
type OllamaGenerator struct {
	client      *ollama.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOllamaGenerator creates an Ollama-backed generator.
func NewOllamaGenerator(client *ollama.Client, model string, maxTokens int, temperature float64) *OllamaGenerator {
	return &OllamaGenerator{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Complete generates a full answer for the conversation.
func (g *OllamaGenerator) Complete(ctx context.Context, messages []Message) (string, error) {
	answer, err := g.client.Chat(ctx, g.request(messages))
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return answer, nil
}

// CompleteStream generates an answer as an ordered fragment stream.
func (g *OllamaGenerator) CompleteStream(ctx context.Context, messages []Message, onFragment func(string)) error {
	if err := g.client.ChatStream(ctx, g.request(messages), onFragment); err != nil {
		return fmt.Errorf("failed to stream answer: %w", err)
	}
	return nil
}

func (g *OllamaGenerator) request(messages []Message) *ollama.ChatRequest {
	converted := make([]ollama.Message, len(messages))
	for i, m := range messages {
		converted[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}
	return &ollama.ChatRequest{
		Model:    g.model,
		Messages: converted,
		Options: map[string]any{
			"num_predict": g.maxTokens,
			"temperature": g.temperature,
		},
	}
}
