package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// OpenAIGenerator generates text through the OpenAI chat completions API.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAIGenerator creates an OpenAI-backed generator. The API key is
// read from OPENAI_API_KEY by the SDK.
func NewOpenAIGenerator(model string, maxTokens int, temperature float64) *OpenAIGenerator {
	client := openai.NewClient()
	return &OpenAIGenerator{
		client:      &client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Complete generates a full answer for the conversation.
func (g *OpenAIGenerator) Complete(ctx context.Context, messages []Message) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, g.params(messages))
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteStream generates an answer as an ordered fragment stream.
func (g *OpenAIGenerator) CompleteStream(ctx context.Context, messages []Message, onFragment func(string)) error {
	stream := g.client.Chat.Completions.NewStreaming(ctx, g.params(messages))
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			onFragment(chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("failed to stream answer: %w", err)
	}
	return nil
}

func (g *OpenAIGenerator) params(messages []Message) openai.ChatCompletionNewParams {
	converted := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, m := range messages {
		switch m.Role {
		case RoleSystem:
			converted[i] = openai.SystemMessage(m.Content)
		case RoleAssistant:
			converted[i] = openai.AssistantMessage(m.Content)
		default:
			converted[i] = openai.UserMessage(m.Content)
		}
	}
	return openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(g.model),
		Messages:            converted,
		MaxCompletionTokens: openai.Int(int64(g.maxTokens)),
		Temperature:         openai.Float(g.temperature),
	}
}
