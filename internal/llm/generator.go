package llm

import "context"

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation passed to the generation service.
type Message struct {
	Role    string
	Content string
}

// Generator is an opaque text-completion service over a conversation
// history. CompleteStream yields ordered text fragments through
// onFragment; the concatenation of all fragments equals the full answer.
type Generator interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	CompleteStream(ctx context.Context, messages []Message, onFragment func(string)) error
}
