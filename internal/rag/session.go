package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/paperchat/cli/internal/db"
	"github.com/paperchat/cli/internal/llm"
)

// NoEvidenceMessage is rendered when retrieval finds nothing relevant.
// A defined outcome, distinct from a connection failure.
const NoEvidenceMessage = "I couldn't find relevant information in the uploaded documents. Please try rephrasing your question or upload additional documents."

// PassageRetriever is the retrieval engine the session talks to.
type PassageRetriever interface {
	Retrieve(ctx context.Context, question string, opts Options) ([]*db.Passage, error)
}

// Source attributes part of an answer to a stored passage.
type Source struct {
	File       string
	Page       string
	Similarity float64
	Excerpt    string
}

// Answer is the outcome of one chat turn.
type Answer struct {
	Text       string
	Sources    []Source
	NoEvidence bool
}

// Session holds bounded chat history and composes retrieval with text
// generation. One session serves one conversation; callers serialize
// turns.
type Session struct {
	retriever    PassageRetriever
	generator    llm.Generator
	prompts      *PromptBuilder
	systemPrompt string
	tokenLimit   int
	history      []llm.Message
	log          *zap.Logger
}

// NewSession creates a conversation session. tokenLimit bounds how much
// history is kept, estimated at roughly four characters per token.
func NewSession(retriever PassageRetriever, generator llm.Generator, prompts *PromptBuilder, systemPrompt string, tokenLimit int, log *zap.Logger) *Session {
	if tokenLimit <= 0 {
		tokenLimit = 3000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		retriever:    retriever,
		generator:    generator,
		prompts:      prompts,
		systemPrompt: systemPrompt,
		tokenLimit:   tokenLimit,
		log:          log,
	}
}

// Ask answers a question with retrieval-augmented generation.
func (s *Session) Ask(ctx context.Context, question string, opts Options) (*Answer, error) {
	return s.ask(ctx, question, opts, nil)
}

// AskStream answers a question, invoking onFragment for each ordered
// text fragment as the model produces it. The returned Answer's Text is
// the concatenation of all fragments. When retrieval finds no evidence
// the single NoEvidenceMessage is delivered through onFragment, never
// partially or twice.
func (s *Session) AskStream(ctx context.Context, question string, opts Options, onFragment func(string)) (*Answer, error) {
	return s.ask(ctx, question, opts, onFragment)
}

func (s *Session) ask(ctx context.Context, question string, opts Options, onFragment func(string)) (*Answer, error) {
	passages, err := s.retriever.Retrieve(ctx, question, opts)
	if err != nil {
		if errors.Is(err, ErrNoEvidence) || errors.Is(err, ErrStoreEmpty) {
			return s.noEvidence(question, onFragment), nil
		}
		return nil, err
	}

	// The reranker may reorder without respecting the original
	// threshold, so every passage is re-checked before it counts as
	// evidence.
	valid := make([]*db.Passage, 0, len(passages))
	for _, p := range passages {
		if p.Similarity >= opts.SimilarityThreshold {
			valid = append(valid, p)
		}
	}
	if len(valid) == 0 {
		return s.noEvidence(question, onFragment), nil
	}

	contextBlock := s.prompts.BuildContext(valid)
	userMessage := s.prompts.BuildQuestion(contextBlock, question)

	messages := make([]llm.Message, 0, len(s.history)+2)
	if s.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: s.systemPrompt})
	}
	messages = append(messages, s.history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})

	var text string
	if onFragment != nil {
		var sb strings.Builder
		err = s.generator.CompleteStream(ctx, messages, func(fragment string) {
			sb.WriteString(fragment)
			onFragment(fragment)
		})
		text = sb.String()
	} else {
		text, err = s.generator.Complete(ctx, messages)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	s.remember(question, text)

	answer := &Answer{Text: text, Sources: make([]Source, 0, len(valid))}
	for _, p := range valid {
		answer.Sources = append(answer.Sources, Source{
			File:       p.DocumentName,
			Page:       p.PageLabel,
			Similarity: p.Similarity,
			Excerpt:    excerpt(p.Text, 200),
		})
	}
	return answer, nil
}

// AskDirect answers without retrieval, for conversations that do not
// concern the ingested documents.
func (s *Session) AskDirect(ctx context.Context, question string) (*Answer, error) {
	messages := make([]llm.Message, 0, len(s.history)+2)
	if s.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: s.systemPrompt})
	}
	messages = append(messages, s.history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question})

	text, err := s.generator.Complete(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	s.remember(question, text)
	return &Answer{Text: text}, nil
}

// Reset clears the conversation history.
func (s *Session) Reset() {
	s.history = nil
}

// History returns a copy of the conversation turns kept so far.
func (s *Session) History() []llm.Message {
	out := make([]llm.Message, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) noEvidence(question string, onFragment func(string)) *Answer {
	s.log.Info("no relevant evidence for question", zap.String("question", question))
	if onFragment != nil {
		onFragment(NoEvidenceMessage)
	}
	return &Answer{Text: NoEvidenceMessage, NoEvidence: true}
}

// remember appends the turn and evicts oldest turns past the token budget.
func (s *Session) remember(question, answer string) {
	s.history = append(s.history,
		llm.Message{Role: llm.RoleUser, Content: question},
		llm.Message{Role: llm.RoleAssistant, Content: answer},
	)

	for estimateTokens(s.history) > s.tokenLimit && len(s.history) > 2 {
		s.history = s.history[2:]
	}
}

// estimateTokens approximates token usage at four characters per token.
func estimateTokens(messages []llm.Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return chars / 4
}

func excerpt(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return trimToRune(text, n) + "..."
}
