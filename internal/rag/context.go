package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/paperchat/cli/internal/db"
)

// PromptBuilder formats retrieved passages into the context block given
// to the generation model.
type PromptBuilder struct {
	maxTokens int
}

// NewPromptBuilder creates a prompt builder. maxTokens bounds the size
// of the context block, estimated at roughly four characters per token.
func NewPromptBuilder(maxTokens int) *PromptBuilder {
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	return &PromptBuilder{maxTokens: maxTokens}
}

// BuildContext creates a formatted context string from passages.
func (pb *PromptBuilder) BuildContext(passages []*db.Passage) string {
	var parts []string

	parts = append(parts, "## Relevant Document Excerpts:")
	for i, p := range passages {
		parts = append(parts, fmt.Sprintf("\n### Excerpt %d (from %s, page %s):", i+1, p.DocumentName, p.PageLabel))
		parts = append(parts, p.Text)
		parts = append(parts, "")
	}

	context := strings.Join(parts, "\n")

	maxChars := pb.maxTokens * 4
	if len(context) > maxChars {
		context = trimToRune(context, maxChars) + "\n\n[Context truncated...]"
	}
	return context
}

// trimToRune cuts s to at most n bytes without splitting a UTF-8 rune.
func trimToRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// BuildQuestion composes the user message combining context and question.
func (pb *PromptBuilder) BuildQuestion(context, question string) string {
	var parts []string

	if context != "" {
		parts = append(parts, "## Document Context:")
		parts = append(parts, context)
		parts = append(parts, "")
	}

	parts = append(parts, "## Question:")
	parts = append(parts, question)
	parts = append(parts, "")
	parts = append(parts, "Answer using the excerpts above. If they do not contain the answer, say so.")

	return strings.Join(parts, "\n")
}
