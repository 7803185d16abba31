package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperchat/cli/internal/db"
	"github.com/paperchat/cli/internal/llm"
)

type fakeRetriever struct {
	passages []*db.Passage
	err      error
	calls    int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, _ Options) ([]*db.Passage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.passages, nil
}

type fakeGenerator struct {
	reply     string
	fragments []string
	err       error
	messages  []llm.Message
	calls     int
}

func (f *fakeGenerator) Complete(_ context.Context, messages []llm.Message) (string, error) {
	f.calls++
	f.messages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeGenerator) CompleteStream(_ context.Context, messages []llm.Message, onFragment func(string)) error {
	f.calls++
	f.messages = messages
	if f.err != nil {
		return f.err
	}
	for _, frag := range f.fragments {
		onFragment(frag)
	}
	return nil
}

func testSession(retriever *fakeRetriever, generator *fakeGenerator) *Session {
	return NewSession(retriever, generator, NewPromptBuilder(4000), "You answer from the documents.", 3000, nil)
}

func TestAskReturnsAnswerWithSources(t *testing.T) {
	retriever := &fakeRetriever{passages: []*db.Passage{
		passage("a", 0.9),
		passage("b", 0.6),
	}}
	generator := &fakeGenerator{reply: "The answer."}
	s := testSession(retriever, generator)

	answer, err := s.Ask(context.Background(), "what?", defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "The answer.", answer.Text)
	assert.False(t, answer.NoEvidence)
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, "paper.pdf", answer.Sources[0].File)
	assert.Equal(t, "1", answer.Sources[0].Page)
	assert.Equal(t, 0.9, answer.Sources[0].Similarity)
	assert.NotEmpty(t, answer.Sources[0].Excerpt)
}

func TestAskThresholdRecheckDropsLowScores(t *testing.T) {
	// The retriever returned a passage below the threshold; the session
	// re-checks and refuses to treat it as evidence.
	retriever := &fakeRetriever{passages: []*db.Passage{passage("a", 0.2)}}
	generator := &fakeGenerator{reply: "should never generate"}
	s := testSession(retriever, generator)

	answer, err := s.Ask(context.Background(), "what?", defaultOptions())
	require.NoError(t, err)

	assert.True(t, answer.NoEvidence)
	assert.Equal(t, NoEvidenceMessage, answer.Text)
	assert.Empty(t, answer.Sources)
	assert.Zero(t, generator.calls)
}

func TestAskNoEvidenceError(t *testing.T) {
	for _, retrievalErr := range []error{ErrNoEvidence, ErrStoreEmpty} {
		generator := &fakeGenerator{reply: "unused"}
		s := testSession(&fakeRetriever{err: retrievalErr}, generator)

		answer, err := s.Ask(context.Background(), "what?", defaultOptions())
		require.NoError(t, err)
		assert.True(t, answer.NoEvidence)
		assert.Equal(t, NoEvidenceMessage, answer.Text)
		assert.Zero(t, generator.calls)
	}
}

func TestAskRetrieverFailurePropagates(t *testing.T) {
	s := testSession(&fakeRetriever{err: errors.New("connection refused")}, &fakeGenerator{})

	_, err := s.Ask(context.Background(), "what?", defaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAskStreamFragmentsConcatenate(t *testing.T) {
	retriever := &fakeRetriever{passages: []*db.Passage{passage("a", 0.9)}}
	generator := &fakeGenerator{fragments: []string{"The ", "answer ", "arrives ", "in parts."}}
	s := testSession(retriever, generator)

	var got []string
	answer, err := s.AskStream(context.Background(), "what?", defaultOptions(), func(frag string) {
		got = append(got, frag)
	})
	require.NoError(t, err)

	assert.Equal(t, generator.fragments, got, "fragments arrive in order")
	assert.Equal(t, strings.Join(got, ""), answer.Text)
}

func TestAskStreamNoEvidenceDeliveredOnce(t *testing.T) {
	s := testSession(&fakeRetriever{err: ErrStoreEmpty}, &fakeGenerator{})

	var got []string
	answer, err := s.AskStream(context.Background(), "what?", defaultOptions(), func(frag string) {
		got = append(got, frag)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{NoEvidenceMessage}, got)
	assert.True(t, answer.NoEvidence)
}

func TestAskBuildsMessagesWithSystemAndHistory(t *testing.T) {
	retriever := &fakeRetriever{passages: []*db.Passage{passage("a", 0.9)}}
	generator := &fakeGenerator{reply: "first"}
	s := testSession(retriever, generator)

	_, err := s.Ask(context.Background(), "first question", defaultOptions())
	require.NoError(t, err)

	generator.reply = "second"
	_, err = s.Ask(context.Background(), "second question", defaultOptions())
	require.NoError(t, err)

	// system + 2 history turns + current user message
	require.Len(t, generator.messages, 4)
	assert.Equal(t, llm.RoleSystem, generator.messages[0].Role)
	assert.Equal(t, "first question", generator.messages[1].Content)
	assert.Equal(t, "first", generator.messages[2].Content)
	assert.Equal(t, llm.RoleUser, generator.messages[3].Role)
	assert.Contains(t, generator.messages[3].Content, "second question")
}

func TestHistoryEvictionKeepsLatestTurn(t *testing.T) {
	retriever := &fakeRetriever{passages: []*db.Passage{passage("a", 0.9)}}
	generator := &fakeGenerator{reply: strings.Repeat("long answer ", 100)}
	s := NewSession(retriever, generator, NewPromptBuilder(4000), "", 100, nil)

	for i := 0; i < 5; i++ {
		_, err := s.Ask(context.Background(), "question", defaultOptions())
		require.NoError(t, err)
	}

	history := s.History()
	require.Len(t, history, 2, "budget keeps only the most recent turn")
	assert.Equal(t, llm.RoleUser, history[0].Role)
	assert.Equal(t, llm.RoleAssistant, history[1].Role)
}

func TestHistoryKeptWithinBudget(t *testing.T) {
	retriever := &fakeRetriever{passages: []*db.Passage{passage("a", 0.9)}}
	generator := &fakeGenerator{reply: "short"}
	s := testSession(retriever, generator)

	for i := 0; i < 3; i++ {
		_, err := s.Ask(context.Background(), "question", defaultOptions())
		require.NoError(t, err)
	}

	assert.Len(t, s.History(), 6, "small turns all fit in the budget")
}

func TestResetClearsHistory(t *testing.T) {
	retriever := &fakeRetriever{passages: []*db.Passage{passage("a", 0.9)}}
	s := testSession(retriever, &fakeGenerator{reply: "answer"})

	_, err := s.Ask(context.Background(), "question", defaultOptions())
	require.NoError(t, err)
	require.NotEmpty(t, s.History())

	s.Reset()
	assert.Empty(t, s.History())
}

func TestAskDirectSkipsRetrieval(t *testing.T) {
	retriever := &fakeRetriever{}
	generator := &fakeGenerator{reply: "hello"}
	s := testSession(retriever, generator)

	answer, err := s.AskDirect(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, "hello", answer.Text)
	assert.Empty(t, answer.Sources)
	assert.Zero(t, retriever.calls)
	assert.Len(t, s.History(), 2, "direct turns still enter history")
}

func TestSourceExcerptKeepsValidUTF8(t *testing.T) {
	long := &db.Passage{
		ID:           "a",
		Text:         strings.Repeat("ドキュメントの抜粋", 40),
		PageLabel:    "1",
		DocumentName: "paper.pdf",
		Similarity:   0.9,
	}
	s := testSession(&fakeRetriever{passages: []*db.Passage{long}}, &fakeGenerator{reply: "answer"})

	answer, err := s.Ask(context.Background(), "what?", defaultOptions())
	require.NoError(t, err)

	require.Len(t, answer.Sources, 1)
	assert.True(t, utf8.ValidString(answer.Sources[0].Excerpt))
	assert.True(t, strings.HasSuffix(answer.Sources[0].Excerpt, "..."))
}

func TestNoEvidenceTurnsLeaveHistoryUntouched(t *testing.T) {
	s := testSession(&fakeRetriever{err: ErrNoEvidence}, &fakeGenerator{})

	_, err := s.Ask(context.Background(), "question", defaultOptions())
	require.NoError(t, err)
	assert.Empty(t, s.History())
}
