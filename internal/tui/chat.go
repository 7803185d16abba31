package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/paperchat/cli/internal/rag"
)

// ChatSession is the TUI-facing subset of the conversation session.
type ChatSession interface {
	Ask(ctx context.Context, question string, opts rag.Options) (*rag.Answer, error)
	AskStream(ctx context.Context, question string, opts rag.Options, onFragment func(string)) (*rag.Answer, error)
	Reset()
}

type chatMessage struct {
	role    string
	content string
	sources []rag.Source
}

type fragmentMsg string

type answerMsg struct {
	answer *rag.Answer
	err    error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	session   ChatSession
	opts      rag.Options
	streaming bool

	input    textinput.Model
	viewport viewport.Model
	messages []chatMessage
	status   string
	busy     bool
	ready    bool

	fragments chan string
	done      chan answerMsg
	cancel    context.CancelFunc
}

// New creates a chat model.
func New(session ChatSession, opts rag.Options, streaming bool) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your documents"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		session:   session,
		opts:      opts,
		streaming: streaming,
		input:     ti,
		viewport:  vp,
		status:    "Ready. Enter sends, ctrl+r resets, ctrl+c quits.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, qh := inputBoxStyle.GetFrameSize()
		_, th := transcriptStyle.GetFrameSize()
		vh := msg.Height - qh - th - 3
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width-transcriptStyle.GetHorizontalFrameSize())
		m.viewport.Height = vh
		m.viewport.SetContent(m.renderTranscript())
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case tea.KeyCtrlR:
			if !m.busy {
				m.session.Reset()
				m.messages = nil
				m.status = "Conversation cleared."
				m.viewport.SetContent(m.renderTranscript())
			}
			return m, nil
		case tea.KeyEnter:
			question := strings.TrimSpace(m.input.Value())
			if question == "" || m.busy {
				return m, nil
			}
			m.input.SetValue("")
			m.busy = true
			m.status = "Thinking..."
			m.messages = append(m.messages,
				chatMessage{role: "user", content: question},
				chatMessage{role: "assistant"},
			)
			m.viewport.SetContent(m.renderTranscript())
			m.viewport.GotoBottom()
			return m, m.startAsk(question)
		}

	case fragmentMsg:
		last := len(m.messages) - 1
		m.messages[last].content += string(msg)
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, m.awaitAnswer()

	case answerMsg:
		m.busy = false
		last := len(m.messages) - 1
		if msg.err != nil {
			m.messages[last].content = "Error: " + msg.err.Error()
			m.status = "Failed. Try again."
		} else {
			m.messages[last].content = msg.answer.Text
			m.messages[last].sources = msg.answer.Sources
			if msg.answer.NoEvidence {
				m.status = "No relevant evidence found."
			} else {
				m.status = fmt.Sprintf("Answered from %d source(s).", len(msg.answer.Sources))
			}
		}
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// startAsk runs the question in the background. Fragments arrive over a
// channel so the assistant turn renders incrementally; the closed
// channel hands control to the final answer. Fragment sends race against
// quit, so each one also watches the cancel signal; otherwise a quit
// mid-stream would leave the goroutine blocked forever.
func (m *Model) startAsk(question string) tea.Cmd {
	m.fragments = make(chan string)
	m.done = make(chan answerMsg, 1)
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	fragments, done := m.fragments, m.done
	session, opts, streaming := m.session, m.opts, m.streaming
	go func() {
		var answer *rag.Answer
		var err error
		if streaming {
			answer, err = session.AskStream(ctx, question, opts, func(f string) {
				select {
				case fragments <- f:
				case <-ctx.Done():
				}
			})
		} else {
			answer, err = session.Ask(ctx, question, opts)
		}
		close(fragments)
		done <- answerMsg{answer: answer, err: err}
	}()

	return m.awaitAnswer()
}

func (m Model) awaitAnswer() tea.Cmd {
	fragments, done := m.fragments, m.done
	return func() tea.Msg {
		if f, ok := <-fragments; ok {
			return fragmentMsg(f)
		}
		return <-done
	}
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("paperchat")
	transcript := transcriptStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.messages) == 0 {
		return "Ask a question about your ingested documents."
	}
	var parts []string
	for _, msg := range m.messages {
		label := userLabelStyle.Render("You")
		if msg.role == "assistant" {
			label = assistantLabelStyle.Render("Assistant")
		}
		parts = append(parts, label+"\n"+msg.content)

		if len(msg.sources) > 0 {
			var src []string
			for i, s := range msg.sources {
				src = append(src, fmt.Sprintf("  %d. %s (page %s, similarity %.0f%%)", i+1, s.File, s.Page, s.Similarity*100))
			}
			parts = append(parts, sourceStyle.Render("Sources:\n"+strings.Join(src, "\n")))
		}
	}
	return strings.Join(parts, "\n\n")
}

var (
	headerStyle         = lipgloss.NewStyle().Bold(true)
	transcriptStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userLabelStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	sourceStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
