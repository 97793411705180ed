package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragpipe/internal/domain"
)

// QueryPort is the TUI-facing subset of the pipeline.
type QueryPort interface {
	QueryStream(ctx context.Context, question string) (domain.TokenStream, []string, error)
}

type streamStartedMsg struct {
	stream  domain.TokenStream
	sources []string
}

type tokenMsg struct{ token string }

type streamDoneMsg struct{}

type streamErrMsg struct{ err error }

// Model is the Bubble Tea model for the interactive Q&A session. Tokens
// are appended to the answer as the model produces them.
type Model struct {
	service  QueryPort
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	stream   domain.TokenStream
	question string
	answer   string
	sources  []string
	status   string
	busy     bool
	ready    bool
}

// New creates a new TUI model instance.
func New(service QueryPort) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	vp := viewport.New(0, 0)
	return Model{service: service, input: ti, viewport: vp, spinner: sp, status: "Ready. Type a question."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m *Model) closeStream() {
	if m.stream != nil {
		m.stream.Close()
		m.stream = nil
	}
}

// Update handles key, window and stream events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ah := answerBoxStyle.GetFrameSize()
		_, qh := questionBoxStyle.GetFrameSize()
		totalHeaderLines := 1
		totalFooterLines := 1
		reserved := totalHeaderLines + totalFooterLines + qh + 1
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-ah)
		m.viewport.SetContent(m.renderAnswer())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.String() == "esc" {
			m.closeStream()
			return m, tea.Quit
		}
		if msg.String() == "enter" && !m.busy {
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				m.busy = true
				m.question = q
				m.answer = ""
				m.sources = nil
				m.status = "Thinking..."
				m.viewport.SetContent(m.renderAnswer())
				return m, tea.Batch(m.spinner.Tick, openStream(m.service, q))
			}
		}
	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	case streamStartedMsg:
		m.stream = msg.stream
		m.sources = msg.sources
		return m, readToken(m.stream)
	case tokenMsg:
		m.answer += msg.token
		m.viewport.SetContent(m.renderAnswer())
		m.viewport.GotoBottom()
		return m, readToken(m.stream)
	case streamDoneMsg:
		m.busy = false
		m.closeStream()
		m.status = fmt.Sprintf("Answered %q", m.question)
		m.input.Reset()
		m.viewport.SetContent(m.renderAnswer())
		return m, nil
	case streamErrMsg:
		m.busy = false
		m.closeStream()
		m.status = "Error: " + msg.err.Error()
		m.viewport.SetContent(m.renderAnswer())
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and current answer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("ragpipe chat")
	input := questionBoxStyle.Render(m.input.View())
	status := m.status
	if m.busy {
		status = m.spinner.View() + status
	}
	statusLine := statusStyle.Render(status)
	body := answerBoxStyle.Render(m.viewport.View())
	return header + "\n" + body + "\n" + input + "\n" + statusLine
}

func (m Model) renderAnswer() string {
	if m.question == "" {
		return "No answer yet."
	}
	title := questionStyle.Render("Q: " + m.question)
	body := title + "\n\n" + m.answer
	if !m.busy && len(m.sources) > 0 {
		body += "\n\n" + sourceStyle.Render("Sources: "+strings.Join(m.sources, ", "))
	}
	return body
}

func openStream(service QueryPort, question string) tea.Cmd {
	return func() tea.Msg {
		stream, sources, err := service.QueryStream(context.Background(), question)
		if err != nil {
			return streamErrMsg{err: err}
		}
		return streamStartedMsg{stream: stream, sources: sources}
	}
}

func readToken(stream domain.TokenStream) tea.Cmd {
	return func() tea.Msg {
		token, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return streamDoneMsg{}
		}
		if err != nil {
			return streamErrMsg{err: err}
		}
		return tokenMsg{token: token}
	}
}

var (
	answerBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle    = lipgloss.NewStyle().Bold(true)
	sourceStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
