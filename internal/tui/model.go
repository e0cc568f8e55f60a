// Package tui is the terminal chat front end.
package tui

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/domain"
)

// Model is the Bubble Tea model for the chat REPL.
type Model struct {
	bot      BotPort
	ctx      context.Context
	input    textinput.Model
	viewport viewport.Model
	entries  []entry
	summary  string
	status   string
	busy     bool
	ready    bool
}

type entryKind int

const (
	userEntry entryKind = iota
	botEntry
	systemEntry
	errorEntry
)

type entry struct {
	kind     entryKind
	text     string
	query    string
	evidence *domain.Provenance
}

// replyMsg carries the outcome of a blocking bot call back into Update.
type replyMsg struct {
	entry entry
	quit  bool
}

// New creates the chat model. summary is shown under the title.
func New(ctx context.Context, bot BotPort, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask something, or /help"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		bot:      bot,
		ctx:      ctx,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   "Ready. Enter sends, Ctrl+C quits.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and reply events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		// header, summary, status and one spacer
		reserved := 4 + ih
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil
	case replyMsg:
		m.busy = false
		m.entries = append(m.entries, msg.entry)
		m.status = "Ready."
		if msg.entry.kind == errorEntry {
			m.status = "Command failed."
		}
		m.refresh()
		if msg.quit {
			return m, tea.Quit
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			m.busy = true
			m.status = "Thinking..."
			if !IsCommand(line) {
				m.entries = append(m.entries, entry{kind: userEntry, text: line})
			}
			m.refresh()
			return m, m.dispatch(line)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// dispatch runs line off the UI goroutine.
func (m Model) dispatch(line string) tea.Cmd {
	bot, ctx := m.bot, m.ctx
	return func() tea.Msg {
		if IsCommand(line) {
			out, err := Execute(ctx, bot, line)
			switch {
			case errors.Is(err, ErrQuit):
				return replyMsg{entry: entry{kind: systemEntry, text: "Bye."}, quit: true}
			case err != nil:
				text := "Error: " + err.Error()
				if out != "" {
					text = out + "\n" + text
				}
				return replyMsg{entry: entry{kind: errorEntry, text: text}}
			}
			return replyMsg{entry: entry{kind: systemEntry, text: out}}
		}
		res := bot.Ask(ctx, line)
		return replyMsg{entry: entry{kind: botEntry, text: res.Text, query: line, evidence: res.Provenance}}
	}
}

// View renders the header, transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("RAG Chat")
	summary := dimStyle.Render(m.summary)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + summary + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(renderTranscript(m.entries, m.viewport.Width))
	m.viewport.GotoBottom()
}

func renderTranscript(entries []entry, width int) string {
	if len(entries) == 0 {
		return dimStyle.Render("No messages yet. Type /help for commands.")
	}
	wrap := lipgloss.NewStyle().Width(max(10, width-6))
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		switch e.kind {
		case userEntry:
			parts = append(parts, userStyle.Render("You: ")+wrap.Render(e.text))
		case botEntry:
			parts = append(parts, botStyle.Render("Bot: ")+wrap.Render(e.text)+renderEvidence(e))
		case errorEntry:
			parts = append(parts, errorStyle.Render(wrap.Render(e.text)))
		default:
			parts = append(parts, dimStyle.Render(wrap.Render(e.text)))
		}
	}
	return strings.Join(parts, "\n\n")
}

func renderEvidence(e entry) string {
	if e.evidence == nil || len(e.evidence.Sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n")
	for _, s := range e.evidence.Sources {
		loc := s.Path
		if s.Page > 0 {
			loc = fmt.Sprintf("%s#page=%d", s.Path, s.Page)
		}
		b.WriteString(dimStyle.Render("  source: " + loc))
		b.WriteString("\n")
	}
	if e.evidence.ContextPreview != "" {
		b.WriteString("  ")
		b.WriteString(highlightBestSentence(e.evidence.ContextPreview, e.query))
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	unicodeWordRe      = regexp.MustCompile(`\p{Han}|\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe         = regexp.MustCompile(`(?m)(?U)([^.!?。！？]+[.!?。！？])`)
)

// highlightBestSentence marks the sentence of text sharing the most words
// with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := splitSentences(text)
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := bestSentence(sentences, qTokens)
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func bestSentence(sentences []string, qTokens map[string]struct{}) int {
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return bestIdx
}

// splitSentences cuts text after each terminator. Text after the last
// terminator is kept as a final sentence.
func splitSentences(text string) []string {
	var out []string
	end := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		out = append(out, text[loc[0]:loc[1]])
		end = loc[1]
	}
	if tail := strings.TrimSpace(text[end:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
