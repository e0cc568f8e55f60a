// Package memory keeps the conversation history under one of two
// retention policies: a verbatim buffer or a running summary plus the
// latest raw turn.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"ragchat/internal/domain"
	"ragchat/internal/logger"
)

// Snapshot is a copy of the history ready for prompt injection.
type Snapshot struct {
	Mode    domain.MemoryMode
	Summary string
	Turns   []domain.Turn
}

// Empty reports whether there is no history at all.
func (s Snapshot) Empty() bool { return s.Summary == "" && len(s.Turns) == 0 }

// Render formats the history as plain text.
func (s Snapshot) Render() string {
	var b strings.Builder
	if s.Summary != "" {
		b.WriteString("Summary of the earlier conversation:\n")
		b.WriteString(s.Summary)
		if len(s.Turns) > 0 {
			b.WriteString("\n\n")
		}
	}
	b.WriteString(renderTurns(s.Turns))
	return b.String()
}

// Manager owns the conversation state. It is safe for concurrent use.
type Manager struct {
	mu         sync.Mutex
	mode       domain.MemoryMode
	turns      []domain.Turn
	summary    string
	summarizer domain.Summarizer
	fallback   domain.Summarizer
	logger     *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithSummarizer sets the summarizer used in summary mode.
func WithSummarizer(s domain.Summarizer) Option {
	return func(m *Manager) { m.summarizer = s }
}

// WithFallback sets the summarizer used when the primary one fails.
func WithFallback(s domain.Summarizer) Option {
	return func(m *Manager) {
		if s != nil {
			m.fallback = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger.Or(l) }
}

// WithMode sets the initial mode. Invalid modes are ignored.
func WithMode(mode domain.MemoryMode) Option {
	return func(m *Manager) {
		if mode == domain.MemoryBuffer || mode == domain.MemorySummary {
			m.mode = mode
		}
	}
}

// New returns an empty Manager in buffer mode unless WithMode says otherwise.
func New(opts ...Option) *Manager {
	m := &Manager{
		mode:     domain.MemoryBuffer,
		fallback: NewExtractive(0),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetSummarizer replaces the summarizer, e.g. after the LLM was rebuilt.
func (m *Manager) SetSummarizer(s domain.Summarizer) {
	m.mu.Lock()
	m.summarizer = s
	m.mu.Unlock()
}

// Mode returns the active retention policy.
func (m *Manager) Mode() domain.MemoryMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Append records a turn. In summary mode the previous raw turn is folded
// into the summary and the new turn becomes the latest raw turn.
func (m *Manager) Append(ctx context.Context, turn domain.Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == domain.MemorySummary && len(m.turns) > 0 {
		m.summary = m.summarize(ctx, m.summary, m.turns)
		m.turns = m.turns[:0]
	}
	m.turns = append(m.turns, turn)
}

// Snapshot returns a copy of the current history.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Mode:    m.mode,
		Summary: m.summary,
		Turns:   append([]domain.Turn(nil), m.turns...),
	}
}

// Clear empties the history. The mode is unchanged.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
	m.summary = ""
}

// SetMode switches the retention policy. Going to summary mode collapses
// all buffered turns into one summary. Going back to buffer mode starts
// empty; the summary is discarded.
func (m *Manager) SetMode(ctx context.Context, mode domain.MemoryMode) error {
	if mode != domain.MemoryBuffer && mode != domain.MemorySummary {
		return fmt.Errorf("%w: memory mode %q", domain.ErrInvalidInput, mode)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if mode == m.mode {
		return nil
	}
	switch mode {
	case domain.MemorySummary:
		if len(m.turns) > 0 {
			m.summary = m.summarize(ctx, "", m.turns)
		}
		m.turns = nil
	case domain.MemoryBuffer:
		m.summary = ""
		m.turns = nil
	}
	m.logger.Info("memory mode changed", "from", m.mode, "to", mode)
	m.mode = mode
	return nil
}

// summarize runs the primary summarizer, then the fallback. Must be called
// with m.mu held.
func (m *Manager) summarize(ctx context.Context, summary string, turns []domain.Turn) string {
	if m.summarizer != nil {
		out, err := m.summarizer.Summarize(ctx, summary, turns)
		if err == nil {
			return out
		}
		m.logger.Warn("summarizer failed, using fallback", "error", err)
	}
	out, err := m.fallback.Summarize(ctx, summary, turns)
	if err != nil {
		m.logger.Warn("fallback summarizer failed, keeping raw text", "error", err)
		return strings.TrimSpace(summary + "\n" + renderTurns(turns))
	}
	return out
}

func renderTurns(turns []domain.Turn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = roleLabel(t.Role) + ": " + t.Text
	}
	return strings.Join(lines, "\n")
}

func roleLabel(r domain.Role) string {
	switch r {
	case domain.RoleUser:
		return "User"
	case domain.RoleAssistant:
		return "Assistant"
	}
	return "System"
}
