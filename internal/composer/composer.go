// Package composer turns a user input into an answer, grounded in retrieved
// chunks when an index is bound, and records every exchange.
package composer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"ragchat/internal/domain"
	"ragchat/internal/logger"
	"ragchat/internal/memory"
	"ragchat/internal/sink"
	"ragchat/internal/textutil"
)

// Defaults for Config zero values.
const (
	DefaultTopK          = 4
	DefaultContextBudget = 6000
	PreviewChars         = 500
	DefaultSinkTimeout   = 10 * time.Second
)

// ErrorPrefix starts the reply text when generation failed.
const ErrorPrefix = "An error occurred: "

// Mode says which answer path the composer takes.
type Mode int

const (
	Ungrounded Mode = iota
	Grounded
)

func (m Mode) String() string {
	if m == Grounded {
		return "grounded"
	}
	return "ungrounded"
}

// Retriever is the part of vectorstore.Retriever the composer uses.
type Retriever interface {
	Retrieve(ctx context.Context, q string, k int) ([]domain.SearchResult, error)
}

// Composer is immutable once built; configuration changes build a new one.
type Composer struct {
	llm           domain.LLM
	memory        *memory.Manager
	retriever     Retriever
	sink          domain.Sink
	templates     Templates
	topK          int
	contextBudget int
	sinkTimeout   time.Duration
	sessionID     string
	logger        *slog.Logger
}

// Option configures a Composer.
type Option func(*Composer)

// WithRetriever binds a retriever, selecting the grounded path.
func WithRetriever(r Retriever) Option {
	return func(c *Composer) { c.retriever = r }
}

// WithSink sets the analytics sink.
func WithSink(s domain.Sink) Option {
	return func(c *Composer) {
		if s != nil {
			c.sink = s
		}
	}
}

// WithTemplates overrides the prompts. Empty fields keep the defaults.
func WithTemplates(t Templates) Option {
	return func(c *Composer) {
		if t.System != "" {
			c.templates.System = t.System
		}
		if t.Conversation != "" {
			c.templates.Conversation = t.Conversation
		}
		if t.Grounded != "" {
			c.templates.Grounded = t.Grounded
		}
	}
}

// WithTopK sets how many chunks are retrieved per question.
func WithTopK(k int) Option {
	return func(c *Composer) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithContextBudget caps the retrieved context, in characters.
func WithContextBudget(n int) Option {
	return func(c *Composer) {
		if n > 0 {
			c.contextBudget = n
		}
	}
}

// WithSinkTimeout bounds each sink delivery.
func WithSinkTimeout(d time.Duration) Option {
	return func(c *Composer) {
		if d > 0 {
			c.sinkTimeout = d
		}
	}
}

// WithSessionID tags sink records with a conversation id.
func WithSessionID(id string) Option {
	return func(c *Composer) { c.sessionID = id }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Composer) { c.logger = logger.Or(l) }
}

// New builds a Composer over llm and mem.
func New(llm domain.LLM, mem *memory.Manager, opts ...Option) *Composer {
	c := &Composer{
		llm:           llm,
		memory:        mem,
		sink:          sink.Nop{},
		templates:     DefaultTemplates(),
		topK:          DefaultTopK,
		contextBudget: DefaultContextBudget,
		sinkTimeout:   DefaultSinkTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mode reports the answer path.
func (c *Composer) Mode() Mode {
	if c.retriever != nil {
		return Grounded
	}
	return Ungrounded
}

// Templates returns the prompts in use.
func (c *Composer) Templates() Templates { return c.templates }

// Answer always returns a textual result. Failures become an error reply;
// the exchange is appended to memory and forwarded to the sink either way.
func (c *Composer) Answer(ctx context.Context, input string) domain.AnswerResult {
	history := c.memory.Snapshot().Render()

	var res domain.AnswerResult
	if c.Mode() == Grounded {
		res = c.grounded(ctx, input, history)
	} else {
		res = c.ungrounded(ctx, input, history)
	}
	if res.Err != nil {
		c.logger.Error("answer generation failed",
			"mode", c.Mode().String(),
			"error", res.Err,
			"stack", string(debug.Stack()))
		res.Text = ErrorPrefix + res.Err.Error()
	}

	now := time.Now()
	c.memory.Append(ctx, domain.Turn{Role: domain.RoleUser, Text: input, Timestamp: now})
	c.memory.Append(ctx, domain.Turn{Role: domain.RoleAssistant, Text: res.Text, Timestamp: now})

	c.forward(ctx, input, res, now)
	return res
}

func (c *Composer) ungrounded(ctx context.Context, input, history string) domain.AnswerResult {
	prompt := render(c.templates.Conversation, map[string]string{
		PlaceholderHistory: history,
		PlaceholderInput:   input,
	})
	text, err := c.complete(ctx, prompt)
	return domain.AnswerResult{Text: text, Grounded: false, Err: err}
}

func (c *Composer) grounded(ctx context.Context, input, history string) domain.AnswerResult {
	res := domain.AnswerResult{Grounded: true}
	hits, err := c.retriever.Retrieve(ctx, input, c.topK)
	if err != nil {
		res.Err = fmt.Errorf("retrieval: %w", err)
		return res
	}

	texts := make([]string, len(hits))
	prov := &domain.Provenance{Sources: make([]domain.SourceMetadata, len(hits))}
	for i, h := range hits {
		texts[i] = h.Chunk.Text
		prov.Sources[i] = h.Chunk.Source
	}
	joined := strings.Join(texts, "\n\n")
	prov.ContextPreview = textutil.Preview(joined, PreviewChars)
	res.Provenance = prov

	prompt := render(c.templates.Grounded, map[string]string{
		PlaceholderContext:  textutil.Head(joined, c.contextBudget),
		PlaceholderHistory:  history,
		PlaceholderQuestion: input,
		PlaceholderInput:    input,
	})
	res.Text, res.Err = c.complete(ctx, prompt)
	return res
}

func (c *Composer) complete(ctx context.Context, prompt string) (string, error) {
	if c.llm == nil {
		return "", domain.ErrLLMUnavailable
	}
	msgs := []domain.Message{{Role: domain.RoleUser, Content: prompt}}
	if c.templates.System != "" {
		msgs = append([]domain.Message{{Role: domain.RoleSystem, Content: c.templates.System}}, msgs...)
	}
	return c.llm.Complete(ctx, msgs)
}

// forward delivers the exchange to the sink within its own timeout. The
// result is only logged.
func (c *Composer) forward(ctx context.Context, input string, res domain.AnswerResult, at time.Time) {
	meta := map[string]any{"rag_enabled": res.Grounded}
	if c.sessionID != "" {
		meta["session_id"] = c.sessionID
	}
	if res.Provenance != nil {
		meta["document_sources"] = sourcePaths(res.Provenance.Sources)
		meta["context_used"] = res.Provenance.ContextPreview
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.sinkTimeout)
	defer cancel()
	err := c.sink.Record(sctx, domain.ExchangeRecord{
		UserInput:  input,
		AIResponse: res.Text,
		Timestamp:  at,
		Metadata:   meta,
	})
	if err != nil {
		c.logger.Warn("analytics sink failed", "error", err)
	}
}

func sourcePaths(sources []domain.SourceMetadata) []string {
	out := make([]string, 0, len(sources))
	seen := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		p := s.Path
		if s.Page > 0 {
			p = fmt.Sprintf("%s#page=%d", s.Path, s.Page)
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
