// Package service wires the pipeline into one chat bot and owns every
// mutable setting. All setting changes go through rebuild, which swaps the
// LLM client, summarizer and composer together or not at all.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"ragchat/internal/chunker"
	"ragchat/internal/composer"
	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/llm"
	"ragchat/internal/loader"
	"ragchat/internal/logger"
	"ragchat/internal/memory"
	"ragchat/internal/sink"
	"ragchat/internal/vectorstore"
)

// Settings are the bot's startup values.
type Settings struct {
	Generation     domain.GenerationConfig
	Templates      composer.Templates
	MemoryMode     domain.MemoryMode
	EmbeddingModel string
	IndexDir       string
	DescriptorDir  string
	TopK           int
	ContextBudget  int
	SinkTimeout    time.Duration
}

// state is everything a request needs. A state is never modified after it
// is published; changes publish a new one.
type state struct {
	gen       domain.GenerationConfig
	templates composer.Templates
	index     *vectorstore.Index
	llm       domain.LLM
	composer  *composer.Composer
}

// Bot is the single conversation controller.
type Bot struct {
	mu  sync.RWMutex
	cur *state

	settings   Settings
	llmFactory llm.Factory
	embFactory embedding.Factory
	loader     *loader.Loader
	splitter   *chunker.Splitter
	memory     *memory.Manager
	sink       domain.Sink
	sessionID  string
	logger     *slog.Logger
}

// Option configures a Bot.
type Option func(*Bot)

// WithLLMFactory sets how chat models are built.
func WithLLMFactory(f llm.Factory) Option { return func(b *Bot) { b.llmFactory = f } }

// WithEmbeddingFactory sets how embedders are built from a model name.
func WithEmbeddingFactory(f embedding.Factory) Option { return func(b *Bot) { b.embFactory = f } }

// WithLoader sets the document loader.
func WithLoader(l *loader.Loader) Option { return func(b *Bot) { b.loader = l } }

// WithSplitter sets the chunker.
func WithSplitter(s *chunker.Splitter) Option { return func(b *Bot) { b.splitter = s } }

// WithSink sets the analytics sink.
func WithSink(s domain.Sink) Option { return func(b *Bot) { b.sink = s } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(b *Bot) { b.logger = logger.Or(l) } }

// New builds a Bot. A chat model that cannot be built is replaced by one
// that answers every call with the construction error, so the bot still
// starts and can report the problem per request.
func New(s Settings, opts ...Option) (*Bot, error) {
	if err := s.Generation.Validate(); err != nil {
		return nil, err
	}
	if s.MemoryMode == "" {
		s.MemoryMode = domain.MemoryBuffer
	}
	if s.EmbeddingModel == "" {
		s.EmbeddingModel = embedding.DefaultModel
	}
	b := &Bot{
		settings:   s,
		embFactory: embedding.NewFactory(embedding.Config{}),
		sink:       sink.Nop{},
		sessionID:  uuid.NewString(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.llmFactory == nil {
		b.llmFactory = llm.NewFactory(llm.Config{})
	}
	if b.loader == nil {
		b.loader = loader.New(loader.WithLogger(b.logger))
	}
	if b.splitter == nil {
		b.splitter = chunker.New()
	}
	b.memory = memory.New(memory.WithMode(s.MemoryMode), memory.WithLogger(b.logger))

	tmpl := composer.DefaultTemplates()
	if s.Templates.System != "" {
		tmpl.System = s.Templates.System
	}
	if s.Templates.Conversation != "" {
		if err := composer.ValidateConversationTemplate(s.Templates.Conversation); err != nil {
			return nil, err
		}
		tmpl.Conversation = s.Templates.Conversation
	}
	if s.Templates.Grounded != "" {
		tmpl.Grounded = s.Templates.Grounded
	}

	model, err := b.llmFactory(s.Generation)
	if err != nil {
		b.logger.Warn("chat model unavailable", "error", err)
		model = llm.Unavailable{Cause: err}
	}
	b.install(&state{gen: s.Generation, templates: tmpl, llm: model})
	return b, nil
}

// install builds the composer for next and publishes it. Caller holds
// b.mu for writing, except during New.
func (b *Bot) install(next *state) {
	opts := []composer.Option{
		composer.WithTemplates(next.templates),
		composer.WithSink(b.sink),
		composer.WithTopK(b.settings.TopK),
		composer.WithContextBudget(b.settings.ContextBudget),
		composer.WithSinkTimeout(b.settings.SinkTimeout),
		composer.WithSessionID(b.sessionID),
		composer.WithLogger(b.logger),
	}
	if next.index != nil {
		opts = append(opts, composer.WithRetriever(next.index.Retriever()))
	}
	next.composer = composer.New(next.llm, b.memory, opts...)
	b.memory.SetSummarizer(memory.LLMSummarizer{LLM: next.llm})
	b.cur = next
}

// rebuild is the only way settings change. It copies the current state,
// applies mutate, rebuilds the chat model when generation parameters
// changed and publishes the result. On error nothing changes.
func (b *Bot) rebuild(mutate func(*state) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := *b.cur
	next.composer = nil
	if err := mutate(&next); err != nil {
		return err
	}
	if next.gen != b.cur.gen {
		model, err := b.llmFactory(next.gen)
		if err != nil {
			return fmt.Errorf("rebuilding chat model: %w", err)
		}
		next.llm = model
	}
	b.install(&next)
	return nil
}

func (b *Bot) snapshot() *state {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cur
}

// Ask answers one user input. It never fails; errors come back as the
// answer text.
func (b *Bot) Ask(ctx context.Context, input string) domain.AnswerResult {
	return b.snapshot().composer.Answer(ctx, input)
}

// Direct sends input to the chat model with no memory or retrieval.
func (b *Bot) Direct(ctx context.Context, input string) (string, error) {
	return llm.Direct(ctx, b.snapshot().llm, input)
}

// IngestReport summarizes one LoadDocuments call.
type IngestReport struct {
	Documents int
	Chunks    int
	Skipped   []domain.SkippedFile
	// Total is the number of entries in the bound index afterwards.
	Total   int
	SavedTo string
	// SaveErr is set when the index was built but could not be written.
	SaveErr error
}

// LoadDocuments loads, chunks and embeds paths, adds them to the bound
// index (or builds a new one), saves the index and descriptor, then binds
// the result. Per-file failures only appear in Skipped. Without a usable
// embedder nothing is indexed.
func (b *Bot) LoadDocuments(ctx context.Context, paths ...string) (IngestReport, error) {
	report := IngestReport{}
	loaded := b.loader.Load(ctx, paths...)
	report.Documents = len(loaded.Documents)
	report.Skipped = loaded.Skipped

	chunks := b.splitter.Split(loaded.Documents)
	report.Chunks = len(chunks)
	if len(chunks) == 0 {
		return report, fmt.Errorf("no chunks from %d documents: %w", report.Documents, domain.ErrIndexEmpty)
	}

	current := b.snapshot().index
	var (
		ix  *vectorstore.Index
		err error
	)
	if current != nil {
		ix, err = vectorstore.Extend(ctx, current, chunks)
	} else {
		emb := embedding.OrUnavailable(b.embFactory, b.settings.EmbeddingModel)
		ix, err = vectorstore.Build(ctx, emb, chunks)
	}
	if err != nil {
		report.Chunks = 0
		return report, err
	}
	report.Total = ix.Len()

	if err := vectorstore.Save(ctx, ix, b.settings.IndexDir); err != nil {
		b.logger.Warn("auto-save failed", "dir", b.settings.IndexDir, "error", err)
		report.SaveErr = err
	} else {
		report.SavedTo = b.settings.IndexDir
		if err := b.saveDescriptor(ix.ModelName(), b.descriptorDir()); err != nil {
			b.logger.Warn("writing embedding descriptor failed", "error", err)
		}
	}

	if err := b.rebuild(func(s *state) error { s.index = ix; return nil }); err != nil {
		return report, err
	}
	b.logger.Info("documents indexed", "documents", report.Documents, "chunks", report.Chunks,
		"total", report.Total, "skipped", len(report.Skipped))
	return report, nil
}

// SaveIndex writes the bound index to dir, or to the configured directory
// when dir is empty.
func (b *Bot) SaveIndex(ctx context.Context, dir string) (string, error) {
	ix := b.snapshot().index
	if ix == nil {
		return "", domain.ErrNoIndex
	}
	if dir == "" {
		dir = b.settings.IndexDir
	}
	if err := vectorstore.Save(ctx, ix, dir); err != nil {
		return "", err
	}
	return dir, nil
}

// ImportIndex loads a saved index and binds it. model overrides the
// recorded embedding model when non-empty.
func (b *Bot) ImportIndex(ctx context.Context, dir, model string) (int, error) {
	if dir == "" {
		dir = b.settings.IndexDir
	}
	ix, err := vectorstore.Load(ctx, dir, model, b.embFactory, b.logger)
	if err != nil {
		return 0, err
	}
	if err := b.rebuild(func(s *state) error { s.index = ix; return nil }); err != nil {
		return 0, err
	}
	return ix.Len(), nil
}

// ClearHistory empties conversation memory without changing its mode.
func (b *Bot) ClearHistory() { b.memory.Clear() }

// GenerationParams returns the parameters currently bound to the model.
func (b *Bot) GenerationParams() domain.GenerationConfig { return b.snapshot().gen }

// UpdateGenerationParams applies u and rebuilds the chat model. Invalid
// values or a failed rebuild leave every setting unchanged.
func (b *Bot) UpdateGenerationParams(u domain.GenerationUpdate) (domain.GenerationConfig, error) {
	var out domain.GenerationConfig
	err := b.rebuild(func(s *state) error {
		next, err := s.gen.With(u)
		if err != nil {
			return err
		}
		s.gen = next
		out = next
		return nil
	})
	if err != nil {
		return b.GenerationParams(), err
	}
	return out, nil
}

// SetMemoryMode switches the memory retention policy.
func (b *Bot) SetMemoryMode(ctx context.Context, mode domain.MemoryMode) error {
	return b.rebuild(func(*state) error { return b.memory.SetMode(ctx, mode) })
}

// MemoryMode returns the active retention policy.
func (b *Bot) MemoryMode() domain.MemoryMode { return b.memory.Mode() }

// History returns a copy of the conversation memory.
func (b *Bot) History() memory.Snapshot { return b.memory.Snapshot() }

// SetPromptTemplate replaces the conversation prompt. It must contain
// {input}; {history} is optional.
func (b *Bot) SetPromptTemplate(tmpl string) error {
	if err := composer.ValidateConversationTemplate(tmpl); err != nil {
		return err
	}
	return b.rebuild(func(s *state) error {
		s.templates.Conversation = tmpl
		return nil
	})
}

// SaveEmbeddingDescriptor writes embedding_info.json for the active
// embedding model into dir, or the descriptor directory when dir is empty.
func (b *Bot) SaveEmbeddingDescriptor(dir string) (string, error) {
	if dir == "" {
		dir = b.descriptorDir()
	}
	model := b.settings.EmbeddingModel
	if ix := b.snapshot().index; ix != nil {
		model = ix.ModelName()
	}
	if err := b.saveDescriptor(model, dir); err != nil {
		return "", err
	}
	return dir, nil
}

// SetDescriptorDir changes where descriptors are written by default.
func (b *Bot) SetDescriptorDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: descriptor directory is empty", domain.ErrInvalidInput)
	}
	b.mu.Lock()
	b.settings.DescriptorDir = dir
	b.mu.Unlock()
	return nil
}

func (b *Bot) descriptorDir() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings.DescriptorDir
}

func (b *Bot) saveDescriptor(model, dir string) error {
	if dir == "" {
		return errors.New("no descriptor directory configured")
	}
	return embedding.SaveDescriptor(dir, domain.IndexMetadata{ModelName: model, SavedPath: b.settings.IndexDir})
}

// Status describes the bound state.
type Status struct {
	Mode           string                  `json:"mode"`
	Chunks         int                     `json:"chunks"`
	EmbeddingModel string                  `json:"embedding_model"`
	LLMModel       string                  `json:"llm_model"`
	MemoryMode     domain.MemoryMode       `json:"memory_mode"`
	Generation     domain.GenerationConfig `json:"generation"`
	IndexDir       string                  `json:"index_dir"`
	SessionID      string                  `json:"session_id"`
}

// Status reports the current configuration.
func (b *Bot) Status() Status {
	s := b.snapshot()
	st := Status{
		Mode:           s.composer.Mode().String(),
		EmbeddingModel: b.settings.EmbeddingModel,
		LLMModel:       s.llm.ModelName(),
		MemoryMode:     b.memory.Mode(),
		Generation:     s.gen,
		IndexDir:       b.settings.IndexDir,
		SessionID:      b.sessionID,
	}
	if s.index != nil {
		st.Chunks = s.index.Len()
		st.EmbeddingModel = s.index.ModelName()
	}
	return st
}
