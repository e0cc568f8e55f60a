package service

import (
	"log/slog"
	"time"

	"ragchat/internal/chunker"
	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/llm"
	"ragchat/internal/loader"
	"ragchat/internal/sink"
)

// FromConfig builds a Bot wired to the adapters named in cfg.
func FromConfig(cfg *config.AppConfig, lg *slog.Logger) (*Bot, error) {
	mode, err := domain.ParseMemoryMode(cfg.Memory.Mode)
	if err != nil {
		return nil, err
	}
	settings := Settings{
		Generation:     cfg.Generation,
		Templates:      cfg.Templates(),
		MemoryMode:     mode,
		EmbeddingModel: cfg.Embedder.Model,
		IndexDir:       cfg.Index.Dir,
		DescriptorDir:  cfg.Index.DescriptorDir,
		TopK:           cfg.Index.TopK,
		ContextBudget:  cfg.Index.ContextBudget,
		SinkTimeout:    time.Duration(cfg.Sink.TimeoutSecs) * time.Second,
	}
	return New(settings,
		WithLogger(lg),
		WithLLMFactory(llm.NewFactory(cfg.LLM)),
		WithEmbeddingFactory(embedding.NewFactory(cfg.Embedder)),
		WithLoader(loader.New(loader.WithLogger(lg))),
		WithSplitter(chunker.New(
			chunker.WithChunkSize(cfg.Chunker.ChunkSize),
			chunker.WithOverlap(cfg.Chunker.ChunkOverlap),
		)),
		WithSink(sink.New(cfg.Sink)),
	)
}
