package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/logger"
	"ragchat/internal/vectorstore/sqlite"
)

// Save writes the index to dir: entries to index.db and the model name to
// embedding_info.json. dir is created if absent.
func Save(ctx context.Context, ix *Index, dir string) error {
	if ix == nil || ix.Len() == 0 {
		return fmt.Errorf("save %s: %w", dir, domain.ErrIndexEmpty)
	}
	store, err := sqlite.Open(dir)
	if err != nil {
		return fmt.Errorf("save %s: %w", dir, err)
	}
	defer store.Close()

	snap := sqlite.Snapshot{
		ModelName: ix.ModelName(),
		Dimension: ix.dimension,
		Entries:   make([]sqlite.Entry, ix.Len()),
	}
	for i := range ix.chunks {
		snap.Entries[i] = sqlite.Entry{ID: int64(i), Chunk: ix.chunks[i], Vector: ix.vectors[i]}
	}
	if err := store.Write(ctx, snap); err != nil {
		return fmt.Errorf("save %s: %w", dir, err)
	}
	md := domain.IndexMetadata{ModelName: ix.ModelName(), SavedPath: dir}
	if err := embedding.SaveDescriptor(dir, md); err != nil {
		return fmt.Errorf("save %s: %w", dir, err)
	}
	return nil
}

// Load reads an index saved by Save. The embedding model is chosen by
// priority: override, then embedding_info.json in dir, then
// embedding.DefaultModel. A model whose dimension differs from the stored
// vectors is rejected with domain.ErrDimensionMismatch.
func Load(ctx context.Context, dir, override string, factory embedding.Factory, lg *slog.Logger) (*Index, error) {
	lg = logger.Or(lg)
	if !sqlite.Exists(dir) {
		return nil, fmt.Errorf("load %s: %w", dir, os.ErrNotExist)
	}
	model, err := resolveModel(dir, override, lg)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	defer store.Close()
	snap, err := store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	if len(snap.Entries) == 0 {
		return nil, fmt.Errorf("load %s: %w", dir, domain.ErrIndexEmpty)
	}
	if snap.ModelName != "" && snap.ModelName != model {
		lg.Warn("loading index with a different embedding model than it was built with",
			"path", dir, "built_with", snap.ModelName, "using", model)
	}

	emb, err := factory(model)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	dim, err := probeDimension(ctx, emb)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	stored := len(snap.Entries[0].Vector)
	if dim != stored {
		return nil, fmt.Errorf("load %s: %w: model %s produces %d values, index has %d",
			dir, domain.ErrDimensionMismatch, model, dim, stored)
	}

	chunks := make([]domain.Chunk, len(snap.Entries))
	vecs := make([][]float32, len(snap.Entries))
	for i, e := range snap.Entries {
		chunks[i] = e.Chunk
		vecs[i] = e.Vector
	}
	ix, err := newIndex(emb, chunks, vecs)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	lg.Info("loaded vector index", "path", dir, "entries", ix.Len(), "model", model)
	return ix, nil
}

func resolveModel(dir, override string, lg *slog.Logger) (string, error) {
	if override != "" {
		return override, nil
	}
	md, err := embedding.ReadDescriptor(dir)
	switch {
	case err == nil:
		return md.ModelName, nil
	case errors.Is(err, os.ErrNotExist):
		lg.Warn("index has no embedding descriptor, substituting default model",
			"path", dir, "model", embedding.DefaultModel)
		return embedding.DefaultModel, nil
	default:
		return "", fmt.Errorf("load %s: %w", dir, err)
	}
}

// probeDimension returns the embedder's dimension, embedding a probe text
// when the embedder only learns it from a response.
func probeDimension(ctx context.Context, emb domain.Embedder) (int, error) {
	if d := emb.Dimension(); d > 0 {
		return d, nil
	}
	vecs, err := emb.Embed(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, err
	}
	if len(vecs) != 1 {
		return 0, fmt.Errorf("dimension probe returned %d vectors", len(vecs))
	}
	return len(vecs[0]), nil
}
