package vectorstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/logger"
)

func chunksOf(texts ...string) []domain.Chunk {
	out := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		out[i] = domain.Chunk{DocumentID: "doc", ChunkID: t, Text: t, Index: i, Source: domain.SourceMetadata{Path: "doc.txt"}}
	}
	return out
}

func newEmbedder(t *testing.T, model string) domain.Embedder {
	t.Helper()
	e, err := embedding.NewFactory(embedding.Config{})(model)
	require.NoError(t, err)
	return e
}

func TestBuild_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Build(ctx, newEmbedder(t, "hashing-16"), nil)
	assert.ErrorIs(t, err, domain.ErrIndexEmpty)

	_, err = Build(ctx, nil, chunksOf("x"))
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	_, err = Build(ctx, embedding.Unavailable{Model: "gone"}, chunksOf("x"))
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestRetrieve_ThreeChunkDocument(t *testing.T) {
	ctx := context.Background()
	ix, err := Build(ctx, newEmbedder(t, embedding.DefaultModel), chunksOf(
		"Volcanoes erupt molten lava and ash from the crust.",
		"Photosynthesis lets plants turn sunlight into chemical energy.",
		"Jazz musicians improvise over chord progressions.",
	))
	require.NoError(t, err)

	res, err := ix.Retriever().Retrieve(ctx, "how do plants use sunlight photosynthesis", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 1, res[0].Chunk.Index)
}

func TestQuery_FewerThanK(t *testing.T) {
	ctx := context.Background()
	ix, err := Build(ctx, newEmbedder(t, "hashing-64"), chunksOf("red apple", "green apple pie", "blue sky"))
	require.NoError(t, err)

	res, err := ix.Retriever().Retrieve(ctx, "apple", 10)
	require.NoError(t, err)
	require.Len(t, res, 3)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}

	res, err = ix.Retriever().Retrieve(ctx, "apple", 0)
	require.NoError(t, err)
	assert.Len(t, res, 3, "k defaults to 4")
}

func TestQuery_DimensionChecked(t *testing.T) {
	ix, err := Build(context.Background(), newEmbedder(t, "hashing-8"), chunksOf("a b c"))
	require.NoError(t, err)
	_, err = ix.Query(make([]float32, 4), 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "RAG")
	emb := newEmbedder(t, "hashing-128")
	ix, err := Build(ctx, emb, chunksOf("the cat sat on the mat", "dogs chase cats", "stock markets fell", "cats purr"))
	require.NoError(t, err)
	require.NoError(t, Save(ctx, ix, dir))

	info, err := embedding.ReadDescriptor(dir)
	require.NoError(t, err)
	assert.Equal(t, "hashing-128", info.ModelName)
	assert.Equal(t, dir, info.SavedPath)

	loaded, err := Load(ctx, dir, "", embedding.NewFactory(embedding.Config{}), logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "hashing-128", loaded.ModelName())

	q, err := emb.Embed(ctx, []string{"cats"})
	require.NoError(t, err)
	before, err := ix.Query(q[0], 3)
	require.NoError(t, err)
	after, err := loaded.Query(q[0], 3)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSave_Empty(t *testing.T) {
	err := Save(context.Background(), nil, t.TempDir())
	assert.ErrorIs(t, err, domain.ErrIndexEmpty)
}

func TestLoad_ModelResolution(t *testing.T) {
	ctx := context.Background()
	factory := embedding.NewFactory(embedding.Config{})
	dir := filepath.Join(t.TempDir(), "RAG")

	ix, err := Build(ctx, newEmbedder(t, embedding.DefaultModel), chunksOf("alpha", "beta"))
	require.NoError(t, err)
	require.NoError(t, Save(ctx, ix, dir))

	_, err = Load(ctx, dir, "hashing-32", factory, logger.Discard())
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch, "override wins and is checked")

	require.NoError(t, os.Remove(filepath.Join(dir, embedding.DescriptorFile)))
	loaded, err := Load(ctx, dir, "", factory, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, embedding.DefaultModel, loaded.ModelName(), "missing descriptor falls back to the default")

	_, err = Load(ctx, filepath.Join(t.TempDir(), "absent"), "", factory, logger.Discard())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtend(t *testing.T) {
	ctx := context.Background()
	base, err := Build(ctx, newEmbedder(t, "hashing-64"), chunksOf("first chunk"))
	require.NoError(t, err)

	grown, err := Extend(ctx, base, chunksOf("second chunk", "third chunk"))
	require.NoError(t, err)
	assert.Equal(t, 1, base.Len(), "original index is untouched")
	assert.Equal(t, 3, grown.Len())
	assert.Equal(t, base.Embedder(), grown.Embedder())

	same, err := Extend(ctx, base, nil)
	require.NoError(t, err)
	assert.Same(t, base, same)

	_, err = Extend(ctx, nil, chunksOf("x"))
	assert.ErrorIs(t, err, domain.ErrNoIndex)
}
