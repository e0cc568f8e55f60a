// Package vectorstore builds, persists and queries a flat cosine-similarity
// index over chunk embeddings.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"ragchat/internal/domain"
)

// DefaultTopK is used when a query asks for k <= 0.
const DefaultTopK = 4

// Index owns the chunk-to-vector association and the embedder that
// produced the vectors. It is immutable after Build or Load, so queries
// may run concurrently.
type Index struct {
	embedder  domain.Embedder
	dimension int
	chunks    []domain.Chunk
	vectors   [][]float32
	norms     []float64
}

// Build embeds every chunk and returns the index. Entry ids are positions
// in chunks.
func Build(ctx context.Context, emb domain.Embedder, chunks []domain.Chunk) (*Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("build: %w", domain.ErrIndexEmpty)
	}
	if emb == nil {
		return nil, fmt.Errorf("build: %w", domain.ErrEmbeddingUnavailable)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := emb.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	return newIndex(emb, chunks, vecs)
}

// Extend returns a new index holding ix's entries followed by chunks,
// embedded with ix's embedder. ix itself is not modified.
func Extend(ctx context.Context, ix *Index, chunks []domain.Chunk) (*Index, error) {
	if ix == nil {
		return nil, fmt.Errorf("extend: %w", domain.ErrNoIndex)
	}
	if len(chunks) == 0 {
		return ix, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	allChunks := append(append([]domain.Chunk(nil), ix.chunks...), chunks...)
	allVecs := append(append([][]float32(nil), ix.vectors...), vecs...)
	return newIndex(ix.embedder, allChunks, allVecs)
}

func newIndex(emb domain.Embedder, chunks []domain.Chunk, vecs [][]float32) (*Index, error) {
	if len(vecs) != len(chunks) {
		return nil, fmt.Errorf("%d vectors for %d chunks", len(vecs), len(chunks))
	}
	dim := len(vecs[0])
	norms := make([]float64, len(vecs))
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: entry %d has %d values, index has %d", domain.ErrDimensionMismatch, i, len(v), dim)
		}
		norms[i] = norm(v)
	}
	return &Index{
		embedder:  emb,
		dimension: dim,
		chunks:    append([]domain.Chunk(nil), chunks...),
		vectors:   vecs,
		norms:     norms,
	}, nil
}

// Len returns the number of entries.
func (ix *Index) Len() int { return len(ix.chunks) }

// Dimension returns the vector length shared by every entry.
func (ix *Index) Dimension() int { return ix.dimension }

// Embedder returns the embedder bound to the index.
func (ix *Index) Embedder() domain.Embedder { return ix.embedder }

// ModelName returns the name of the embedding model behind the vectors.
func (ix *Index) ModelName() string { return ix.embedder.ModelName() }

// Query returns the k entries most similar to vec, nearest first. Ties keep
// id order. Fewer than k entries means all of them.
func (ix *Index) Query(vec []float32, k int) ([]domain.SearchResult, error) {
	if len(vec) != ix.dimension {
		return nil, fmt.Errorf("%w: query has %d values, index has %d", domain.ErrDimensionMismatch, len(vec), ix.dimension)
	}
	if k <= 0 {
		k = DefaultTopK
	}
	qn := norm(vec)
	scores := make([]float64, len(ix.vectors))
	for i, v := range ix.vectors {
		if qn == 0 || ix.norms[i] == 0 {
			continue
		}
		scores[i] = dot(v, vec) / (qn * ix.norms[i])
	}
	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return scores[idxs[a]] > scores[idxs[b]] })
	if k > len(idxs) {
		k = len(idxs)
	}
	results := make([]domain.SearchResult, 0, k)
	for _, j := range idxs[:k] {
		results = append(results, domain.SearchResult{Chunk: ix.chunks[j], Score: scores[j]})
	}
	return results, nil
}

// Retriever returns a retriever bound to this index and its embedder.
func (ix *Index) Retriever() *Retriever { return &Retriever{index: ix} }

// Retriever answers text queries against one Index using the embedder that
// built it. It cannot be pointed at another index.
type Retriever struct {
	index *Index
}

// Retrieve embeds q and returns the top k matches.
func (r *Retriever) Retrieve(ctx context.Context, q string, k int) ([]domain.SearchResult, error) {
	vecs, err := r.index.embedder.Embed(ctx, []string{q})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding query: got %d vectors", len(vecs))
	}
	return r.index.Query(vecs[0], k)
}

// Index returns the bound index.
func (r *Retriever) Index() *Index { return r.index }

func dot(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 { return math.Sqrt(dot(v, v)) }
