package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

// fakeServer answers /embeddings with a vector whose first component is
// the input length, so callers can check ordering.
func fakeServer(t *testing.T, status *atomic.Int32, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		if code := status.Load(); code != 0 {
			status.Store(0)
			w.WriteHeader(int(code))
			return
		}
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		resp := struct {
			Data []item `json:"data"`
		}{}
		// Reverse order on the wire; the client must honour "index".
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, item{Index: i, Embedding: []float32{float32(len(req.Input[i])), 1, 0}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = NewClient(Config{Model: "text-embedding-3-small"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable, "public endpoint needs a key")

	c, err := NewClient(Config{Model: "nomic-embed-text", BaseURL: "http://localhost:11434/v1/"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434/v1", c.cfg.BaseURL)
	assert.Equal(t, 0, c.Dimension())
}

func TestEmbed_BatchesKeepOrder(t *testing.T) {
	var status, calls atomic.Int32
	srv := fakeServer(t, &status, &calls)
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Model: "m", BatchSize: 2, Workers: 3})
	require.NoError(t, err)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := c.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, v := range vecs {
		assert.Equal(t, float32(len(texts[i])), v[0])
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, c.Dimension())
}

func TestEmbed_RetriesServerErrors(t *testing.T) {
	var status, calls atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	srv := fakeServer(t, &status, &calls)
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Model: "m", MaxRetries: 2})
	require.NoError(t, err)

	vecs, err := c.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbed_ClientErrorIsNotRetried(t *testing.T) {
	var status, calls atomic.Int32
	status.Store(http.StatusUnauthorized)
	srv := fakeServer(t, &status, &calls)
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Model: "m", APIKey: "bad"})
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	var status, calls atomic.Int32
	srv := fakeServer(t, &status, &calls)
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Model: "m", Dimension: 768})
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestEmbed_OllamaShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2],[0.3,0.4]]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Model: "m", Timeout: time.Second})
	require.NoError(t, err)
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vecs)
}
