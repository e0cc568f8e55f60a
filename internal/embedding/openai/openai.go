// Package openai is an embeddings client for OpenAI-compatible endpoints,
// including Ollama's /v1 surface.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"ragchat/internal/domain"
	"ragchat/internal/textutil"
)

const (
	DefaultBaseURL       = "https://api.openai.com/v1"
	DefaultTimeout       = 30 * time.Second
	DefaultBatchSize     = 32
	DefaultWorkers       = 4
	DefaultMaxRetries    = 5
	DefaultMaxInputChars = 8000
)

var _ domain.Embedder = (*Client)(nil)

// Config configures the client. Zero values take the defaults above.
type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	Timeout       time.Duration
	BatchSize     int
	Workers       int
	MaxRetries    int
	MaxInputChars int
	// Dimension may be left zero; it is learned from the first response.
	Dimension int
}

// Client implements domain.Embedder over HTTP.
type Client struct {
	cfg    Config
	client *http.Client

	mu        sync.RWMutex
	dimension int
}

// NewClient validates cfg and returns a client. A key is only required
// against the public OpenAI endpoint; local servers usually accept none.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embedding model name is empty", domain.ErrInvalidInput)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.APIKey == "" && cfg.BaseURL == DefaultBaseURL {
		return nil, fmt.Errorf("%w: missing API key for %s", domain.ErrEmbeddingUnavailable, cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}
	return &Client{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
		dimension: cfg.Dimension,
	}, nil
}

// ModelName returns the remote model identifier.
func (c *Client) ModelName() string { return c.cfg.Model }

// Dimension returns the vector length, or 0 before the first response
// when none was configured.
func (c *Client) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dimension
}

// Embed sends texts in batches, several in flight at once, and returns the
// vectors in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		start := start
		end := min(start+c.cfg.BatchSize, len(texts))
		g.Go(func() error {
			vecs, err := c.embedBatch(ctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	// Ollama's native /api/embed shape.
	Embeddings [][]float32 `json:"embeddings"`
}

func (c *Client) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	inputs := make([]string, len(batch))
	for i, t := range batch {
		inputs[i] = textutil.Head(t, c.cfg.MaxInputChars)
	}
	body, err := json.Marshal(embeddingRequest{Model: c.cfg.Model, Input: inputs})
	if err != nil {
		return nil, err
	}

	var vecs [][]float32
	backoff := retry.WithMaxRetries(uint64(c.cfg.MaxRetries),
		retry.WithCappedDuration(5*time.Second, retry.NewExponential(200*time.Millisecond)))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		v, err := c.post(ctx, body, len(batch))
		if err != nil {
			return err
		}
		vecs = v
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrDimensionMismatch) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	return vecs, nil
}

func (c *Client) post(ctx context.Context, body []byte, want int) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, retry.RetryableError(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.RetryableError(err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, retry.RetryableError(fmt.Errorf("embeddings request failed: %s", resp.Status))
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embeddings request failed: %s: %s", resp.Status, textutil.Head(string(payload), 200))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	vecs := make([][]float32, want)
	switch {
	case len(parsed.Data) > 0:
		for i, d := range parsed.Data {
			idx := d.Index
			// Some servers omit the index; fall back to position.
			if idx == 0 && i > 0 {
				idx = i
			}
			if idx < 0 || idx >= want {
				return nil, fmt.Errorf("embedding index %d out of range", idx)
			}
			vecs[idx] = d.Embedding
		}
	case len(parsed.Embeddings) > 0:
		copy(vecs, parsed.Embeddings)
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
		if err := c.checkDimension(len(v)); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

func (c *Client) checkDimension(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension == 0 {
		c.dimension = n
		return nil
	}
	if c.dimension != n {
		return fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, c.dimension, n)
	}
	return nil
}
