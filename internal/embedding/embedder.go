// Package embedding builds embedders from a model name and records which
// model produced a saved index.
package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ragchat/internal/domain"
	"ragchat/internal/embedding/hashing"
	"ragchat/internal/embedding/openai"
)

// DefaultModel works offline and needs no downloads.
const DefaultModel = "hashing-384"

// DescriptorFile is the name of the metadata file written beside an index.
const DescriptorFile = "embedding_info.json"

// Config holds what remote embedding models need.
type Config struct {
	Model         string `yaml:"model" toml:"model"`
	BaseURL       string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv     string `yaml:"api_key_env" toml:"api_key_env"`
	TimeoutSecs   int    `yaml:"timeout_secs" toml:"timeout_secs"`
	BatchSize     int    `yaml:"batch_size" toml:"batch_size"`
	Workers       int    `yaml:"workers" toml:"workers"`
	MaxInputChars int    `yaml:"max_input_chars" toml:"max_input_chars"`
}

// Factory reconstructs an embedder from its model name.
type Factory func(model string) (domain.Embedder, error)

// NewFactory returns a Factory. Names of the form "hashing-<dim>" are served
// locally; every other name goes to the configured OpenAI-compatible
// endpoint.
func NewFactory(cfg Config) Factory {
	return func(model string) (domain.Embedder, error) {
		if model == "" {
			model = cfg.Model
		}
		if model == "" {
			model = DefaultModel
		}
		if dim, ok := hashing.ParseModel(model); ok {
			return hashing.New(dim), nil
		}
		var key string
		if cfg.APIKeyEnv != "" {
			key = os.Getenv(cfg.APIKeyEnv)
		}
		return openai.NewClient(openai.Config{
			BaseURL:       cfg.BaseURL,
			APIKey:        key,
			Model:         model,
			Timeout:       time.Duration(cfg.TimeoutSecs) * time.Second,
			BatchSize:     cfg.BatchSize,
			Workers:       cfg.Workers,
			MaxInputChars: cfg.MaxInputChars,
		})
	}
}

// Unavailable stands in when no embedding model could be constructed.
// Every call fails with domain.ErrEmbeddingUnavailable.
type Unavailable struct {
	Model string
	Cause error
}

var _ domain.Embedder = Unavailable{}

func (u Unavailable) ModelName() string { return u.Model }
func (u Unavailable) Dimension() int    { return 0 }

func (u Unavailable) Embed(context.Context, []string) ([][]float32, error) {
	if u.Cause != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrEmbeddingUnavailable, u.Model, u.Cause)
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrEmbeddingUnavailable, u.Model)
}

// IsUnavailable reports whether e can never embed.
func IsUnavailable(e domain.Embedder) bool {
	if e == nil {
		return true
	}
	_, ok := e.(Unavailable)
	return ok
}

// OrUnavailable returns the factory result, or an Unavailable placeholder
// carrying the construction error.
func OrUnavailable(f Factory, model string) domain.Embedder {
	e, err := f(model)
	if err != nil {
		return Unavailable{Model: model, Cause: err}
	}
	return e
}

// SaveDescriptor writes embedding_info.json into dir.
func SaveDescriptor(dir string, md domain.IndexMetadata) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, DescriptorFile), data, 0o644)
}

// ReadDescriptor reads embedding_info.json from dir. A missing file yields
// an error satisfying errors.Is(err, os.ErrNotExist).
func ReadDescriptor(dir string) (domain.IndexMetadata, error) {
	var md domain.IndexMetadata
	data, err := os.ReadFile(filepath.Join(dir, DescriptorFile))
	if err != nil {
		return md, err
	}
	if err := json.Unmarshal(data, &md); err != nil {
		return md, fmt.Errorf("parse %s: %w", DescriptorFile, err)
	}
	if md.ModelName == "" {
		return md, errors.New(DescriptorFile + ": model_name is empty")
	}
	return md, nil
}
