// Package llm selects the chat model variant from configuration.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"ragchat/internal/domain"
	"ragchat/internal/llm/ollama"
	"ragchat/internal/llm/openai"
)

// Provider names accepted in Config.Provider.
const (
	ProviderRemote = "remote"
	ProviderLocal  = "local"
)

// DirectSystemPrompt is the only instruction sent with a direct call.
const DirectSystemPrompt = "You are a helpful assistant"

// Config selects and configures the chat model.
type Config struct {
	Provider    string `yaml:"provider" toml:"provider"`
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env" toml:"api_key_env"`
	Model       string `yaml:"model" toml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// Factory builds an LLM bound to one set of generation parameters.
type Factory func(gen domain.GenerationConfig) (domain.LLM, error)

// NewFactory returns a Factory for cfg. API keys are read from the
// environment each time a model is built.
func NewFactory(cfg Config) Factory {
	return func(gen domain.GenerationConfig) (domain.LLM, error) {
		return New(cfg, gen)
	}
}

// New builds the configured model variant.
func New(cfg Config, gen domain.GenerationConfig) (domain.LLM, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderRemote, "openai", "deepseek":
		envName := cfg.APIKeyEnv
		if envName == "" {
			envName = "DEEPSEEK_API_KEY"
		}
		m, err := openai.New(openai.Config{
			BaseURL:    cfg.BaseURL,
			APIKey:     os.Getenv(envName),
			Model:      cfg.Model,
			Timeout:    timeout,
			Generation: gen,
		})
		if err != nil {
			return nil, fmt.Errorf("remote model (key env %s): %w", envName, err)
		}
		return m, nil
	case ProviderLocal, "ollama":
		return ollama.New(ollama.Config{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    timeout,
			Generation: gen,
		})
	}
	return nil, fmt.Errorf("%w: unknown llm provider %q", domain.ErrInvalidInput, cfg.Provider)
}

// Direct sends input with a fixed system instruction, bypassing memory and
// retrieval.
func Direct(ctx context.Context, m domain.LLM, input string) (string, error) {
	return m.Complete(ctx, []domain.Message{
		{Role: domain.RoleSystem, Content: DirectSystemPrompt},
		{Role: domain.RoleUser, Content: input},
	})
}

// Unavailable stands in for a model that could not be built. Every call
// fails with domain.ErrLLMUnavailable and the construction cause.
type Unavailable struct {
	Cause error
}

var _ domain.LLM = Unavailable{}

func (Unavailable) ModelName() string { return "unavailable" }

func (u Unavailable) Complete(context.Context, []domain.Message) (string, error) {
	if u.Cause != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrLLMUnavailable, u.Cause)
	}
	return "", domain.ErrLLMUnavailable
}
