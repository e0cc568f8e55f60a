// Package openai talks to OpenAI-compatible /chat/completions endpoints
// such as DeepSeek.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ragchat/internal/domain"
	"ragchat/internal/textutil"
)

var _ domain.LLM = (*Model)(nil)

const (
	DefaultBaseURL = "https://api.deepseek.com"
	DefaultModel   = "deepseek-chat"
	DefaultTimeout = 120 * time.Second
)

// Config holds connection settings. Generation parameters are fixed for the
// lifetime of a Model.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	Generation domain.GenerationConfig
}

// Model is the remote API chat model.
type Model struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	gen     domain.GenerationConfig
}

type chatRequest struct {
	Model           string        `json:"model"`
	Messages        []chatMessage `json:"messages"`
	MaxTokens       int           `json:"max_tokens,omitempty"`
	Temperature     float64       `json:"temperature"`
	TopP            float64       `json:"top_p,omitempty"`
	PresencePenalty float64       `json:"presence_penalty"`
	Stream          bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// New creates a Model. The API key is required.
func New(cfg Config) (*Model, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", domain.ErrLLMUnavailable)
	}
	if err := cfg.Generation.Validate(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Model{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		gen:     cfg.Generation,
	}, nil
}

// ModelName returns the remote model identifier.
func (m *Model) ModelName() string { return m.model }

// Generation returns the parameters bound to this model.
func (m *Model) Generation() domain.GenerationConfig { return m.gen }

// Complete sends messages and returns the first choice.
func (m *Model) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	msgs := make([]chatMessage, len(messages))
	for i, msg := range messages {
		msgs[i] = chatMessage{Role: string(msg.Role), Content: msg.Content}
	}
	body, err := json.Marshal(chatRequest{
		Model:           m.model,
		Messages:        msgs,
		MaxTokens:       m.gen.MaxTokens,
		Temperature:     m.gen.Temperature,
		TopP:            m.gen.TopP,
		PresencePenalty: m.gen.PresencePenalty,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out chatResponse
	if jsonErr := json.Unmarshal(payload, &out); jsonErr == nil && out.Error != nil {
		return "", fmt.Errorf("chat completion error (status %d): %s", resp.StatusCode, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion error (status %d): %s", resp.StatusCode, textutil.Head(string(payload), 300))
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
