// Package ollama runs chat completions against a local Ollama server.
package ollama

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
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "qwen2.5:7b"
	DefaultTimeout = 300 * time.Second
)

// Config holds connection settings for the local model.
type Config struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Generation domain.GenerationConfig
}

// Model is the local inference chat model.
type Model struct {
	client  *http.Client
	baseURL string
	model   string
	gen     domain.GenerationConfig
}

type options struct {
	NumPredict      int     `json:"num_predict,omitempty"`
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"top_p,omitempty"`
	PresencePenalty float64 `json:"presence_penalty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *options      `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

// New creates a Model. No credentials are needed.
func New(cfg Config) (*Model, error) {
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
		model:   cfg.Model,
		gen:     cfg.Generation,
	}, nil
}

// ModelName returns the Ollama model tag.
func (m *Model) ModelName() string { return m.model }

// Generation returns the parameters bound to this model.
func (m *Model) Generation() domain.GenerationConfig { return m.gen }

// Complete posts a non-streaming /api/chat request.
func (m *Model) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	msgs := make([]chatMessage, len(messages))
	for i, msg := range messages {
		msgs[i] = chatMessage{Role: string(msg.Role), Content: msg.Content}
	}
	body, err := json.Marshal(chatRequest{
		Model:    m.model,
		Messages: msgs,
		Options: &options{
			NumPredict:      m.gen.MaxTokens,
			Temperature:     m.gen.Temperature,
			TopP:            m.gen.TopP,
			PresencePenalty: m.gen.PresencePenalty,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, textutil.Head(string(payload), 300))
	}
	var out chatResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama error: %s", out.Error)
	}
	return strings.TrimSpace(out.Message.Content), nil
}
