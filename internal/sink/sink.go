// Package sink forwards finished exchanges to the analytics database.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"ragchat/internal/domain"
)

// DefaultTimeout bounds one delivery attempt. Deliveries are not retried.
const DefaultTimeout = 10 * time.Second

// Config locates the analytics service.
type Config struct {
	DBURL       string `yaml:"db_url" toml:"db_url"`
	TokenEnv    string `yaml:"token_env" toml:"token_env"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// New returns an HTTPSink, or Nop when no URL is configured.
func New(cfg Config) domain.Sink {
	if strings.TrimSpace(cfg.DBURL) == "" {
		return Nop{}
	}
	var token string
	if cfg.TokenEnv != "" {
		token = os.Getenv(cfg.TokenEnv)
	}
	return NewHTTPSink(cfg.DBURL, token, time.Duration(cfg.TimeoutSecs)*time.Second)
}

// HTTPSink posts each exchange as JSON to {db_url}/api/chat_responses.
type HTTPSink struct {
	endpoint string
	token    string
	client   *http.Client
}

var _ domain.Sink = (*HTTPSink)(nil)

// NewHTTPSink creates a sink. A zero timeout means DefaultTimeout.
func NewHTTPSink(dbURL, token string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPSink{
		endpoint: strings.TrimRight(dbURL, "/") + "/api/chat_responses",
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

// Record delivers rec once. Only 200 and 201 count as success.
func (s *HTTPSink) Record(ctx context.Context, rec domain.ExchangeRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", domain.ErrSink, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSink, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSink, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: status %d", domain.ErrSink, resp.StatusCode)
	}
	return nil
}

// Nop drops every record.
type Nop struct{}

func (Nop) Record(context.Context, domain.ExchangeRecord) error { return nil }
