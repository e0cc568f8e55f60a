package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func TestComplete_SendsGenerationParams(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  hello there \n"}}]}`))
	}))
	defer srv.Close()

	gen := domain.GenerationConfig{Temperature: 0.3, MaxTokens: 256, TopP: 0.9, PresencePenalty: 0.5}
	m, err := New(Config{BaseURL: srv.URL + "/", APIKey: "sk-test", Generation: gen})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, m.ModelName())

	out, err := m.Complete(context.Background(), []domain.Message{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleUser, Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)

	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	assert.InDelta(t, 0.3, got.Temperature, 1e-9)
	assert.InDelta(t, 0.9, got.TopP, 1e-9)
	assert.InDelta(t, 0.5, got.PresencePenalty, 1e-9)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
}

func TestComplete_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"api error body", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, "bad key"},
		{"plain failure", http.StatusBadGateway, `upstream down`, "status 502"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			m, err := New(Config{BaseURL: srv.URL, APIKey: "k", Generation: domain.DefaultGenerationConfig()})
			require.NoError(t, err)
			_, err = m.Complete(context.Background(), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(Config{Generation: domain.DefaultGenerationConfig()})
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}
