package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func TestHTTPSink_Record(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat_responses", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := NewHTTPSink(srv.URL+"/", "tok", 0)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := s.Record(context.Background(), domain.ExchangeRecord{
		UserInput:  "q",
		AIResponse: "a",
		Timestamp:  ts,
		Metadata:   map[string]any{"rag_enabled": true},
	})
	require.NoError(t, err)
	assert.Equal(t, "q", body["user_input"])
	assert.Equal(t, "a", body["ai_response"])
	assert.Equal(t, "2026-01-02T03:04:05Z", body["timestamp"])
	assert.Equal(t, map[string]any{"rag_enabled": true}, body["metadata"])
}

func TestHTTPSink_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := NewHTTPSink(srv.URL, "", time.Second).Record(context.Background(), domain.ExchangeRecord{})
	assert.ErrorIs(t, err, domain.ErrSink, "202 is not a success")

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()
	err = NewHTTPSink(slow.URL, "", 50*time.Millisecond).Record(context.Background(), domain.ExchangeRecord{})
	assert.ErrorIs(t, err, domain.ErrSink)
}

func TestNew_NopWithoutURL(t *testing.T) {
	assert.IsType(t, Nop{}, New(Config{}))
	t.Setenv("SINK_TOKEN", "abc")
	s, ok := New(Config{DBURL: "http://db", TokenEnv: "SINK_TOKEN"}).(*HTTPSink)
	require.True(t, ok)
	assert.Equal(t, "abc", s.token)
	assert.Equal(t, "http://db/api/chat_responses", s.endpoint)
}
