package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

type recordingLLM struct {
	got []domain.Message
}

func (r *recordingLLM) ModelName() string { return "rec" }

func (r *recordingLLM) Complete(_ context.Context, msgs []domain.Message) (string, error) {
	r.got = msgs
	return "ok", nil
}

func TestNew_SelectsVariant(t *testing.T) {
	gen := domain.DefaultGenerationConfig()

	t.Setenv("TEST_LLM_KEY", "sk-test")
	m, err := New(Config{Provider: "remote", APIKeyEnv: "TEST_LLM_KEY"}, gen)
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat", m.ModelName())

	m, err = New(Config{Provider: "local", Model: "llama3.2"}, gen)
	require.NoError(t, err)
	assert.Equal(t, "llama3.2", m.ModelName())

	_, err = New(Config{Provider: "carrier-pigeon"}, gen)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	t.Setenv("EMPTY_KEY", "")
	_, err = New(Config{APIKeyEnv: "EMPTY_KEY"}, gen)
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}

func TestNew_RejectsInvalidGeneration(t *testing.T) {
	gen := domain.DefaultGenerationConfig()
	gen.Temperature = 5
	_, err := New(Config{Provider: "local"}, gen)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDirect(t *testing.T) {
	rec := &recordingLLM{}
	out, err := Direct(context.Background(), rec, "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, []domain.Message{
		{Role: domain.RoleSystem, Content: DirectSystemPrompt},
		{Role: domain.RoleUser, Content: "hi"},
	}, rec.got)
}

func TestUnavailable(t *testing.T) {
	_, err := Unavailable{}.Complete(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}
