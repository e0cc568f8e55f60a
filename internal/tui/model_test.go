package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
	"ragchat/internal/service"
)

type fakeBot struct {
	gen      domain.GenerationConfig
	mode     domain.MemoryMode
	prompt   string
	loaded   []string
	cleared  bool
	descDir  string
	asked    []string
	importAt [2]string
}

func newFakeBot() *fakeBot {
	return &fakeBot{gen: domain.DefaultGenerationConfig(), mode: domain.MemoryBuffer}
}

func (f *fakeBot) Ask(_ context.Context, input string) domain.AnswerResult {
	f.asked = append(f.asked, input)
	return domain.AnswerResult{
		Text:     "answer to " + input,
		Grounded: true,
		Provenance: &domain.Provenance{
			Sources:        []domain.SourceMetadata{{Path: "a.pdf", Page: 2}},
			ContextPreview: "Cats sleep a lot. Plants use photosynthesis.",
		},
	}
}

func (f *fakeBot) Direct(_ context.Context, input string) (string, error) {
	return "direct: " + input, nil
}

func (f *fakeBot) LoadDocuments(_ context.Context, paths ...string) (service.IngestReport, error) {
	f.loaded = paths
	return service.IngestReport{Documents: len(paths), Chunks: 3, Total: 3, SavedTo: "RAG"}, nil
}

func (f *fakeBot) SaveIndex(_ context.Context, dir string) (string, error) {
	if dir == "" {
		return "", domain.ErrNoIndex
	}
	return dir, nil
}

func (f *fakeBot) ImportIndex(_ context.Context, dir, model string) (int, error) {
	f.importAt = [2]string{dir, model}
	return 7, nil
}

func (f *fakeBot) ClearHistory() { f.cleared = true }

func (f *fakeBot) GenerationParams() domain.GenerationConfig { return f.gen }

func (f *fakeBot) UpdateGenerationParams(u domain.GenerationUpdate) (domain.GenerationConfig, error) {
	next, err := f.gen.With(u)
	if err != nil {
		return f.gen, err
	}
	f.gen = next
	return next, nil
}

func (f *fakeBot) SetMemoryMode(_ context.Context, mode domain.MemoryMode) error {
	f.mode = mode
	return nil
}

func (f *fakeBot) SetPromptTemplate(tmpl string) error {
	f.prompt = tmpl
	return nil
}

func (f *fakeBot) SaveEmbeddingDescriptor(dir string) (string, error) {
	if dir == "" {
		dir = f.descDir
	}
	return dir, nil
}

func (f *fakeBot) SetDescriptorDir(dir string) error {
	f.descDir = dir
	return nil
}

func (f *fakeBot) Status() service.Status {
	return service.Status{Mode: "ungrounded", MemoryMode: f.mode, Generation: f.gen}
}

func TestExecute_Commands(t *testing.T) {
	ctx := context.Background()
	bot := newFakeBot()

	out, err := Execute(ctx, bot, "/set temperature 0.2")
	require.NoError(t, err)
	assert.Contains(t, out, "temperature=0.20")
	assert.InDelta(t, 0.2, bot.gen.Temperature, 1e-9)

	out, err = Execute(ctx, bot, "/set max_tokens 256")
	require.NoError(t, err)
	assert.Contains(t, out, "max_tokens=256")

	_, err = Execute(ctx, bot, "/mode summary")
	require.NoError(t, err)
	assert.Equal(t, domain.MemorySummary, bot.mode)

	_, err = Execute(ctx, bot, `/prompt Chat:\n{history}\nHuman: {input}`)
	require.NoError(t, err)
	assert.Equal(t, "Chat:\n{history}\nHuman: {input}", bot.prompt)

	out, err = Execute(ctx, bot, "/load a.txt docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "docs"}, bot.loaded)
	assert.Contains(t, out, "Saved to RAG")

	out, err = Execute(ctx, bot, "/import idx hashing-384")
	require.NoError(t, err)
	assert.Equal(t, [2]string{"idx", "hashing-384"}, bot.importAt)
	assert.Contains(t, out, "7 chunks")

	_, err = Execute(ctx, bot, "/embedding dir model")
	require.NoError(t, err)
	out, err = Execute(ctx, bot, "/embedding save")
	require.NoError(t, err)
	assert.Contains(t, out, "model")

	out, err = Execute(ctx, bot, "/direct hello there")
	require.NoError(t, err)
	assert.Equal(t, "direct: hello there", out)

	_, err = Execute(ctx, bot, "/clear")
	require.NoError(t, err)
	assert.True(t, bot.cleared)

	out, err = Execute(ctx, bot, "/status")
	require.NoError(t, err)
	assert.Contains(t, out, "memory=summary")
}

func TestExecute_Errors(t *testing.T) {
	ctx := context.Background()
	bot := newFakeBot()

	for _, line := range []string{"/bogus", "/load", "/set temperature", "/set temperature hot", "/set top_k 3", "/set temperature NaN", "/mode chatty", "/embedding"} {
		_, err := Execute(ctx, bot, line)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, line)
	}

	_, err := Execute(ctx, bot, "/set temperature 3")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.InDelta(t, domain.DefaultGenerationConfig().Temperature, bot.gen.Temperature, 1e-9)

	_, err = Execute(ctx, bot, "/save")
	assert.ErrorIs(t, err, domain.ErrNoIndex)

	_, err = Execute(ctx, bot, "/quit")
	assert.True(t, errors.Is(err, ErrQuit))
}

func TestIsCommand(t *testing.T) {
	assert.True(t, IsCommand("  /help"))
	assert.False(t, IsCommand("what is /help?"))
}

func TestModel_AskRoundTrip(t *testing.T) {
	bot := newFakeBot()
	m := New(context.Background(), bot, "test")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = next.(Model)

	m.input.SetValue("what is photosynthesis")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.busy)
	require.Len(t, m.entries, 1)
	assert.Equal(t, userEntry, m.entries[0].kind)

	reply := cmd()
	next, _ = m.Update(reply)
	m = next.(Model)
	assert.False(t, m.busy)
	require.Len(t, m.entries, 2)
	assert.Equal(t, "answer to what is photosynthesis", m.entries[1].text)
	assert.Equal(t, []string{"what is photosynthesis"}, bot.asked)
	assert.Contains(t, m.View(), "a.pdf#page=2")
}

func TestModel_QuitCommand(t *testing.T) {
	m := New(context.Background(), newFakeBot(), "")
	m.input.SetValue("/quit")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)

	msg := cmd()
	reply, ok := msg.(replyMsg)
	require.True(t, ok)
	assert.True(t, reply.quit)
}

func trimAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func TestHighlightBestSentence(t *testing.T) {
	text := "Cats sleep a lot. Plants use photosynthesis to make food. The sky is blue."
	out := highlightBestSentence(text, "how does photosynthesis work")
	assert.Contains(t, out, "Plants use photosynthesis to make food.")
	assert.Contains(t, out, "Cats sleep a lot.")

	// Chunks often end mid-sentence; the tail must survive and can win.
	text = "Revenue grew in 2023. The margin was stable across all regions and the board approved"
	out = highlightBestSentence(text, "margin board")
	assert.Contains(t, out, "Revenue grew in 2023.")
	assert.Contains(t, out, "The margin was stable across all regions and the board approved")
	assert.Equal(t, []string{"Revenue grew in 2023.", "The margin was stable across all regions and the board approved"},
		trimAll(splitSentences(text)))
	assert.Equal(t, 1, bestSentence(splitSentences(text), toTokenSet("margin board")))
	assert.Equal(t, []string{"no terminator at all"}, splitSentences("  no terminator at all "))

	assert.Equal(t, 2, tokenOverlapScore(toTokenSet("光合作用"), "光合"))
	assert.Equal(t, "", highlightBestSentence("", "q"))
}
