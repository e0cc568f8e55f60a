package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ragchat/internal/domain"
	"ragchat/internal/service"
)

// BotPort is the TUI-facing subset of the chat bot.
type BotPort interface {
	Ask(ctx context.Context, input string) domain.AnswerResult
	Direct(ctx context.Context, input string) (string, error)
	LoadDocuments(ctx context.Context, paths ...string) (service.IngestReport, error)
	SaveIndex(ctx context.Context, dir string) (string, error)
	ImportIndex(ctx context.Context, dir, model string) (int, error)
	ClearHistory()
	GenerationParams() domain.GenerationConfig
	UpdateGenerationParams(u domain.GenerationUpdate) (domain.GenerationConfig, error)
	SetMemoryMode(ctx context.Context, mode domain.MemoryMode) error
	SetPromptTemplate(tmpl string) error
	SaveEmbeddingDescriptor(dir string) (string, error)
	SetDescriptorDir(dir string) error
	Status() service.Status
}

var _ BotPort = (*service.Bot)(nil)

// ErrQuit is returned by Execute for /quit and /exit.
var ErrQuit = errors.New("quit")

const helpText = `Commands:
  /load <path>...            load .txt/.pdf files or directories into the index
  /save [dir]                save the vector index
  /import [dir] [model]      load a saved index, optionally forcing the embedding model
  /clear                     clear conversation history
  /params                    show generation parameters
  /set <name> <value>        temperature | max_tokens | top_p | presence_penalty
  /mode <buffer|summary>     switch memory mode
  /prompt <template>         set the conversation prompt; must contain {input}
  /embedding save [dir]      write embedding_info.json
  /embedding dir <dir>       change the default descriptor directory
  /direct <text>             ask the model directly, without memory or documents
  /status                    show the current configuration
  /quit                      exit`

// IsCommand reports whether line is a slash command.
func IsCommand(line string) bool { return strings.HasPrefix(strings.TrimSpace(line), "/") }

// Execute runs one slash command and returns the text to show.
func Execute(ctx context.Context, bot BotPort, line string) (string, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return "", nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	switch name {
	case "/help", "/?":
		return helpText, nil
	case "/quit", "/exit":
		return "", ErrQuit
	case "/load":
		if len(args) == 0 {
			return "", usage("/load <path>...")
		}
		rep, err := bot.LoadDocuments(ctx, args...)
		return formatIngest(rep), err
	case "/save":
		dir, err := bot.SaveIndex(ctx, optional(args, 0))
		if err != nil {
			return "", err
		}
		return "Index saved to " + dir, nil
	case "/import":
		n, err := bot.ImportIndex(ctx, optional(args, 0), optional(args, 1))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Imported index with %d chunks", n), nil
	case "/clear":
		bot.ClearHistory()
		return "Conversation history cleared", nil
	case "/params":
		return formatParams(bot.GenerationParams()), nil
	case "/set":
		if len(args) != 2 {
			return "", usage("/set <name> <value>")
		}
		u, err := parseUpdate(args[0], args[1])
		if err != nil {
			return "", err
		}
		cfg, err := bot.UpdateGenerationParams(u)
		if err != nil {
			return "", err
		}
		return formatParams(cfg), nil
	case "/mode":
		if len(args) != 1 {
			return "", usage("/mode <buffer|summary>")
		}
		mode, err := domain.ParseMemoryMode(args[0])
		if err != nil {
			return "", err
		}
		if err := bot.SetMemoryMode(ctx, mode); err != nil {
			return "", err
		}
		return "Memory mode: " + string(mode), nil
	case "/prompt":
		if rest == "" {
			return "", usage("/prompt <template>")
		}
		if err := bot.SetPromptTemplate(unescape(rest)); err != nil {
			return "", err
		}
		return "Prompt template updated", nil
	case "/embedding":
		return embeddingCommand(bot, args)
	case "/direct":
		if rest == "" {
			return "", usage("/direct <text>")
		}
		return bot.Direct(ctx, rest)
	case "/status":
		return formatStatus(bot.Status()), nil
	}
	return "", fmt.Errorf("%w: unknown command %s (try /help)", domain.ErrInvalidInput, name)
}

func embeddingCommand(bot BotPort, args []string) (string, error) {
	switch optional(args, 0) {
	case "save":
		dir, err := bot.SaveEmbeddingDescriptor(optional(args, 1))
		if err != nil {
			return "", err
		}
		return "Embedding descriptor written to " + dir, nil
	case "dir":
		if len(args) != 2 {
			return "", usage("/embedding dir <dir>")
		}
		if err := bot.SetDescriptorDir(args[1]); err != nil {
			return "", err
		}
		return "Descriptor directory: " + args[1], nil
	}
	return "", usage("/embedding save [dir] | /embedding dir <dir>")
}

func parseUpdate(name, value string) (domain.GenerationUpdate, error) {
	var u domain.GenerationUpdate
	if strings.ToLower(name) == "max_tokens" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return u, fmt.Errorf("%w: max_tokens must be an integer", domain.ErrInvalidInput)
		}
		u.MaxTokens = &n
		return u, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return u, fmt.Errorf("%w: %s must be a number", domain.ErrInvalidInput, name)
	}
	switch strings.ToLower(name) {
	case "temperature":
		u.Temperature = &f
	case "top_p":
		u.TopP = &f
	case "presence_penalty":
		u.PresencePenalty = &f
	default:
		return u, fmt.Errorf("%w: unknown parameter %q", domain.ErrInvalidInput, name)
	}
	return u, nil
}

func formatIngest(rep service.IngestReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Loaded %d documents, %d chunks (index now %d chunks)", rep.Documents, rep.Chunks, rep.Total)
	if rep.SavedTo != "" {
		fmt.Fprintf(&b, "\nSaved to %s", rep.SavedTo)
	}
	if rep.SaveErr != nil {
		fmt.Fprintf(&b, "\nAuto-save failed: %v", rep.SaveErr)
	}
	for _, s := range rep.Skipped {
		fmt.Fprintf(&b, "\nSkipped %s: %s", s.Path, s.Reason)
	}
	return b.String()
}

func formatParams(c domain.GenerationConfig) string {
	return fmt.Sprintf("temperature=%.2f max_tokens=%d top_p=%.2f presence_penalty=%.2f",
		c.Temperature, c.MaxTokens, c.TopP, c.PresencePenalty)
}

func formatStatus(s service.Status) string {
	return fmt.Sprintf("mode=%s chunks=%d embedding=%s llm=%s memory=%s index_dir=%s\n%s",
		s.Mode, s.Chunks, s.EmbeddingModel, s.LLMModel, s.MemoryMode, s.IndexDir, formatParams(s.Generation))
}

func optional(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// unescape lets a one-line template contain newlines written as \n.
func unescape(s string) string { return strings.ReplaceAll(s, `\n`, "\n") }

func usage(u string) error { return fmt.Errorf("%w: usage: %s", domain.ErrInvalidInput, u) }
