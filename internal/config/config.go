package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"ragchat/internal/chunker"
	"ragchat/internal/composer"
	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/llm"
	"ragchat/internal/logger"
	"ragchat/internal/sink"
)

// IndexConfig controls where the vector index lives and how it is queried.
type IndexConfig struct {
	Dir           string `yaml:"dir" toml:"dir"`
	DescriptorDir string `yaml:"descriptor_dir" toml:"descriptor_dir"`
	TopK          int    `yaml:"top_k" toml:"top_k"`
	ContextBudget int    `yaml:"context_budget" toml:"context_budget"`
	// LoadOnStart imports the index from Dir at startup when present.
	LoadOnStart bool `yaml:"load_on_start" toml:"load_on_start"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size" toml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" toml:"chunk_overlap"`
}

// MemoryConfig selects the initial memory mode.
type MemoryConfig struct {
	Mode string `yaml:"mode" toml:"mode"`
}

// PromptConfig overrides the built-in prompts. Empty means default.
type PromptConfig struct {
	System   string `yaml:"system,omitempty" toml:"system,omitempty"`
	Template string `yaml:"template,omitempty" toml:"template,omitempty"`
	Grounded string `yaml:"grounded,omitempty" toml:"grounded,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	LLM        llm.Config              `yaml:"llm" toml:"llm"`
	Generation domain.GenerationConfig `yaml:"generation" toml:"generation"`
	Embedder   embedding.Config        `yaml:"embedder" toml:"embedder"`
	Chunker    ChunkerConfig           `yaml:"chunker" toml:"chunker"`
	Index      IndexConfig             `yaml:"index" toml:"index"`
	Memory     MemoryConfig            `yaml:"memory" toml:"memory"`
	Sink       sink.Config             `yaml:"sink" toml:"sink"`
	Prompt     PromptConfig            `yaml:"prompt" toml:"prompt"`
	Log        logger.Config           `yaml:"log" toml:"log"`
}

// Templates returns the composer templates described by the prompt section.
func (c *AppConfig) Templates() composer.Templates {
	return composer.Templates{
		System:       c.Prompt.System,
		Conversation: c.Prompt.Template,
		Grounded:     c.Prompt.Grounded,
	}
}

// Validate rejects values no component can work with.
func (c *AppConfig) Validate() error {
	if err := c.Generation.Validate(); err != nil {
		return fmt.Errorf("generation: %w", err)
	}
	if _, err := domain.ParseMemoryMode(c.Memory.Mode); err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	if c.Prompt.Template != "" {
		if err := composer.ValidateConversationTemplate(c.Prompt.Template); err != nil {
			return fmt.Errorf("prompt: %w", err)
		}
	}
	if c.Chunker.ChunkSize <= 0 {
		return fmt.Errorf("chunker: %w: chunk_size must be positive", domain.ErrInvalidInput)
	}
	return nil
}

// LoadEnv reads .env from the working directory if present. Variables
// already set in the environment win.
func LoadEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Files ending in .toml are parsed as TOML, anything else as YAML.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := Default()
	if isTOML(path) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml, ./config.toml, then
// ~/.config/ragchat/config.yaml. If none exists, it writes defaults to the
// user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	for _, p := range []string{"config.yaml", "config.toml"} {
		if _, err := os.Stat(p); err == nil {
			cfg, err := Load(p)
			return cfg, p, err
		}
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragchat", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return &AppConfig{
		LLM: llm.Config{
			Provider:    llm.ProviderRemote,
			BaseURL:     "https://api.deepseek.com",
			APIKeyEnv:   "DEEPSEEK_API_KEY",
			Model:       "deepseek-chat",
			TimeoutSecs: 120,
		},
		Generation: domain.DefaultGenerationConfig(),
		Embedder: embedding.Config{
			Model:       embedding.DefaultModel,
			APIKeyEnv:   "OPENAI_API_KEY",
			TimeoutSecs: 30,
			BatchSize:   32,
			Workers:     4,
		},
		Chunker: ChunkerConfig{ChunkSize: chunker.DefaultChunkSize, ChunkOverlap: chunker.DefaultChunkOverlap},
		Index: IndexConfig{
			Dir:           "RAG",
			DescriptorDir: "model",
			TopK:          composer.DefaultTopK,
			ContextBudget: composer.DefaultContextBudget,
		},
		Memory: MemoryConfig{Mode: string(domain.MemoryBuffer)},
		Sink:   sink.Config{TokenEnv: "DB_API_TOKEN", TimeoutSecs: 10},
		Log:    logger.Config{Level: "info", Format: "text"},
	}
}

func applyDefaults(cfg *AppConfig) {
	def := Default()
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = def.Embedder.Model
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = def.Chunker.ChunkSize
	}
	if cfg.Index.Dir == "" {
		cfg.Index.Dir = def.Index.Dir
	}
	if cfg.Index.DescriptorDir == "" {
		cfg.Index.DescriptorDir = def.Index.DescriptorDir
	}
	if cfg.Index.TopK <= 0 {
		cfg.Index.TopK = def.Index.TopK
	}
	if cfg.Index.ContextBudget <= 0 {
		cfg.Index.ContextBudget = def.Index.ContextBudget
	}
	if cfg.Memory.Mode == "" {
		cfg.Memory.Mode = def.Memory.Mode
	}
	if cfg.Sink.TimeoutSecs <= 0 {
		cfg.Sink.TimeoutSecs = def.Sink.TimeoutSecs
	}
}
