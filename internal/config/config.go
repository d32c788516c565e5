// Package config loads the application configuration from a YAML file.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/teachme/teachme/internal/services"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Port            string      `yaml:"port"`
	SystemPrompt    string      `yaml:"systemPrompt"`
	MaxOutputTokens int         `yaml:"maxOutputTokens"`
	Log             LogConfig   `yaml:"log"`
	Store           StoreConfig `yaml:"store"`
	Study           StudyConfig `yaml:"study"`
	LLM             LLMProvider `yaml:"-"`
}

// LogConfig selects the slog handler and level.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig selects the history store backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// StudyConfig tunes the study flow.
type StudyConfig struct {
	PromptTemplate      string   `yaml:"promptTemplate"`
	MaxQuestionAttempts int      `yaml:"maxQuestionAttempts"`
	Suggestions         []string `yaml:"suggestions"`
}

// LLMProvider builds the language model configured under the llm key.
type LLMProvider interface {
	llm(ctx context.Context, systemPrompt string, maxTokens int, logger *slog.Logger) (services.LLM, error)
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

const (
	// DefaultMaxOutputTokens caps the length of generated questions and feedback.
	DefaultMaxOutputTokens = 100

	// StoreBolt and StoreSQLite are the supported history store drivers.
	StoreBolt   = "bolt"
	StoreSQLite = "sqlite"

	defaultPort        = "8080"
	defaultGeminiModel = "gemini-1.5-flash"
)

// Default returns the configuration used when no file is present: Gemini with the key from
// GEMINI_API_KEY and a bbolt store. The store path is left for Load to fill in.
func Default() Config {
	return Config{
		Port:            defaultPort,
		MaxOutputTokens: DefaultMaxOutputTokens,
		Log:             LogConfig{Level: "info", Format: "text"},
		Store:           StoreConfig{Driver: StoreBolt},
		LLM: &geminiConfig{
			BaseLLMConfig: BaseLLMConfig{Provider: "gemini", Model: defaultGeminiModel},
		},
	}
}

// Load reads the YAML file at path on top of Default. A missing file is not an error. A store
// without a path is placed in dataDir.
func Load(path, dataDir string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("error opening config file: %w", err)
	default:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("error decoding config file: %w", err)
		}
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = defaultStorePath(dataDir, cfg.Store.Driver)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaultStorePath(dataDir, driver string) string {
	if driver == StoreSQLite {
		return filepath.Join(dataDir, "store.sqlite")
	}
	return filepath.Join(dataDir, "store.db")
}

// UnmarshalYAML decodes the configuration, choosing the concrete LLM configuration from the
// llm.provider field.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain Config
	var rawConfig struct {
		plain `yaml:",inline"`
		LLM   map[string]any `yaml:"llm"`
	}
	rawConfig.plain = plain(*c)

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	llm := c.LLM
	if rawConfig.LLM != nil {
		var err error
		llm, err = decodeLLM(rawConfig.LLM)
		if err != nil {
			return err
		}
	}

	*c = Config(rawConfig.plain)
	c.LLM = llm
	return nil
}

func decodeLLM(raw map[string]any) (LLMProvider, error) {
	llmProvider, ok := raw["provider"].(string)
	if !ok {
		return nil, fmt.Errorf("llm provider is required")
	}

	llmRawYAML, err := yaml.Marshal(raw)
	if err != nil {
		return nil, err
	}

	var llm LLMProvider
	switch llmProvider {
	case "gemini":
		llm = &geminiConfig{}
	case "ollama":
		llm = &ollamaConfig{}
	case "openai":
		llm = &openAIConfig{}
	case "openrouter":
		llm = &openRouterConfig{}
	case "anthropic":
		llm = &anthropicConfig{}
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return nil, err
	}
	return llm, nil
}

// Validate checks that all required configuration fields are set.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.MaxOutputTokens <= 0 {
		return fmt.Errorf("maxOutputTokens must be > 0")
	}
	switch c.Store.Driver {
	case StoreBolt, StoreSQLite:
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path cannot be empty")
	}
	if c.LLM == nil {
		return fmt.Errorf("llm is required")
	}
	return nil
}

// NewLLM builds the configured language model.
func (c Config) NewLLM(ctx context.Context, logger *slog.Logger) (services.LLM, error) {
	return c.LLM.llm(ctx, c.SystemPrompt, c.MaxOutputTokens, logger)
}

// Logger builds the slog logger described by the log section.
func (c Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Dir returns the directory holding the configuration file and the stores, creating it if needed. It
// honors $XDG_CONFIG_HOME through os.UserConfigDir.
func Dir() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error getting user config dir: %w", err)
	}

	dir := filepath.Join(cfgDir, "teachme")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating config directory: %w", err)
	}
	return dir, nil
}
