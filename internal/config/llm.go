package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/teachme/teachme/internal/services"
)

const defaultOllamaHost = "http://localhost:11434"

type geminiConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string                 `yaml:"apiKey"`
	BaseURL       string                 `yaml:"baseURL"`
	Parameters    services.LLMParameters `yaml:"parameters"`
}

type openRouterConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
}

type anthropicConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
}

// valueOrEnv returns value, or the environment variable key when value is empty.
func valueOrEnv(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}

func (g geminiConfig) llm(ctx context.Context, systemPrompt string, maxTokens int, logger *slog.Logger) (services.LLM, error) {
	model := g.Model
	if model == "" {
		model = defaultGeminiModel
	}

	apiKey := valueOrEnv(g.APIKey, "GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required, set llm.apiKey or GEMINI_API_KEY")
	}
	return services.NewGemini(ctx, apiKey, model, systemPrompt, maxTokens, logger)
}

func (o ollamaConfig) llm(_ context.Context, systemPrompt string, maxTokens int, logger *slog.Logger) (services.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	host := valueOrEnv(o.Host, "OLLAMA_HOST")
	if host == "" {
		host = defaultOllamaHost
	}
	return services.NewOllama(host, o.Model, systemPrompt, maxTokens, logger)
}

func (o openAIConfig) llm(_ context.Context, systemPrompt string, maxTokens int, logger *slog.Logger) (services.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := valueOrEnv(o.APIKey, "OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required, set llm.apiKey or OPENAI_API_KEY")
	}
	return services.NewOpenAI(apiKey, o.BaseURL, o.Model, systemPrompt, maxTokens, o.Parameters, logger), nil
}

func (o openRouterConfig) llm(_ context.Context, systemPrompt string, maxTokens int, logger *slog.Logger) (services.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := valueOrEnv(o.APIKey, "OPENROUTER_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("openrouter api key is required, set llm.apiKey or OPENROUTER_API_KEY")
	}
	return services.NewOpenRouter(apiKey, o.Model, systemPrompt, maxTokens, logger), nil
}

func (a anthropicConfig) llm(_ context.Context, systemPrompt string, maxTokens int, logger *slog.Logger) (services.LLM, error) {
	if a.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := valueOrEnv(a.APIKey, "ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required, set llm.apiKey or ANTHROPIC_API_KEY")
	}
	return services.NewAnthropic(apiKey, a.Model, systemPrompt, maxTokens, logger), nil
}
