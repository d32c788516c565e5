package services

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/ollama/ollama/api"
	"github.com/teachme/teachme/internal/models"
)

// Ollama provides an implementation of the LLM interface for interacting with Ollama's language models.
// It manages connections to an Ollama server instance and handles streaming chat completions.
type Ollama struct {
	host         string
	model        string
	systemPrompt string
	maxTokens    int

	client *api.Client

	logger *slog.Logger
}

// NewOllama creates a new Ollama instance with the specified host URL and model name. The host
// parameter should be a valid URL pointing to an Ollama server. If the provided host URL is invalid,
// an error is returned.
func NewOllama(host, model, systemPrompt string, maxTokens int, logger *slog.Logger) (Ollama, error) {
	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	return Ollama{
		host:         host,
		model:        model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		client:       api.NewClient(u, &http.Client{}),
		logger:       logger.With(slog.String("module", "ollama")),
	}, nil
}

// openAIRole maps a message role onto the role names used by OpenAI compatible chat APIs. Function
// results without a tool call id are not accepted by those APIs, so they are sent as user turns.
func openAIRole(role models.Role) string {
	switch role {
	case models.RoleModel:
		return "assistant"
	case models.RoleSystem:
		return "system"
	default:
		return "user"
	}
}

// Chat implements the LLM interface by streaming responses from the Ollama model. The maximum number
// of generated tokens is passed as the num_predict option.
func (o Ollama) Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs := make([]api.Message, len(messages))
		for i, msg := range messages {
			msgs[i] = api.Message{
				Role:    openAIRole(msg.Role),
				Content: msg.Content,
			}
		}
		if o.systemPrompt != "" {
			msgs = slices.Insert(msgs, 0, api.Message{
				Role:    "system",
				Content: o.systemPrompt,
			})
		}

		t := true
		req := api.ChatRequest{
			Model:    o.model,
			Messages: msgs,
			Stream:   &t,
		}
		if o.maxTokens > 0 {
			req.Options = map[string]any{"num_predict": o.maxTokens}
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		// stopped is set when the consumer stops iterating, so the resulting cancellation is not an error.
		stopped := false
		if err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
			if !stopped && !yield(res.Message.Content, nil) {
				stopped = true
				cancel()
			}
			return nil
		}); err != nil && !stopped {
			yield("", fmt.Errorf("error sending request: %w", err))
		}
	}
}
