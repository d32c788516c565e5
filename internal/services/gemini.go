package services

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/teachme/teachme/internal/models"
	"google.golang.org/genai"
)

// Gemini provides an implementation of the LLM interface for Google's Gemini models. It uses the chat
// session API: all messages but the last become the session history and the last one is sent as the
// new turn.
type Gemini struct {
	model        string
	systemPrompt string
	maxTokens    int

	client *genai.Client

	logger *slog.Logger
}

// NewGemini creates a new Gemini instance authenticated with apiKey. It returns an error if the
// underlying client cannot be created.
func NewGemini(ctx context.Context, apiKey, model, systemPrompt string, maxTokens int, logger *slog.Logger) (Gemini, error) {
	return newGemini(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}, model, systemPrompt, maxTokens, logger)
}

func newGemini(ctx context.Context, cfg *genai.ClientConfig, model, systemPrompt string, maxTokens int, logger *slog.Logger) (Gemini, error) {
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return Gemini{}, fmt.Errorf("error creating gemini client: %w", err)
	}

	return Gemini{
		model:        model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		client:       client,
		logger:       logger.With(slog.String("module", "gemini")),
	}, nil
}

func geminiRole(role models.Role) genai.Role {
	if role == models.RoleModel {
		return genai.RoleModel
	}
	return genai.RoleUser
}

// geminiContents maps messages onto the session history. System messages are not part of a Gemini
// history, they are folded into the system instruction instead.
func geminiContents(messages []models.Message) ([]*genai.Content, string) {
	var system string
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += msg.Content
			continue
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, geminiRole(msg.Role)))
	}
	return contents, system
}

// Chat implements the LLM interface. Gemini answers the whole turn at once, so the iterator yields a
// single chunk.
func (g Gemini) Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if len(messages) == 0 {
			yield("", errEmptyHistory)
			return
		}

		last := messages[len(messages)-1]
		history, system := geminiContents(messages[:len(messages)-1])
		switch {
		case g.systemPrompt != "" && system != "":
			system = g.systemPrompt + "\n" + system
		case g.systemPrompt != "":
			system = g.systemPrompt
		}

		cfg := &genai.GenerateContentConfig{
			MaxOutputTokens: int32(g.maxTokens),
		}
		if system != "" {
			cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
		}

		chat, err := g.client.Chats.Create(ctx, g.model, cfg, history)
		if err != nil {
			yield("", fmt.Errorf("error creating chat: %w", err))
			return
		}

		g.logger.Debug("Sending message",
			slog.Int("history", len(history)),
			slog.String("message", last.Content))

		res, err := chat.SendMessage(ctx, genai.Part{Text: last.Content})
		if err != nil {
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}

		yield(res.Text(), nil)
	}
}
