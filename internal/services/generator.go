package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/teachme/teachme/internal/models"
)

// LLM represents a large language model that continues a role-tagged conversation. It returns an
// iterator that yields response chunks and potential errors.
type LLM interface {
	Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error]
}

// Generator turns a conversation into exactly one model reply. It never leaves the caller without a
// message: on failure it returns a user-facing fallback message together with a *GenerationError, so
// callers may display the message and still tell real replies from failures.
type Generator struct {
	llm LLM

	logger *slog.Logger
}

// GenerationError describes a failed generation. Unavailable is set when the provider signalled a
// temporary outage.
type GenerationError struct {
	Unavailable bool
	Err         error
}

const (
	// UnavailableMessage is the reply content used when the provider is temporarily unavailable.
	UnavailableMessage = "The service is temporarily unavailable. Please try again later."
	// GenericErrorMessage is the reply content used for any other generation failure.
	GenericErrorMessage = "There was an error processing your request."

	errLoggerKey = "err"
)

var (
	errEmptyHistory = errors.New("history is empty")
	errEmptyReply   = errors.New("model returned an empty reply")
)

// NewGenerator creates a Generator backed by llm.
func NewGenerator(llm LLM, logger *slog.Logger) Generator {
	return Generator{
		llm:    llm,
		logger: logger.With(slog.String("module", "generator")),
	}
}

func (e *GenerationError) Error() string {
	if e.Unavailable {
		return fmt.Sprintf("generation service unavailable: %v", e.Err)
	}
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Generate sends history to the model and collects the streamed reply into a single message with the
// model role. The last message of history is the one being answered. A reply made only of whitespace
// is a failure.
func (g Generator) Generate(ctx context.Context, history []models.Message) (models.Message, error) {
	if len(history) == 0 {
		return g.fail(errEmptyHistory)
	}

	var sb strings.Builder
	for chunk, err := range g.llm.Chat(ctx, history) {
		if err != nil {
			return g.fail(err)
		}
		sb.WriteString(chunk)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return g.fail(errEmptyReply)
	}

	return models.Message{
		Role:    models.RoleModel,
		Content: sb.String(),
	}, nil
}

func (g Generator) fail(err error) (models.Message, error) {
	genErr := &GenerationError{
		Unavailable: IsUnavailable(err),
		Err:         err,
	}

	content := GenericErrorMessage
	if genErr.Unavailable {
		g.logger.Error("Generation service unavailable", slog.String(errLoggerKey, err.Error()))
		content = UnavailableMessage
	} else {
		g.logger.Error("Failed to generate reply", slog.String(errLoggerKey, err.Error()))
	}

	return models.Message{
		Role:    models.RoleModel,
		Content: content,
	}, genErr
}
