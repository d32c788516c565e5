// Package study implements the conversation flow of a study session: the user picks a topic, the
// model asks an interview question about it, the user answers and the model gives feedback.
package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/teachme/teachme/internal/models"
)

// Generator produces the next model message for a conversation. Implementations always return a
// displayable message; a non-nil error marks it as a fallback produced by a failed generation.
type Generator interface {
	Generate(ctx context.Context, history []models.Message) (models.Message, error)
}

// History is the durable list of topics studied by one client.
type History interface {
	Topics(ctx context.Context) ([]string, error)
	AddTopic(ctx context.Context, topic string) error
	ClearTopics(ctx context.Context) error
}

// Options tunes a Controller. Zero values select the defaults.
type Options struct {
	// MaxQuestionAttempts bounds how many times a question is regenerated while the model keeps
	// returning questions that were already asked in this session.
	MaxQuestionAttempts int
	// Suggestions are the topics offered to the user besides the history.
	Suggestions []string
	// OnChange, if set, receives a snapshot after every state change.
	OnChange func(Snapshot)
}

// Snapshot is a point-in-time view of a Controller, used by the presentation layers.
type Snapshot struct {
	Progress     models.Progress
	Loading      bool
	Input        string
	Conversation models.Conversation
	History      []string
	Suggestions  []string
}

// Controller owns the progress state machine and the transcript of one client. It is safe for
// concurrent use. The generation requests of a session are issued one after another.
type Controller struct {
	generator Generator
	history   History
	prompts   PromptBuilder

	maxAttempts int
	suggestions []string
	onChange    func(Snapshot)

	// notifyMu serializes OnChange calls so observers see snapshots in order.
	notifyMu sync.Mutex

	mu                sync.Mutex
	progress          models.Progress
	conversation      models.Conversation
	previousQuestions map[string]struct{}
	input             string
	loading           bool
	// session changes on every reset, so replies requested before a reset are dropped.
	session uint64

	logger *slog.Logger
}

const (
	// DefaultMaxQuestionAttempts is used when Options.MaxQuestionAttempts is not positive.
	DefaultMaxQuestionAttempts = 5

	errLoggerKey = "err"
)

// DefaultSuggestions are the topics offered when Options.Suggestions is empty.
var DefaultSuggestions = []string{"HTML", "CSS", "Python", "Javascript"}

// ErrBusy is returned by Submit while a previous submission is still waiting for the model.
var ErrBusy = errors.New("a submission is already in progress")

// NewController creates a Controller in the pending state.
func NewController(generator Generator, history History, prompts PromptBuilder, opts Options, logger *slog.Logger) *Controller {
	maxAttempts := opts.MaxQuestionAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxQuestionAttempts
	}
	suggestions := opts.Suggestions
	if len(suggestions) == 0 {
		suggestions = DefaultSuggestions
	}

	return &Controller{
		generator:         generator,
		history:           history,
		prompts:           prompts,
		maxAttempts:       maxAttempts,
		suggestions:       slices.Clone(suggestions),
		onChange:          opts.OnChange,
		progress:          models.ProgressPending,
		previousQuestions: make(map[string]struct{}),
		logger:            logger.With(slog.String("module", "study")),
	}
}

// Submit processes text according to the current progress. In the pending state text is the topic:
// it is written to the history, and a question is generated. In the started state text is the answer
// and feedback is generated. Empty text and submissions in the done state are ignored.
//
// Submit blocks until the model replied. It returns ErrBusy if another submission is still loading.
func (c *Controller) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return ErrBusy
	}

	switch c.progress {
	case models.ProgressPending:
		return c.startTopic(ctx, text)
	case models.ProgressStarted:
		return c.answer(ctx, text)
	default:
		c.mu.Unlock()
		return nil
	}
}

// startTopic is called with c.mu held and releases it.
func (c *Controller) startTopic(ctx context.Context, topic string) error {
	content, err := c.prompts.Build(topic)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to build topic prompt: %w", err)
	}

	// The topic is recorded before the model is contacted, so it survives a failed generation.
	if err := c.history.AddTopic(ctx, topic); err != nil {
		c.logger.Error("Failed to add topic to history",
			slog.String("topic", topic),
			slog.String(errLoggerKey, err.Error()))
	}

	prompt := models.Message{
		Role:    models.RoleUser,
		Content: content,
		Subject: topic,
	}
	c.progress = models.ProgressStarted
	c.input = ""
	c.loading = true
	_ = c.conversation.Append(prompt)
	session := c.session
	c.mu.Unlock()
	c.notify(ctx)

	question, fresh := c.generateQuestion(ctx, prompt)

	c.mu.Lock()
	if c.session != session {
		c.mu.Unlock()
		c.logger.Debug("Dropping question of a reset session", slog.String("topic", topic))
		return nil
	}
	if fresh {
		c.previousQuestions[question.Content] = struct{}{}
	}
	_ = c.conversation.Append(question)
	c.loading = false
	c.mu.Unlock()
	c.notify(ctx)

	return nil
}

// generateQuestion asks the model for a question until it returns one that was not asked before in
// this controller's lifetime, or until the attempts run out, in which case the last duplicate is
// used. fresh is false when the returned message must not be remembered as an asked question.
func (c *Controller) generateQuestion(ctx context.Context, prompt models.Message) (models.Message, bool) {
	var question models.Message
	for attempt := 1; ; attempt++ {
		msg, err := c.generator.Generate(ctx, []models.Message{prompt})
		if err != nil {
			c.logger.Warn("Question generation failed",
				slog.Int("attempt", attempt),
				slog.String(errLoggerKey, err.Error()))
			return msg, false
		}
		question = msg

		if !c.asked(question.Content) {
			return question, true
		}
		if attempt >= c.maxAttempts {
			c.logger.Warn("Accepting a repeated question, attempts exhausted",
				slog.Int("attempts", attempt),
				slog.String("question", question.Content))
			return question, true
		}
		c.logger.Debug("Model repeated a question, retrying", slog.Int("attempt", attempt))
	}
}

func (c *Controller) asked(question string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.previousQuestions[question]
	return ok
}

// answer is called with c.mu held and releases it.
func (c *Controller) answer(ctx context.Context, text string) error {
	if err := c.conversation.Append(models.Message{
		Role:    models.RoleUser,
		Content: text,
	}); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to append answer: %w", err)
	}
	history := c.conversation.Messages()
	c.input = ""
	c.loading = true
	session := c.session
	c.mu.Unlock()
	c.notify(ctx)

	feedback, err := c.generator.Generate(ctx, history)
	if err != nil {
		c.logger.Warn("Feedback generation failed", slog.String(errLoggerKey, err.Error()))
	}

	c.mu.Lock()
	if c.session != session {
		c.mu.Unlock()
		c.logger.Debug("Dropping feedback of a reset session")
		return nil
	}
	_ = c.conversation.Append(feedback)
	c.progress = models.ProgressDone
	c.loading = false
	c.mu.Unlock()
	c.notify(ctx)

	return nil
}

// Reset discards the transcript and returns to the pending state. Previously asked questions and the
// topic history are kept.
func (c *Controller) Reset(ctx context.Context) {
	c.mu.Lock()
	c.reset()
	c.mu.Unlock()
	c.notify(ctx)
}

func (c *Controller) reset() {
	c.progress = models.ProgressPending
	c.conversation = models.Conversation{}
	c.loading = false
	c.session++
}

// SelectSuggestion puts topic into the input without submitting it.
func (c *Controller) SelectSuggestion(ctx context.Context, topic string) {
	c.mu.Lock()
	c.input = topic
	c.mu.Unlock()
	c.notify(ctx)
}

// ClearHistory deletes the topic history and reinitializes the controller: the transcript, the input
// and the previously asked questions are discarded as well.
func (c *Controller) ClearHistory(ctx context.Context) error {
	c.mu.Lock()
	if err := c.history.ClearTopics(ctx); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to clear history: %w", err)
	}
	c.reset()
	c.input = ""
	c.previousQuestions = make(map[string]struct{})
	c.mu.Unlock()
	c.notify(ctx)

	return nil
}

// Snapshot returns the current state. A history that cannot be read is logged and reported as empty.
func (c *Controller) Snapshot(ctx context.Context) Snapshot {
	topics, err := c.history.Topics(ctx)
	if err != nil {
		c.logger.Error("Failed to read history", slog.String(errLoggerKey, err.Error()))
		topics = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Progress:     c.progress,
		Loading:      c.loading,
		Input:        c.input,
		Conversation: c.conversation,
		History:      topics,
		Suggestions:  slices.Clone(c.suggestions),
	}
}

func (c *Controller) notify(ctx context.Context) {
	if c.onChange == nil {
		return
	}

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.onChange(c.Snapshot(ctx))
}
