package study

import (
	"fmt"
	"strings"
	"text/template"
)

// DefaultPromptTemplate asks for one interview question about the topic, followed by a single
// feedback turn.
const DefaultPromptTemplate = `Generate a question that simulates a job interview about {{.Topic}}. ` +
	`After you generate the question I will send my answer and you will give me feedback. ` +
	`The feedback must be simple, objective and faithfully match the answer I sent. ` +
	`After the feedback there will be no further interaction.`

// PromptBuilder renders the topic prompt that opens a study session.
type PromptBuilder struct {
	tmpl *template.Template
}

// NewPromptBuilder parses text as a text/template. The template receives a value with a Topic field.
// An empty text selects DefaultPromptTemplate.
func NewPromptBuilder(text string) (PromptBuilder, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultPromptTemplate
	}

	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(text)
	if err != nil {
		return PromptBuilder{}, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return PromptBuilder{tmpl: tmpl}, nil
}

// Build returns the prompt for topic.
func (p PromptBuilder) Build(topic string) (string, error) {
	var sb strings.Builder
	if err := p.tmpl.Execute(&sb, struct{ Topic string }{Topic: topic}); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return sb.String(), nil
}
