package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/teachme/teachme/internal/models"
	"github.com/teachme/teachme/internal/study"
	"github.com/tmaxmax/go-sse"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// SSE event types for real-time updates.
var (
	contentSSEType = sse.Type("content")
	sidebarSSEType = sse.Type("sidebar")
)

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(highlighting.WithStyle("github")),
	),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// renderMarkdown converts a model reply to HTML. Raw HTML in the source is not rendered.
func renderMarkdown(source string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(source))
	}
	return template.HTML(buf.String())
}

// pageData is the view of a study.Snapshot used by the templates.
type pageData struct {
	Progress string
	Loading  bool
	Input    string

	Topic    string
	Question string
	Answer   string
	Feedback string

	History     []string
	Suggestions []string
}

func newPageData(s study.Snapshot) pageData {
	data := pageData{
		Progress:    string(s.Progress),
		Loading:     s.Loading,
		Input:       s.Input,
		Topic:       s.Conversation.Subject(),
		History:     s.History,
		Suggestions: s.Suggestions,
	}
	if q := s.Conversation.Question; q != nil {
		data.Question = q.Content
	}
	if a := s.Conversation.Answer; a != nil {
		data.Answer = a.Content
	}
	if f := s.Conversation.Feedback; f != nil {
		data.Feedback = f.Content
	}
	return data
}

// Pending reports whether the home panel is shown.
func (p pageData) Pending() bool { return p.Progress == string(models.ProgressPending) }

// Done reports whether the conversation is over and only a reset is accepted.
func (p pageData) Done() bool { return p.Progress == string(models.ProgressDone) }

func (m Main) render(name string, data pageData) (string, error) {
	var buf bytes.Buffer
	if err := m.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", name, err)
	}
	return buf.String(), nil
}

// publish pushes the re-rendered content panel and sidebar to every event stream of clientID.
func (m Main) publish(clientID string, s study.Snapshot) {
	data := newPageData(s)

	for _, ev := range []struct {
		name string
		typ  sse.EventType
	}{
		{"content", contentSSEType},
		{"sidebar", sidebarSSEType},
	} {
		rendered, err := m.render(ev.name, data)
		if err != nil {
			m.logger.Error("Failed to render partial",
				slog.String("partial", ev.name),
				slog.String(errLoggerKey, err.Error()))
			return
		}

		msg := sse.Message{
			Type: ev.typ,
		}
		msg.AppendData(rendered)
		if err := m.sseSrv.Publish(&msg, clientTopic(clientID)); err != nil {
			m.logger.Error("Failed to publish partial",
				slog.String("partial", ev.name),
				slog.String(errLoggerKey, err.Error()))
			return
		}
	}
}
