package main

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/teachme/teachme/internal/models"
	"github.com/teachme/teachme/internal/study"
)

type styles struct {
	title    lipgloss.Style
	label    lipgloss.Style
	muted    lipgloss.Style
	topic    lipgloss.Style
	answer   lipgloss.Style
	thinking lipgloss.Style
	errText  lipgloss.Style
	border   lipgloss.Style
}

func newStyles() styles {
	accent := lipgloss.AdaptiveColor{Light: "#3B5BDB", Dark: "#91A7FF"}
	muted := lipgloss.AdaptiveColor{Light: "#868E96", Dark: "#868E96"}

	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(accent),
		label:    lipgloss.NewStyle().Bold(true),
		muted:    lipgloss.NewStyle().Foreground(muted),
		topic:    lipgloss.NewStyle().Bold(true).Underline(true),
		answer:   lipgloss.NewStyle().PaddingLeft(2),
		thinking: lipgloss.NewStyle().Foreground(accent),
		errText:  lipgloss.NewStyle().Foreground(lipgloss.Color("#E03131")),
		border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
	}
}

// snapshotMsg carries a state change pushed by the controller while a submission runs.
type snapshotMsg study.Snapshot

// stateMsg carries the state read after a command finished.
type stateMsg struct {
	snapshot study.Snapshot
	err      error
}

const (
	pendingPlaceholder = "Which topic do you want to study?"
	startedPlaceholder = "Type your answer"
	defaultWidth       = 80
)

type model struct {
	ctx        context.Context
	controller *study.Controller
	updates    chan study.Snapshot

	snapshot study.Snapshot
	cycle    int
	err      error
	width    int

	input    textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	styles   styles

	logger *slog.Logger
}

func newModel(ctx context.Context, gen study.Generator, hist study.History, prompts study.PromptBuilder, opts study.Options, logger *slog.Logger) *model {
	updates := make(chan study.Snapshot, 1)
	opts.OnChange = func(s study.Snapshot) {
		latest(updates, s)
	}

	input := textarea.New()
	input.Placeholder = pendingPlaceholder
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(3)
	input.SetWidth(defaultWidth - 4)
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := &model{
		ctx:        ctx,
		controller: study.NewController(gen, hist, prompts, opts, logger),
		updates:    updates,
		width:      defaultWidth,
		input:      input,
		spinner:    sp,
		styles:     newStyles(),
		logger:     logger.With(slog.String("module", "tui")),
	}
	m.snapshot = m.controller.Snapshot(ctx)
	m.renderer = newRenderer(defaultWidth, logger)
	sp.Style = m.styles.thinking
	m.spinner = sp

	return m
}

// latest replaces any unread snapshot in ch with s. The controller serializes its notifications, so
// there is a single sender.
func latest(ch chan study.Snapshot, s study.Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func newRenderer(width int, logger *slog.Logger) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		logger.Warn("Markdown renderer unavailable, showing plain text", slog.String(errLoggerKey, err.Error()))
		return nil
	}
	return r
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.waitForSnapshot())
}

func (m *model) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-m.updates:
			return snapshotMsg(s)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *model) submit(text string) tea.Cmd {
	return func() tea.Msg {
		err := m.controller.Submit(m.ctx, text)
		return stateMsg{snapshot: m.controller.Snapshot(m.ctx), err: err}
	}
}

func (m *model) reset() tea.Cmd {
	return func() tea.Msg {
		m.controller.Reset(m.ctx)
		return stateMsg{snapshot: m.controller.Snapshot(m.ctx)}
	}
}

func (m *model) selectTopic(topic string) tea.Cmd {
	return func() tea.Msg {
		m.controller.SelectSuggestion(m.ctx, topic)
		return stateMsg{snapshot: m.controller.Snapshot(m.ctx)}
	}
}

func (m *model) clearHistory() tea.Cmd {
	return func() tea.Msg {
		err := m.controller.ClearHistory(m.ctx)
		return stateMsg{snapshot: m.controller.Snapshot(m.ctx), err: err}
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = max(msg.Width, 20)
		m.input.SetWidth(m.width - 4)
		m.renderer = newRenderer(m.width, m.logger)
		return m, nil

	case snapshotMsg:
		m.apply(study.Snapshot(msg))
		return m, m.waitForSnapshot()

	case stateMsg:
		m.apply(msg.snapshot)
		m.err = msg.err
		if errors.Is(msg.err, study.ErrBusy) {
			m.err = nil
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit

	case tea.KeyCtrlX:
		m.cycle = 0
		return m, m.clearHistory()

	case tea.KeyEnter:
		if m.snapshot.Progress == models.ProgressDone {
			m.cycle = 0
			return m, m.reset()
		}
		if m.snapshot.Loading {
			return m, nil
		}
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		return m, m.submit(text)

	case tea.KeyTab:
		topics := m.topics()
		if m.snapshot.Progress != models.ProgressPending || len(topics) == 0 {
			return m, nil
		}
		topic := topics[m.cycle%len(topics)]
		m.cycle++
		m.input.SetValue(topic)
		return m, m.selectTopic(topic)
	}

	if m.snapshot.Loading || m.snapshot.Progress == models.ProgressDone {
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// topics lists the suggestions followed by the history entries that are not suggestions.
func (m *model) topics() []string {
	topics := slices.Clone(m.snapshot.Suggestions)
	for _, t := range m.snapshot.History {
		if !slices.Contains(topics, t) {
			topics = append(topics, t)
		}
	}
	return topics
}

func (m *model) apply(s study.Snapshot) {
	m.snapshot = s

	switch s.Progress {
	case models.ProgressPending:
		m.input.Placeholder = pendingPlaceholder
	default:
		m.input.Placeholder = startedPlaceholder
	}
}

func (m *model) markdown(source string) string {
	if m.renderer == nil {
		return source
	}
	out, err := m.renderer.Render(source)
	if err != nil {
		return source
	}
	return strings.Trim(out, "\n")
}

func (m *model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.title.Render("teach.me"))
	b.WriteString("\n\n")
	b.WriteString(m.renderSidebar())
	b.WriteString("\n\n")

	conv := m.snapshot.Conversation
	if m.snapshot.Progress == models.ProgressPending {
		b.WriteString(m.styles.muted.Render("Type a topic or press Tab to pick one. You will get an interview question about it, answer it and receive feedback."))
		b.WriteString("\n\n")
	} else {
		var panel strings.Builder
		panel.WriteString(m.styles.topic.Render(conv.Subject()))
		if conv.Question != nil {
			panel.WriteString("\n\n" + m.styles.label.Render("Question") + "\n")
			panel.WriteString(m.markdown(conv.Question.Content))
		}
		if conv.Answer != nil {
			panel.WriteString("\n\n" + m.styles.label.Render("Your answer") + "\n")
			panel.WriteString(m.styles.answer.Render(conv.Answer.Content))
		}
		if conv.Feedback != nil {
			panel.WriteString("\n\n" + m.styles.label.Render("Feedback") + "\n")
			panel.WriteString(m.markdown(conv.Feedback.Content))
		}
		b.WriteString(m.styles.border.Width(m.width - 2).Render(panel.String()))
		b.WriteString("\n\n")
	}

	switch {
	case m.snapshot.Loading:
		b.WriteString(m.spinner.View() + m.styles.thinking.Render(" Thinking..."))
	case m.snapshot.Progress == models.ProgressDone:
		b.WriteString(m.styles.label.Render("Press Enter to study another topic"))
	default:
		b.WriteString(m.input.View())
	}
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(m.styles.errText.Render(m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(m.styles.muted.Render("enter submit • tab topics • ctrl+x clear history • esc quit"))
	b.WriteString("\n")

	return b.String()
}

func (m *model) renderSidebar() string {
	history := m.styles.muted.Render("no topics studied yet")
	if len(m.snapshot.History) > 0 {
		history = strings.Join(m.snapshot.History, " · ")
	}

	return m.styles.label.Render("Suggestions: ") + strings.Join(m.snapshot.Suggestions, " · ") + "\n" +
		m.styles.label.Render("History:     ") + history
}
