package handlers

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/teachme/teachme"
	"github.com/teachme/teachme/internal/study"
	"github.com/tmaxmax/go-sse"
)

// Store is the topic history storage shared by all clients, partitioned by client ID.
type Store interface {
	Topics(ctx context.Context, clientID string) ([]string, error)
	AddTopic(ctx context.Context, clientID, topic string) error
	ClearTopics(ctx context.Context, clientID string) error
}

// Options configures the study sessions created for new clients. Zero values select the defaults.
type Options struct {
	Prompts             study.PromptBuilder
	MaxQuestionAttempts int
	Suggestions         []string

	// SessionTTL is how long the session of an inactive client is kept in memory.
	SessionTTL time.Duration
	// MaxSessions bounds the number of sessions kept in memory.
	MaxSessions int
}

// Main serves the web front-end. Every client, identified by a cookie, owns one study.Controller whose
// state changes are pushed to the browser through server-sent events.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	generator study.Generator
	store     Store
	opts      Options

	sessions *sessions

	// ctx outlives the requests, generations run on it and stop on Shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	logger *slog.Logger
}

const (
	clientCookie = "teachme_client"

	errLoggerKey = "err"
)

// NewMain creates a new Main instance. It parses the HTML templates from the embedded filesystem and
// configures the SSE server to subscribe every session to the topic of its client. Idle sessions are
// evicted in the background until Shutdown.
func NewMain(generator study.Generator, store Store, opts Options, logger *slog.Logger) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"markdown": renderMarkdown,
	}).ParseFS(
		teachme.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, fmt.Errorf("failed to parse templates: %w", err)
	}

	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}

	logger = logger.With(slog.String("module", "handlers"))
	ctx, cancel := context.WithCancel(context.Background())
	registry := newSessions(opts.MaxSessions)
	go registry.runSweeper(ctx, opts.SessionTTL, logger)

	return Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				cookie, err := s.Req.Cookie(clientCookie)
				if err != nil || !registry.has(cookie.Value) {
					logger.Warn("Rejecting event stream of unknown client")
					return sse.Subscription{}, false
				}

				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      []string{sse.DefaultTopic, clientTopic(cookie.Value)},
				}, true
			},
		},
		templates: tmpl,
		generator: generator,
		store:     store,
		opts:      opts,
		sessions:  registry,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}, nil
}

func clientTopic(clientID string) string {
	return fmt.Sprintf("client-%s", clientID)
}

// controller returns the controller of clientID, creating it on first use. Only page loads create
// controllers, the other handlers use lookup.
func (m Main) controller(clientID string) *study.Controller {
	return m.sessions.getOrCreate(clientID, func() *study.Controller {
		return study.NewController(m.generator, clientHistory{store: m.store, clientID: clientID}, m.opts.Prompts, study.Options{
			MaxQuestionAttempts: m.opts.MaxQuestionAttempts,
			Suggestions:         m.opts.Suggestions,
			OnChange: func(s study.Snapshot) {
				m.publish(clientID, s)
			},
		}, m.logger.With(slog.String("client", clientID)))
	})
}

// lookup returns the controller of the client that sent r. It answers 404 Not Found when the client
// never loaded the page or its session was evicted, so the browser knows to reload.
func (m Main) lookup(w http.ResponseWriter, r *http.Request) (*study.Controller, bool) {
	cookie, err := r.Cookie(clientCookie)
	if err == nil {
		if c, ok := m.sessions.get(cookie.Value); ok {
			return c, true
		}
	}
	http.Error(w, "Unknown client, reload the page", http.StatusNotFound)
	return nil, false
}

// clientHistory binds the shared Store to one client.
type clientHistory struct {
	store    Store
	clientID string
}

func (h clientHistory) Topics(ctx context.Context) ([]string, error) {
	return h.store.Topics(ctx, h.clientID)
}

func (h clientHistory) AddTopic(ctx context.Context, topic string) error {
	return h.store.AddTopic(ctx, h.clientID, topic)
}

func (h clientHistory) ClearTopics(ctx context.Context) error {
	return h.store.ClearTopics(ctx, h.clientID)
}

// Shutdown gracefully terminates the Main instance. It cancels running generations, broadcasts a close
// message to all connected clients and waits up to 5 seconds for connections to terminate. After the
// timeout, any remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	m.cancel()

	e := &sse.Message{Type: sse.Type("close")}
	// We create a close event that complies with SSE spec requiring data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
