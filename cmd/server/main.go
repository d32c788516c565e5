package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/teachme/teachme"
	"github.com/teachme/teachme/internal/config"
	"github.com/teachme/teachme/internal/handlers"
	"github.com/teachme/teachme/internal/services"
	"github.com/teachme/teachme/internal/study"
)

const errLoggerKey = "err"

func main() {
	cfgDir, err := config.Dir()
	if err != nil {
		fatal(slog.Default(), "Failed to prepare config directory", err)
	}

	cfgPath := flag.String("config", filepath.Join(cfgDir, "config.yaml"), "path to the YAML configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load(*cfgPath, cfgDir)
	if err != nil {
		fatal(slog.Default(), "Failed to load configuration", err)
	}

	logger := cfg.Logger(os.Stdout)
	slog.SetDefault(logger)

	llm, err := cfg.NewLLM(context.Background(), logger)
	if err != nil {
		fatal(logger, "Failed to create LLM", err)
	}

	a, err := newApp(cfg, llm, logger)
	if err != nil {
		fatal(logger, "Failed to set up server", err)
	}
	defer a.close(logger)

	// SSE connections are long lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := a.main.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String(errLoggerKey, err.Error()))
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting", slog.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", slog.String(errLoggerKey, err.Error()))
		}

	case <-ctx.Done():
		stop()
		logger.Info("Start shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Gracefully shutdown the server
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String(errLoggerKey, err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String(errLoggerKey, err.Error()))
			}
		}
	}
}

// app holds what the server needs besides the listener.
type app struct {
	main   handlers.Main
	store  config.Store
	router http.Handler
}

// newApp parses the prompt template, opens the history store and builds the router. Everything opened
// is closed again when a later step fails.
func newApp(cfg config.Config, llm services.LLM, logger *slog.Logger) (_ app, err error) {
	prompts, err := study.NewPromptBuilder(cfg.Study.PromptTemplate)
	if err != nil {
		return app{}, err
	}

	// Serve static files
	staticFS, err := fs.Sub(teachme.StaticFS, "static")
	if err != nil {
		return app{}, fmt.Errorf("failed to open static files: %w", err)
	}

	store, err := cfg.OpenStore()
	if err != nil {
		return app{}, err
	}
	defer func() {
		if err != nil {
			_ = store.Close()
		}
	}()

	m, err := handlers.NewMain(services.NewGenerator(llm, logger), store, handlers.Options{
		Prompts:             prompts,
		MaxQuestionAttempts: cfg.Study.MaxQuestionAttempts,
		Suggestions:         cfg.Study.Suggestions,
	}, logger)
	if err != nil {
		return app{}, err
	}

	fileServer := http.FileServer(http.FS(staticFS))

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	r.Get("/", m.HandleHome)
	r.Get("/sse", m.HandleSSE)
	r.Post("/submit", m.HandleSubmit)
	r.Post("/reset", m.HandleReset)
	r.Post("/suggestion", m.HandleSuggestion)
	r.Post("/history/clear", m.HandleClearHistory)

	return app{main: m, store: store, router: r}, nil
}

func (a app) close(logger *slog.Logger) {
	if err := a.store.Close(); err != nil {
		logger.Error("Failed to close history store", slog.String(errLoggerKey, err.Error()))
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.String(errLoggerKey, err.Error()))
	os.Exit(1)
}
