package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/teachme/teachme/internal/config"
	"github.com/teachme/teachme/internal/services"
	"github.com/teachme/teachme/internal/study"
)

// terminalClientID partitions the history of the terminal front-end from the browser clients.
const terminalClientID = "terminal"

const errLoggerKey = "err"

// terminalHistory binds the shared store to the terminal client.
type terminalHistory struct {
	store config.Store
}

func (h terminalHistory) Topics(ctx context.Context) ([]string, error) {
	return h.store.Topics(ctx, terminalClientID)
}

func (h terminalHistory) AddTopic(ctx context.Context, topic string) error {
	return h.store.AddTopic(ctx, terminalClientID, topic)
}

func (h terminalHistory) ClearTopics(ctx context.Context) error {
	return h.store.ClearTopics(ctx, terminalClientID)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfgDir, err := config.Dir()
	if err != nil {
		return err
	}

	cfgPath := flag.String("config", filepath.Join(cfgDir, "config.yaml"), "path to the YAML configuration file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath, cfgDir)
	if err != nil {
		return err
	}

	// The terminal is owned by the UI, logs go to a file next to the configuration.
	logFile, err := os.OpenFile(filepath.Join(cfgDir, "tui.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer logFile.Close()
	logger := cfg.Logger(logFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	llm, err := cfg.NewLLM(ctx, logger)
	if err != nil {
		return fmt.Errorf("error creating llm: %w", err)
	}

	store, err := cfg.OpenStore()
	if err != nil {
		return fmt.Errorf("error opening history store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close history store", slog.String(errLoggerKey, err.Error()))
		}
	}()

	prompts, err := study.NewPromptBuilder(cfg.Study.PromptTemplate)
	if err != nil {
		return err
	}

	m := newModel(ctx, services.NewGenerator(llm, logger), terminalHistory{store: store}, prompts, study.Options{
		MaxQuestionAttempts: cfg.Study.MaxQuestionAttempts,
		Suggestions:         cfg.Study.Suggestions,
	}, logger)

	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("error running terminal ui: %w", err)
	}
	return nil
}
