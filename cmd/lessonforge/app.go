package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"lessonforge/internal/adjustment"
	"lessonforge/internal/assessment"
	"lessonforge/internal/config"
	"lessonforge/internal/llm"
	"lessonforge/internal/logging"
	"lessonforge/internal/performance"
	"lessonforge/internal/store"
	"lessonforge/internal/usage"
)

// newLLMClient is replaced in tests.
var newLLMClient = llm.NewClient

// app holds the wired pipeline for one command invocation.
type app struct {
	ws       string
	cfg      *config.Config
	store    *store.Store
	registry *assessment.Registry
	queue    *adjustment.Queue
	analyzer *performance.Analyzer
}

func resolveWorkspace() (string, error) {
	ws := workspace
	if ws == "" {
		var err error
		if ws, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	return filepath.Abs(ws)
}

func configFile(ws string) string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(ws, usage.DirName, "config.yaml")
}

// loadConfig reads and validates the workspace config. Relative sqlite
// paths are resolved against the workspace.
func loadConfig(ws string) (*config.Config, error) {
	cfg, err := config.Load(configFile(ws))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Database.Driver != store.DriverPostgres && cfg.Database.DSN != ":memory:" &&
		!filepath.IsAbs(cfg.Database.DSN) && filepath.VolumeName(cfg.Database.DSN) == "" &&
		!strings.HasPrefix(cfg.Database.DSN, "file:") {
		cfg.Database.DSN = filepath.Join(ws, cfg.Database.DSN)
	}
	return cfg, nil
}

// openApp loads config, starts category logging and opens the store.
func openApp(ctx context.Context) (*app, error) {
	ws, err := resolveWorkspace()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(ws)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	if err := logging.Initialize(filepath.Join(ws, usage.DirName, "logs"), logging.Options{
		DebugMode:  cfg.Logging.DebugMode || verbose,
		Level:      level,
		JSONFormat: cfg.Logging.Format == "json",
		Categories: cfg.Logging.Categories,
	}); err != nil {
		logger.Warn("Category logging disabled", zap.Error(err))
	} else if logging.IsDebugMode() {
		logger.Debug("Category logs enabled", zap.String("dir", filepath.Join(ws, usage.DirName, "logs")))
	}

	st, err := store.Open(ctx, store.Options{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	logger.Debug("Store opened", zap.String("driver", st.Driver()))

	queue := adjustment.NewQueue(st, cfg.Queue.BatchSize)
	return &app{
		ws:       ws,
		cfg:      cfg,
		store:    st,
		registry: assessment.NewRegistry(st, cfg.Analyzer.Window*2),
		queue:    queue,
		analyzer: performance.NewAnalyzer(st, queue, performance.ThresholdsFromConfig(cfg.Analyzer)),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("Failed to close store", zap.Error(err))
	}
}

// commandContext applies the global timeout and cancels on SIGINT/SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}
