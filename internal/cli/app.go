// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jeranaias/mockchat/internal/chat"
	"github.com/jeranaias/mockchat/internal/config"
	"github.com/jeranaias/mockchat/internal/logging"
	"github.com/jeranaias/mockchat/internal/model"
	"github.com/jeranaias/mockchat/internal/storage"
	"github.com/jeranaias/mockchat/internal/store"
	"github.com/jeranaias/mockchat/internal/stream"
)

const persistTimeout = 5 * time.Second

// App bundles everything a client command needs: the loaded config, a
// hydrated store, its backend and the orchestrator streaming into it.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Store  *store.Store
	Orch   *chat.Orchestrator

	backend storage.Backend
	logFile io.Closer
	watcher *config.Watcher

	persistMu sync.Mutex
	closed    bool
}

// appOptions tweak newApp.
type appOptions struct {
	// logToFile sends logs to a file so they do not mix with the
	// interactive display.
	logToFile bool
	stderr    io.Writer
	streamer  chat.Streamer
}

// newApp opens storage, hydrates the store and wires the orchestrator.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*App, error) {
	app := &App{Config: cfg}

	logger, closer, err := buildLogger(cfg.Logging, opts)
	if err != nil {
		return nil, err
	}
	app.Logger, app.logFile = logger, closer

	backend, err := storage.Open(storage.Kind(cfg.Storage.Backend), cfg.Storage.Path)
	if err != nil {
		app.closeLog()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	app.backend = backend

	app.Store = store.New(
		store.WithModels(registry(cfg)),
		store.WithLogger(logger),
	)
	app.Store.SetTheme(store.Theme(cfg.UI.Theme))
	if err := app.Store.Load(ctx, backend); err != nil {
		backend.Close()
		app.closeLog()
		return nil, err
	}

	streamer := opts.streamer
	if streamer == nil {
		streamer = stream.NewClientWithConfig(&stream.ClientConfig{
			Timeout: cfg.Client.Timeout(),
			Logger:  logger,
		})
	}
	app.Orch = chat.New(app.Store, streamer, chat.Config{
		BaseURL: cfg.Client.BaseURL,
		Logger:  logger,
		OnSessionEnd: func(s *chat.Session) {
			if err := app.Persist(context.Background()); err != nil {
				logger.Error("failed to persist after stream", "message_id", s.MessageID, "error", err)
			}
		},
	})
	return app, nil
}

// registry returns the built-in models with configured tunables applied and
// the configured default model first, so new conversations start on it.
func registry(cfg *config.Config) []model.ModelDescriptor {
	configs := cfg.ModelConfigs()
	models := model.DefaultModels()
	ordered := make([]model.ModelDescriptor, 0, len(models))
	for _, m := range models {
		m.Config = configs[m.ID]
		if m.ID == cfg.Client.DefaultModel {
			ordered = append([]model.ModelDescriptor{m}, ordered...)
		} else {
			ordered = append(ordered, m)
		}
	}
	return ordered
}

func buildLogger(cfg config.LoggingConfig, opts appOptions) (*slog.Logger, io.Closer, error) {
	if !opts.logToFile && cfg.File == "" {
		w := opts.stderr
		if w == nil {
			w = os.Stderr
		}
		return logging.New(logging.Options{Level: cfg.Level, Format: cfg.Format, Writer: w}), nil, nil
	}

	path := cfg.File
	if path == "" {
		dir, err := config.ConfigDir()
		if err != nil {
			return nil, nil, err
		}
		path = filepath.Join(dir, "mockchat.log")
	}
	path, err := storage.ExpandHome(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := logging.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	return logging.New(logging.Options{Level: cfg.Level, Format: cfg.Format, Writer: f}), f, nil
}

// Persist writes the store to the backend. Once the app is closed it does
// nothing: Close already wrote the final state.
func (a *App) Persist(ctx context.Context) error {
	a.persistMu.Lock()
	defer a.persistMu.Unlock()
	if a.closed {
		return nil
	}
	return a.persistLocked(ctx)
}

func (a *App) persistLocked(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	return a.Store.Persist(ctx, a.backend)
}

// WatchConfig pushes model tunables from path into the store whenever the
// file changes. A missing file is not watched.
func (a *App) WatchConfig(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	w, err := config.NewWatcher(path, func(cfg *config.Config) {
		a.Store.SetModelConfig(cfg.ModelConfigs())
	}, a.Logger)
	if err != nil {
		return err
	}
	a.watcher = w
	return nil
}

// Close aborts live streams, persists and releases resources. Sessions
// that end afterwards are not persisted. Close is safe to call twice.
func (a *App) Close() error {
	a.persistMu.Lock()
	if a.closed {
		a.persistMu.Unlock()
		return nil
	}
	a.persistMu.Unlock()

	if a.watcher != nil {
		a.watcher.Close()
	}
	a.Orch.AbortAll()

	a.persistMu.Lock()
	err := a.persistLocked(context.Background())
	a.closed = true
	if cerr := a.backend.Close(); err == nil {
		err = cerr
	}
	a.persistMu.Unlock()

	a.closeLog()
	return err
}

func (a *App) closeLog() {
	if a.logFile != nil {
		a.logFile.Close()
	}
}
