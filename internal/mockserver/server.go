// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mockserver is a fake LLM backend. It answers chat requests with
// canned replies, either as one JSON object or as a paced stream of
// "data: {json}" frames.
package mockserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/jeranaias/mockchat/internal/config"
	"github.com/jeranaias/mockchat/internal/model"
)

// Options configures a Server. Zero delays disable the corresponding pause.
type Options struct {
	Addr string

	ThinkDelayMin, ThinkDelayMax           time.Duration
	TokenDelayMax                          time.Duration
	CompletionDelayMin, CompletionDelayMax time.Duration

	// MaxTokensPerSecond caps token emission across all streams. 0 disables.
	MaxTokensPerSecond float64

	ShutdownTimeout time.Duration

	Models    []model.ModelDescriptor
	Responder Responder
	Rand      *rand.Rand
	Logger    *slog.Logger
}

// OptionsFromConfig maps the server section of the config file.
func OptionsFromConfig(cfg config.ServerConfig) Options {
	opts := Options{
		Addr:               cfg.Addr,
		TokenDelayMax:      cfg.TokenDelay(),
		MaxTokensPerSecond: cfg.MaxTokensPerSecond,
		ShutdownTimeout:    cfg.ShutdownTimeout(),
	}
	opts.ThinkDelayMin, opts.ThinkDelayMax = cfg.ThinkDelay()
	opts.CompletionDelayMin, opts.CompletionDelayMax = cfg.CompletionDelay()
	return opts
}

// Server serves the mock chat API.
type Server struct {
	opts    Options
	router  chi.Router
	logger  *slog.Logger
	limiter *rate.Limiter

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a Server and its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Responder == nil {
		opts.Responder = NewGenerator(rand.New(rand.NewPCG(opts.Rand.Uint64(), opts.Rand.Uint64())))
	}
	if len(opts.Models) == 0 {
		opts.Models = model.DefaultModels()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		opts:   opts,
		logger: opts.Logger,
		rng:    opts.Rand,
	}
	if opts.MaxTokensPerSecond > 0 {
		burst := int(opts.MaxTokensPerSecond)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.MaxTokensPerSecond), burst)
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(cors)

	r.Route("/api", func(r chi.Router) {
		r.Get("/models", s.handleModels)
		r.Route("/chat", func(r chi.Router) {
			r.Post("/gpt", s.handleChat)
			r.Post("/doubao", s.handleChat)
			r.Post("/deepseek", s.handleChat)
		})
	})
	return r
}

// ListenAndServe listens on Options.Addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		// Streams stay open for as long as the reply takes.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mock server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down mock server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// between returns a random duration in [lo, hi].
func (s *Server) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + time.Duration(s.rng.Int64N(int64(hi-lo)+1))
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
