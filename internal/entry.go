// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/raido/internal/api"
	"github.com/starford/raido/internal/govern"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/pipeline"
	"github.com/starford/raido/internal/reader"
	"github.com/starford/raido/internal/recognize"
	"github.com/starford/raido/internal/search"
	"github.com/starford/raido/internal/sse"
)

// NewLogger builds the structured JSON logger. When a log file is configured
// the output is duplicated into a size-rotated file.
func NewLogger(cfg *Config) *slog.Logger {
	var w io.Writer = os.Stdout
	if cfg.App.LogFile.Path != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.App.LogFile.Path,
			MaxSize:    cfg.App.LogFile.MaxSizeMB,
			MaxBackups: cfg.App.LogFile.MaxBackups,
			MaxAge:     cfg.App.LogFile.MaxAgeDays,
		})
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// NewService assembles the component graph shared by the HTTP server, the
// MCP server, and the one-shot CLI commands.
func NewService(cfg *Config, logger *slog.Logger) (*api.Service, error) {
	gov, err := govern.New(govern.Config{
		WarningMB:      cfg.Memory.WarningMB,
		CriticalMB:     cfg.Memory.CriticalMB,
		QueryCacheSize: cfg.Memory.QueryCacheSize,
		FileCacheSize:  cfg.Memory.FileCacheSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init governor: %w", err)
	}

	rec := recognize.NewDefault(cfg.Extract.Dedupe, logger)
	rd := reader.New(reader.Options{RoleHeaders: true}, logger)

	extractor := pipeline.NewExtractor(rec, rd, gov, pipeline.Options{
		Workers:             cfg.Extract.Workers,
		CPUPercent:          cfg.Extract.CPUPercent,
		MaxFileSizeMB:       cfg.Extract.MaxFileSizeMB,
		MaxTotalSizeGB:      cfg.Extract.MaxTotalSizeGB,
		RAMBufferMB:         cfg.Extract.RAMBufferMB,
		Patterns:            cfg.Archive.Patterns,
		ConversationEntries: cfg.Extract.ConversationEntries,
	}, logger)

	builder := index.NewBuilder(rd, gov, index.BuildOptions{
		Workers:       cfg.Index.Workers,
		CPUPercent:    cfg.Index.CPUPercent,
		MaxFileSizeMB: cfg.Extract.MaxFileSizeMB,
	}, logger)

	searcher := search.New(gov, search.Options{
		ContextLines:        cfg.Search.ContextLines,
		SimilarityThreshold: cfg.Search.SimilarityThreshold,
		StemCutoff:          cfg.Search.StemCutoff,
		CaseSensitive:       cfg.Search.CaseSensitive,
		DefaultLogic:        search.Logic(cfg.Search.Logic),
		MaxSnippetsPerFile:  cfg.Search.MaxSnippetsPerFile,
	}, logger)

	return api.NewService(extractor, builder, searcher, cfg.Index.Path, logger), nil
}

// Run starts the HTTP server, the archive watcher, and the SSE broker, and
// blocks until ctx is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = NewLogger(cfg)
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("archive_path", cfg.Archive.Path),
		slog.String("index_path", cfg.Index.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Archive.Path, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	svc, err := NewService(cfg, logger)
	if err != nil {
		return err
	}

	// Load a previously built index if one exists.
	if err := svc.LoadIndex(); err != nil {
		logger.Warn("no index loaded at startup", slog.String("error", err.Error()))
	}

	broker := sse.NewBroker(250 * time.Millisecond)
	defer broker.Close()

	svc.OnProgress(broker.PublishProgress)

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Archive watcher: mark the loaded index stale on file changes and
	// tell SSE clients.
	g.Go(func() error {
		err := index.Watch(gCtx, cfg.Archive.Path, logger, func() {
			svc.MarkStale()
			broker.Publish(sse.Event{Type: "index.stale", Data: map[string]string{
				"root": cfg.Archive.Path,
			}})
		})
		if err != nil {
			logger.Warn("watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
