// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/dagaz/internal/api"
	"github.com/starford/dagaz/internal/batch"
	"github.com/starford/dagaz/internal/cache"
	"github.com/starford/dagaz/internal/docservice"
	"github.com/starford/dagaz/internal/index"
	"github.com/starford/dagaz/internal/lockmgr"
	"github.com/starford/dagaz/internal/mcpserver"
	"github.com/starford/dagaz/internal/registry"
	"github.com/starford/dagaz/internal/sse"
	"github.com/starford/dagaz/internal/storage"
	"github.com/starford/dagaz/internal/syncer"
	"github.com/starford/dagaz/internal/txn"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("registry_path", cfg.Registry.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	// Initialize storage.
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// Initialize SQLite index.
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	// Lock manager, registry, metadata cache, transactions.
	locks := lockmgr.NewManager()
	reg := registry.New(cfg.Registry.Path, locks)
	if err := reg.Load(); err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	metaCache := cache.NewStorage(cfg.Cache.Path)
	if err := metaCache.Load(); err != nil {
		return fmt.Errorf("load cache: %w", err)
	}
	txns := txn.NewManager(locks, logger)

	deps := syncer.Deps{Store: store, Index: db, Registry: reg, Cache: metaCache, Logger: logger}

	// Run initial sync.
	if err := syncer.Sync(ctx, deps); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	svc := docservice.NewService(store, db, reg, metaCache, txns, logger)

	// One-shot batch mode.
	if app.manifest != "" {
		return runBatch(ctx, cfg, deps, app.manifest, app.results)
	}

	// Stdio MCP server mode.
	if app.mcpMode {
		logger.Info("Starting MCP server on stdio")
		return mcpserver.New(svc).ServeStdio()
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Build API router.
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

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	// stop cancels the group context after shutdown so the watcher exits.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gCtx := errgroup.WithContext(runCtx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		return syncer.Watch(gCtx, deps, cfg.Vault.Path, func(kind, path string) {
			broker.PublishDocumentEvent(kind, path)
		})
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
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

		stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// runBatch processes a TSV manifest once and writes the result TSV.
func runBatch(ctx context.Context, cfg *Config, deps syncer.Deps, manifestPath, resultsPath string) error {
	f, err := os.Open(manifestPath)
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	rows, err := batch.ReadManifest(f)
	if err != nil {
		return err
	}

	runner := batch.NewRunner(deps, cfg.Batch.Workers)
	results, err := runner.Run(ctx, rows)
	if err != nil {
		return err
	}

	out := os.Stdout
	if resultsPath != "" {
		outFile, err := os.Create(resultsPath)
		if err != nil {
			return fmt.Errorf("create results file: %w", err)
		}
		defer outFile.Close()
		out = outFile
	}
	return batch.WriteResults(out, results)
}
