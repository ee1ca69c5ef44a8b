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

	"github.com/starford/ganban/internal/api"
	"github.com/starford/ganban/internal/boardservice"
	"github.com/starford/ganban/internal/gitrepo"
	"github.com/starford/ganban/internal/gitstore"
	"github.com/starford/ganban/internal/index"
	"github.com/starford/ganban/internal/mcpserver"
	"github.com/starford/ganban/internal/sse"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("repo_path", cfg.Board.RepoPath),
		slog.String("branch", cfg.Board.Branch),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := openStore(ctx, cfg.Board, logger)
	if err != nil {
		return err
	}
	gitDir, err := store.Repo().GitDir(ctx)
	if err != nil {
		return fmt.Errorf("resolve git dir: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc, err := boardservice.New(ctx, store,
		boardservice.WithIndex(db),
		boardservice.WithBroker(broker),
		boardservice.WithLogger(logger),
		boardservice.WithAutosave(cfg.Board.Autosave),
	)
	if err != nil {
		return fmt.Errorf("load board: %w", err)
	}

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ok, err := store.Exists(req.Context()); err != nil || !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
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

	// Pick up commits made to the board branch by other processes.
	g.Go(func() error {
		return index.WatchRef(gCtx, gitDir, store.Branch(), logger, func() {
			if err := svc.Reload(gCtx); err != nil {
				logger.Warn("reload after ref change failed", slog.String("error", err.Error()))
			}
		})
	})

	if cfg.Sync.Daemon {
		g.Go(func() error {
			interval := cfg.Sync.Interval
			if interval == 0 {
				n, err := svc.SyncInterval(gCtx)
				if err != nil {
					return nil
				}
				interval = n
			}
			return svc.Syncer().Daemon(gCtx, interval, svc.Sync)
		})
	}

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
		defer signal.Stop(quit)

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

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown stops the errgroup once the server has been shut down, so the
// watcher and the sync daemon exit with it.
var errShutdown = errors.New("shutdown")

// RunMCP serves the board over MCP on stdin/stdout. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	store, err := openStore(ctx, cfg.Board, logger)
	if err != nil {
		return err
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	svc, err := boardservice.New(ctx, store,
		boardservice.WithIndex(db),
		boardservice.WithLogger(logger),
		boardservice.WithAutosave(true),
	)
	if err != nil {
		return fmt.Errorf("load board: %w", err)
	}
	return mcpserver.New(svc).ServeStdio()
}

// logger initializes the structured JSON logger and makes it the default.
func (a *application) logger() *slog.Logger {
	out := a.logOutput
	if out == nil {
		out = os.Stdout
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func openStore(ctx context.Context, cfg BoardConfig, logger *slog.Logger) (*gitstore.Store, error) {
	repo, err := gitrepo.Open(ctx, cfg.RepoPath, gitrepo.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	return gitstore.New(repo, gitstore.WithBranch(cfg.Branch), gitstore.WithLogger(logger)), nil
}
