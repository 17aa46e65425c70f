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

	"github.com/starford/prose/internal/api"
	"github.com/starford/prose/internal/dialog"
	"github.com/starford/prose/internal/filetree"
	"github.com/starford/prose/internal/markdown"
	"github.com/starford/prose/internal/mcpserver"
	"github.com/starford/prose/internal/prefs"
	"github.com/starford/prose/internal/session"
	"github.com/starford/prose/internal/sse"
	"github.com/starford/prose/internal/storage"
	"github.com/starford/prose/internal/watch"
)

// core is the state shared by the HTTP and MCP front ends.
type core struct {
	logger   *slog.Logger
	store    storage.Backend
	renderer markdown.Renderer
	ctrl     *session.Controller
	tree     *filetree.Loader
}

func (c *core) close() {
	c.ctrl.Close()
	if err := c.store.Close(); err != nil {
		c.logger.Warn("storage close failed", slog.String("error", err.Error()))
	}
}

func setup(opts []Option) (*application, *slog.Logger, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return app, logger, nil
}

// newCore builds storage, the renderer and the session controller. If a
// workspace path is configured it is opened as the folder.
func newCore(ctx context.Context, cfg *Config, logger *slog.Logger, notifier session.Notifier) (*core, error) {
	store, err := storage.New(cfg.Workspace.Storage, storage.WithMaxRead(cfg.Editor.MaxFileSize))
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	renderer, err := markdown.New(cfg.Editor.Renderer)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init renderer: %w", err)
	}

	ctrl := session.NewController(session.Deps{
		Store:    store,
		Renderer: renderer,
		Notifier: notifier,
		Logger:   logger,
	}, session.Config{
		AutoSaveDelay: cfg.Editor.AutoSaveDelay,
		MaxFileSize:   cfg.Editor.MaxFileSize,
	})

	c := &core{
		logger:   logger,
		store:    store,
		renderer: renderer,
		ctrl:     ctrl,
		tree:     filetree.NewLoader(store, logger),
	}

	if dir := cfg.Workspace.Path; dir != "" {
		openCtx := dialog.WithAnswers(ctx, dialog.Answers{Directory: dir})
		if err := ctrl.Do(openCtx, func(s *session.Session) error {
			_, err := s.OpenFolder(openCtx)
			return err
		}); err != nil {
			c.close()
			return nil, fmt.Errorf("open workspace %s: %w", dir, err)
		}
	}
	return c, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("workspace_path", cfg.Workspace.Path),
		slog.String("storage", cfg.Workspace.Storage),
		slog.String("renderer", cfg.Editor.Renderer),
		slog.String("preferences_path", cfg.Preferences.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize preferences.
	prefsDB, err := prefs.Open(cfg.Preferences.Path)
	if err != nil {
		return fmt.Errorf("init preferences: %w", err)
	}
	defer prefsDB.Close()

	g, gCtx := errgroup.WithContext(ctx)

	// SSE broker and folder watcher. The watcher follows the session's open
	// folder and reports into the broker.
	broker := sse.NewBroker(time.Second, logger)
	defer broker.Close()
	watcher := watch.NewManager(gCtx, watch.DefaultQuiet, logger, broker.PublishTreeChange)
	defer watcher.Close()

	notifier := session.NotifierFunc(func(kind string, data any) {
		broker.Notify(kind, data)
		if kind != session.EventFolder {
			return
		}
		if m, ok := data.(map[string]string); ok {
			watcher.Reset(m["path"])
		}
	})

	c, err := newCore(gCtx, cfg, logger, notifier)
	if err != nil {
		return err
	}
	defer c.close()

	// Build API handler and router.
	h := api.NewHandler(c.ctrl, c.renderer, c.tree, prefsDB)
	apiRouter := api.NewRouter(api.Deps{
		Handler:     h,
		Assets:      api.NewAssetHandler(h.Root),
		Events:      broker,
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
	})

	// Build chi router.
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
		if _, err := c.ctrl.Snapshot(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdio until stdin closes.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}

	c, err := newCore(ctx, app.config, logger, nil)
	if err != nil {
		return err
	}
	defer c.close()

	srv := mcpserver.New(c.ctrl, c.renderer, c.tree, app.version)
	logger.Info("MCP server starting on stdio", slog.String("version", app.version))
	if err := srv.ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
