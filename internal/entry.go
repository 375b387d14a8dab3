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
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/scenesync/internal/api"
	"github.com/starford/scenesync/internal/autosave"
	"github.com/starford/scenesync/internal/collab"
	"github.com/starford/scenesync/internal/coordinator"
	"github.com/starford/scenesync/internal/gateway"
	"github.com/starford/scenesync/internal/index"
	"github.com/starford/scenesync/internal/mcpserver"
	"github.com/starford/scenesync/internal/models"
	"github.com/starford/scenesync/internal/sceneservice"
	"github.com/starford/scenesync/internal/sse"
	"github.com/starford/scenesync/internal/storage"
	"github.com/starford/scenesync/internal/thumbnail"
	"github.com/starford/scenesync/internal/tracing"
	"github.com/starford/scenesync/internal/view"
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

	// MCP owns stdout in stdio mode.
	var logOut io.Writer = os.Stdout
	if app.mcp {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_root", cfg.Storage.Root),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("persistence", cfg.Persistence.Mode),
		slog.Bool("collaboration", cfg.Collaboration.Enabled),
		slog.String("renderer", cfg.Thumbnail.Renderer),
		slog.String("log_level", cfg.App.LogLevel.String()))

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if err := os.MkdirAll(cfg.Storage.Root, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	svc := sceneservice.NewService(store, db, cfg.Cache.ListingTTL)

	var persist gateway.Persistence = sceneservice.NewLocalGateway(svc)
	if cfg.Persistence.Remote() {
		persist = gateway.NewHTTPPersistence(cfg.Persistence.BaseURL, cfg.Persistence.Token, cfg.Persistence.Timeout)
	}

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	deps := api.Deps{Scenes: svc, Events: broker}

	var collabGW gateway.Collaboration
	if cfg.Collaboration.Enabled {
		rooms, err := collab.NewRedisRooms(cfg.Collaboration.RedisURL, cfg.Collaboration.RoomTTL, logger)
		if err != nil {
			return fmt.Errorf("init collaboration: %w", err)
		}
		defer rooms.Close()
		collabGW = rooms
		deps.Rooms = rooms
	}

	canvas := view.New(broker)
	tracker := autosave.NewTracker()

	thumbs := thumbnail.New(newRenderer(cfg.Thumbnail, logger), persist, logger,
		thumbnail.WithOptions(thumbnail.Options{
			MaxDimension: cfg.Thumbnail.MaxDimension,
			Padding:      cfg.Thumbnail.Padding,
			Background:   true,
		}),
		thumbnail.WithInvalidate(func() {
			svc.InvalidateListings()
			broker.InvalidateListings()
		}),
	)

	coord := coordinator.New(persist, collabGW, logger,
		coordinator.WithPublisher(broker),
		coordinator.WithReinit(tracker.Reset),
		coordinator.WithReporter(func(msg string) {
			logger.Warn("coordinator: load failed", slog.String("message", msg))
		}),
	)
	coord.AttachView(canvas)
	defer func() {
		coord.DetachView()
		coord.Wait()
		thumbs.Wait()
	}()

	deps.Coordinator = coord
	deps.Canvas = canvas
	deps.Thumbnails = thumbs
	deps.Autosave = tracker

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	var ready atomic.Bool
	if initial := cfg.App.InitialScene; initial.Set() {
		ref := models.DocumentRef{WorkspaceID: initial.WorkspaceID, DocumentID: initial.DocumentID}
		g.Go(func() error {
			coord.LoadDocument(gCtx, ref, coordinator.LoadOptions{
				IsInitialLoad: true,
				OnInitialLoad: func(scene *models.Scene) {
					ready.Store(true)
					logger.Info("initial scene resolved",
						slog.String("document", ref.String()),
						slog.Bool("loaded", scene != nil))
				},
			})
			return nil
		})
	} else {
		ready.Store(true)
	}

	g.Go(func() error {
		err := index.Watch(gCtx, db, store, cfg.Storage.Root, logger, func(kind string, ref models.DocumentRef) {
			if kind == "deleted" {
				thumbs.ClearHash(ref.DocumentID)
				tracker.Forget(ref.DocumentID)
			}
			broker.PublishSceneEvent(kind, ref)
		})
		if err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	if app.mcp {
		g.Go(func() error {
			defer cancel()
			logger.Info("Starting MCP server on stdio")
			return mcpserver.New(svc, coord).ServeStdio()
		})
		return wait(g, logger)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, "loading")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	r.Mount("/api", api.NewRouter(deps, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

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
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}
		cancel()

		logger.Info("Shutting down server...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	return wait(g, logger)
}

func wait(g *errgroup.Group, logger *slog.Logger) error {
	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("Server stopped successfully")
	return nil
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}

// newRenderer picks the preview renderer, falling back to raster when chromium is missing.
func newRenderer(cfg ThumbnailConfig, logger *slog.Logger) thumbnail.Renderer {
	if cfg.Renderer == RendererChrome {
		chrome := thumbnail.ChromeRenderer{Timeout: 20 * time.Second}
		if chrome.Available() {
			return chrome
		}
		logger.Warn("thumbnail: chromium not found, using raster renderer")
	}
	return thumbnail.RasterRenderer{}
}
