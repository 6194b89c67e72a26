// Parla - voice practice chat relay server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/parla/internal/api"
	"github.com/ashureev/parla/internal/config"
	"github.com/ashureev/parla/internal/conversation"
	"github.com/ashureev/parla/internal/identity"
	"github.com/ashureev/parla/internal/llm"
	"github.com/ashureev/parla/internal/middleware"
	"github.com/ashureev/parla/internal/practice"
	"github.com/ashureev/parla/internal/relay"
	"github.com/ashureev/parla/internal/store"
	"github.com/ashureev/parla/internal/transcript"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.StoreDriver)

	// Initialize dependencies.
	repo, err := store.Open(cfg.StoreDriver, cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Store connected", "driver", cfg.StoreDriver)

	var provider conversation.Provider = llm.Unconfigured{}
	if cfg.ProviderConfigured() {
		gemini, err := llm.NewGeminiProvider(context.Background(), cfg.Gemini.APIKey, cfg.Gemini.Model, logger)
		if err != nil {
			slog.Warn("Failed to initialize Gemini provider, replies will use the fallback", "error", err)
		} else {
			provider = gemini
			slog.Info("Gemini provider initialized", "model", cfg.Gemini.Model)
		}
	} else {
		slog.Info("GEMINI_API_KEY not set, replies will use the fallback")
	}

	transcripts, err := transcript.New(transcript.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcripts.Close(); closeErr != nil {
			slog.Error("Failed to flush conversation logs", "error", closeErr)
		}
	}()

	// Initialize services.
	conv := conversation.NewService(provider, repo, conversation.WithLogger(logger))
	runner := practice.NewRunner(repo, conv, transcripts, practice.Config{
		TurnTimeout:  cfg.Timeout.Provider,
		HistoryLimit: cfg.HistoryTurns,
	}, logger)

	registry := relay.NewRegistry()
	limiter := relay.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Stop()

	// Initialize handlers.
	apiHandler := api.NewHandler(repo, runner, api.Options{
		MaxBodyBytes:       cfg.MaxRequestBodyBytes,
		ProviderConfigured: cfg.ProviderConfigured(),
		StoreDriver:        cfg.StoreDriver,
		HealthCheckTimeout: cfg.Timeout.HealthCheck,
		Connections:        registry.Len,
	}, logger)
	wsHandler := relay.NewHandler(repo, runner, registry, limiter, relay.Config{
		AllowedOrigin: cfg.FrontendURL,
		IsDev:         cfg.IsDevelopment(),
		ReadLimit:     cfg.MaxRequestBodyBytes,
	}, logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware)

	apiHandler.RegisterHealth(r)
	apiHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws", wsHandler.ServeHTTP)

	// Relay connections are long lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...", "connections", registry.Len())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Shutdown)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown.
	registry.CloseAll("server shutting down")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return
	}

	slog.Info("Server stopped successfully")
}
