// 7Edu Counselor API Server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/sevenedu/counselor/internal/api"
	"github.com/sevenedu/counselor/internal/config"
	"github.com/sevenedu/counselor/internal/convlog"
	"github.com/sevenedu/counselor/internal/identity"
	"github.com/sevenedu/counselor/internal/llm"
	"github.com/sevenedu/counselor/internal/middleware"
	"github.com/sevenedu/counselor/internal/prompt"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	templates, err := prompt.LoadTemplates(cfg.PromptsFile)
	if err != nil {
		slog.Error("Failed to load prompt templates", "path", cfg.PromptsFile, "error", err)
		os.Exit(1)
	}
	builder, err := prompt.NewBuilder(templates)
	if err != nil {
		slog.Error("Failed to initialize prompt builder", "error", err)
		os.Exit(1)
	}

	// Initialize providers. A missing key still boots; calls fail per request.
	if !cfg.OpenAI.HasKey() {
		slog.Warn("OPENAI_API_KEY not set, OpenAI requests will fail")
	}
	if !cfg.Together.HasKey() {
		slog.Warn("TOGETHER_API_KEY not set, Together AI requests will fail")
	}
	openaiClient := llm.NewClient(llm.Profile{
		Name:    "openai",
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
		Timeout: cfg.OpenAI.Timeout,
	}, nil)
	togetherClient := llm.NewClient(llm.Profile{
		Name:    "together",
		APIKey:  cfg.Together.APIKey,
		BaseURL: cfg.Together.BaseURL,
		Model:   cfg.Together.Model,
		Timeout: cfg.Together.Timeout,
	}, nil)
	slog.Info("Providers configured", "openai_model", cfg.OpenAI.Model, "together_model", cfg.Together.Model)

	conversationLogger, err := convlog.New(convlog.Config{
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
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	handler := api.NewHandler(openaiClient, togetherClient, builder,
		api.WithConversationLogger(conversationLogger),
		api.WithMaxBodySize(cfg.MaxRequestBodySize),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	limiter.StartEviction(ctx)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(identity.Middleware(cfg.IsDevelopment()))
	r.Use(limiter.Middleware(rateLimitKey))

	health := api.NewHealthHandler(0,
		api.HealthCheck{Name: "openai", Check: keyCheck(cfg.OpenAI)},
		api.HealthCheck{Name: "together", Check: keyCheck(cfg.Together)},
	)
	health.RegisterHealth(r)
	handler.RegisterRoutes(r)

	// Note: streaming replies require long timeouts (no WriteTimeout)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for streamed replies
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

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

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// rateLimitKey buckets requests by caller address. Client cookies are
// minted by the caller, so they choose nothing here.
func rateLimitKey(r *http.Request) string {
	return identity.IPFromRequest(r)
}

func keyCheck(p config.ProviderConfig) func(context.Context) error {
	return func(context.Context) error {
		if !p.HasKey() {
			return errors.New("api key not configured")
		}
		return nil
	}
}
