package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/aeva/internal/api/handlers"
	"github.com/dvloznov/aeva/internal/api/middleware"
	"github.com/dvloznov/aeva/internal/app"
	"github.com/dvloznov/aeva/internal/config"
	"github.com/dvloznov/aeva/internal/logger"
)

func main() {
	cfg := config.Load()

	// Parse command-line flags
	port := flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
	flag.Parse()
	cfg.Port = *port

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	ctx := context.Background()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close application")
		}
	}()

	// Initialize handlers
	apiLog := logger.Component(log, "api")
	mux := handlers.NewRouter(handlers.Handlers{
		Transactions: handlers.NewTransactionsHandler(a.Store, a.Notices, apiLog),
		Settings:     handlers.NewSettingsHandler(a.Store, a.Notices, apiLog),
		Receipts:     handlers.NewReceiptsHandler(a.Receipts, a.Sources, apiLog),
		Insights:     handlers.NewInsightsHandler(a.Insights, apiLog),
		Notices:      handlers.NewNoticesHandler(a.Notices),
	})

	if cfg.APIToken == "" {
		log.Warn().Msg("No API token configured - API is unauthenticated")
	}

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(
					middleware.Auth(cfg.APIToken)(mux),
				),
			),
		),
	)

	// Receipt extraction waits on the model, so writes get a longer timeout.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	a.Receipts.Close()

	log.Info().Msg("Server exited")
}
