// Package main is the entry point for the web service.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/microauthx/microauthx/internal/config"
	webhandler "github.com/microauthx/microauthx/internal/handler/web"
	"github.com/microauthx/microauthx/internal/middleware"
	"github.com/microauthx/microauthx/internal/upstream"
)

func main() {
	// Setup structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("Starting web service",
		slog.String("environment", cfg.WebServer.Environment),
		slog.Int("port", cfg.WebServer.Port),
		slog.String("auth_url", cfg.Upstream.AuthURL),
	)

	authClient := upstream.NewClient(cfg.Upstream.AuthURL, cfg.Upstream.Timeout)

	handler, err := webhandler.NewHandler(authClient, logger, webhandler.Config{
		SessionSecret: cfg.Session.Secret,
		SessionTTL:    cfg.Session.TTL,
		SecureCookies: cfg.WebServer.Environment == "prod",
	})
	if err != nil {
		log.Fatalf("Failed to create web handler: %v", err)
	}

	// Setup router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics("web-service"))
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/static/*", webhandler.Static())
	r.Mount("/", handler.Routes())

	// Create server
	srv := &http.Server{
		Addr:         cfg.WebServer.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.WebServer.ReadTimeout,
		WriteTimeout: cfg.WebServer.WriteTimeout,
		IdleTimeout:  time.Minute,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("Shutting down server", slog.String("signal", sig.String()))

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	logger.Info("Server stopped gracefully")
}
