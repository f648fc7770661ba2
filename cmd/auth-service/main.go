// Package main is the entry point for the auth service.
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
	"github.com/microauthx/microauthx/internal/database"
	authhandler "github.com/microauthx/microauthx/internal/handler/auth"
	"github.com/microauthx/microauthx/internal/middleware"
	"github.com/microauthx/microauthx/internal/repository"
	"github.com/microauthx/microauthx/internal/service"
	"github.com/microauthx/microauthx/internal/session"
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

	logger.Info("Starting auth service",
		slog.String("environment", cfg.AuthServer.Environment),
		slog.Int("port", cfg.AuthServer.Port),
	)

	// Connect to MongoDB
	db, err := database.NewMongo(cfg.Mongo)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer db.Close()
	logger.Info("Connected to MongoDB")

	// Unique indexes on username/email are the integrity constraint.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Mongo.Timeout)
	if err := repository.EnsureIndexes(ctx, db.Database()); err != nil {
		cancel()
		log.Fatalf("Failed to create indexes: %v", err)
	}
	cancel()
	logger.Info("User indexes ensured")

	// Connect to Redis (session store)
	redis, err := database.NewRedis(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()
	logger.Info("Connected to Redis")

	// Wire services
	users := repository.NewUserRepository(db.Database())
	authSvc := service.NewAuthService(users, service.Config{
		BcryptCost:        cfg.Auth.BcryptCost,
		MinPasswordLength: cfg.Auth.MinPasswordLength,
	})
	sessions := session.NewRedisStore(redis, cfg.Session.TTL)

	handler := authhandler.NewHandler(authSvc, sessions, db, logger, authhandler.Config{
		CookieName:    cfg.Session.Name,
		CookieTTL:     cfg.Session.TTL,
		SecureCookies: cfg.AuthServer.Environment == "prod",
	})

	// Setup router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics("auth-service"))
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/", handler.Routes())

	// Create server
	srv := &http.Server{
		Addr:         cfg.AuthServer.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.AuthServer.ReadTimeout,
		WriteTimeout: cfg.AuthServer.WriteTimeout,
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
