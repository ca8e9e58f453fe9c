package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mfcarvalho/email-triage/backend/internal/auth"
	"github.com/mfcarvalho/email-triage/backend/internal/config"
	"github.com/mfcarvalho/email-triage/backend/internal/email"
	"github.com/mfcarvalho/email-triage/backend/internal/health"
	"github.com/mfcarvalho/email-triage/backend/internal/logger"
	"github.com/mfcarvalho/email-triage/backend/internal/metrics"
	appmw "github.com/mfcarvalho/email-triage/backend/internal/middleware"
	"github.com/mfcarvalho/email-triage/backend/internal/nlp"
	"github.com/mfcarvalho/email-triage/backend/internal/repository"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()

	logLevel := "info"
	if cfg.Debug {
		logLevel = "debug"
	}
	log := logger.New(logger.Config{
		Level:  logLevel,
		Format: "json",
		Output: "stdout",
	})
	slog.SetDefault(log)

	if cfg.JWT.Secret == "" {
		log.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.JWT.Algorithm != "HS256" {
		log.Error("unsupported JWT algorithm", "algorithm", cfg.JWT.Algorithm)
		os.Exit(1)
	}

	dbPool, err := setupDatabase(cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	sqlxDB, err := sqlx.Connect("pgx", cfg.Database.DSN())
	if err != nil {
		log.Error("failed to open sqlx connection", "error", err)
		os.Exit(1)
	}
	defer sqlxDB.Close()

	userRepo := repository.NewUserRepository(dbPool)
	emailRepo := repository.NewEmailRepo(sqlxDB)

	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		Secret:       cfg.JWT.Secret,
		AccessExpiry: cfg.JWT.AccessExpiry,
		Issuer:       cfg.JWT.Issuer,
	})

	authService := auth.NewAuthService(userRepo, tokenService, log)
	authHandler := auth.NewAuthHandler(authService)

	classifier := nlp.NewClassifierClient(cfg.Classifier)
	generator := nlp.NewLLMClient(cfg.LLM)

	emailService := email.NewService(emailRepo, classifier, generator, log)
	emailHandler := email.NewHandler(emailService, cfg.Upload.MaxBytes, log)

	authMiddleware := appmw.NewAuthMiddleware(tokenService, userRepo)
	aiLimiter := appmw.NewAIRateLimiter(10, time.Minute)
	defer aiLimiter.Stop()

	healthHandler := health.NewHandler(health.Config{
		DBPool:  dbPool,
		Version: version,
	})

	dbStats := metrics.NewDBStatsCollector(dbPool, sqlxDB.DB)
	dbStats.Start(15 * time.Second)
	defer dbStats.Stop()

	if cfg.Seed.Enabled && cfg.Environment == "development" {
		seedCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := authService.SeedUser(seedCtx, cfg.Seed.Email, cfg.Seed.Password); err != nil {
			log.Error("failed to seed user", "error", err)
		}
		cancel()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(appmw.StructuredLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(chimw.Timeout(3 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Readiness)
	r.Get("/live", healthHandler.Liveness)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		auth.RegisterRoutes(r, authHandler, authMiddleware.Authenticate)
		email.RegisterRoutes(r, emailHandler, authMiddleware.Authenticate, aiLimiter.Limit)
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", "addr", addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	healthHandler.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server exited")
}

// setupDatabase creates and configures the database connection pool
func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("connected to database",
		"db", cfg.Database.DBName,
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
	)
	return pool, nil
}
