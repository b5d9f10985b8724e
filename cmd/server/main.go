package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/config"
	"github.com/stemsi/examflow/internal/database"
	"github.com/stemsi/examflow/internal/handler"
	"github.com/stemsi/examflow/internal/logger"
	"github.com/stemsi/examflow/internal/mailer"
	"github.com/stemsi/examflow/internal/middleware"
	"github.com/stemsi/examflow/internal/repository"
	"github.com/stemsi/examflow/internal/router"
	"github.com/stemsi/examflow/internal/service"
	"github.com/stemsi/examflow/internal/validator"
	"github.com/stemsi/examflow/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting examflow server")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	// Optional: without it there is no passcode cache, logout revocation or
	// live monitor.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = database.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
	} else {
		log.Warn().Msg("REDIS_URL is empty; passcode cache, revocation and live monitor disabled")
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	testRepo := repository.NewTestRepository(pool)
	resultRepo := repository.NewResultRepository(pool)
	resetRepo := repository.NewPasswordResetRepository(pool)

	// ─── Initialize Mailer ─────────────────────────────────────────────
	mail, err := mailer.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure mailer")
	}

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, userRepo, rdb, log)
	resetService := service.NewPasswordResetService(cfg, authService, resetRepo, mail, log)
	testService := service.NewTestService(testRepo, rdb, cfg.PasscodeTTL, log)
	monitorService := service.NewMonitorService(rdb, log)
	attemptService := service.NewAttemptService(resultRepo, testService, monitorService, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	deps := map[string]handler.Pinger{"postgres": handler.PingFunc(pool.Ping), "redis": nil}
	if rdb != nil {
		deps["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, resetService, cfg, log),
		Test:    handler.NewTestHandler(testService, attemptService, log),
		Attempt: handler.NewAttemptHandler(attemptService, testService, log),
		Monitor: handler.NewMonitorHandler(testService, attemptService, monitorService, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(deps, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	expiryWorker := worker.NewExpiryWorker(attemptService, cfg.ExpirySweep, cfg.ExpiryGrace, log)
	go expiryWorker.Start(workerCtx)

	var authLimiter *middleware.RateLimiter
	if cfg.AuthRateLimit > 0 {
		authLimiter = middleware.NewRateLimiter(cfg.AuthRateLimit, time.Minute)
		authLimiter.StartCleanup(workerCtx)
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, authLimiter, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers.
	workerCancel()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
