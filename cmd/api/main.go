package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"geoattend/internal/attendance"
	"geoattend/internal/config"
	"geoattend/internal/httpapi"
	"geoattend/internal/httpmiddleware"
	"geoattend/internal/queue"
	"geoattend/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := cfg.Logger()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx := context.Background()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		if db == nil {
			return err
		}
		logger.Warn("db not reachable, starting degraded", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()

	repo := attendance.NewRepository(db.Client, logger.Named("repo"))
	if cfg.MigrateOnStart {
		if err := repo.Migrate(ctx); err != nil {
			logger.Warn("migration skipped", zap.Error(err))
		}
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
		logger.Warn("in-memory queue: override audits stay in this process")
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	var limiter httpmiddleware.Limiter
	switch cfg.RateLimitBackend {
	case "redis":
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, "geoattend:ratelimit", cfg.RateLimitPerMin)
	case "off":
	default:
		limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	gate := attendance.NewGate(attendance.Policy{
		AccuracyThresholdMeters: cfg.AccuracyThresholdMeters,
		EnforceAccuracy:         cfg.EnforceAccuracy,
		RequireOverrideReason:   cfg.RequireOverrideReason,
	})
	svc := attendance.NewService(gate, repo, repo, q, logger.Named("attendance"))

	h := httpapi.New(svc, map[string]httpapi.HealthCheck{
		"db":    db.Healthy,
		"redis": redisClient.Healthy,
	}, logger.Named("http"))
	r := httpapi.NewRouter(h, httpapi.RouterOptions{
		SigningKey:  cfg.JWTSigningKey,
		Issuer:      cfg.JWTIssuer,
		Limiter:     limiter,
		CORSOrigins: cfg.CORSOrigins,
		Log:         logger.Named("http"),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}
