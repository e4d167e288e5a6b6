package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dles/internal/config"
	"dles/internal/db"
	"dles/internal/embedcheck"
	"dles/internal/jobs"
	"dles/internal/logging"
	"dles/internal/raceevents"
	"dles/internal/server"

	"go.uber.org/zap"
)

const (
	shutdownTimeout = 10 * time.Second
	jobTimeout      = 10 * time.Minute
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		zap.L().Warn("failed to load .env", zap.Error(err))
	}
	cfg := config.Load()
	logger := logging.Must(cfg.Env)
	defer func() { _ = logger.Sync() }()

	conn, err := db.Open(cfg)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(conn); err != nil {
			logger.Fatal("database migration failed", zap.Error(err))
		}
	} else if _, err := db.EnsureSiteConfig(conn); err != nil {
		logger.Fatal("site config setup failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var broker raceevents.Broker = raceevents.NewMemoryBroker()
	if cfg.RedisURL != "" {
		redisBroker, err := raceevents.ConnectRedis(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		broker = redisBroker
		logger.Info("race events use redis")
	}
	defer func() { _ = broker.Close() }()

	checker := embedcheck.NewChecker(nil, time.Duration(cfg.EmbedCheckTimeoutSeconds)*time.Second)
	srv := server.New(conn, cfg, server.Options{
		Logger:  logger,
		Broker:  broker,
		Checker: checker,
	})

	scheduler := jobs.New(logger, jobTimeout)
	if err := scheduler.Add("embed-scan", cfg.EmbedScanSchedule, func(ctx context.Context) error {
		report, err := jobs.ScanGames(ctx, conn, checker, cfg.EmbedCheckConcurrency)
		if err != nil {
			return err
		}
		logger.Info("embed scan done",
			zap.Int("checked", report.Checked),
			zap.Int("updated", report.Updated),
			zap.Int("errors", len(report.Errors)),
		)
		return nil
	}); err != nil {
		logger.Fatal("job setup failed", zap.Error(err))
	}
	if err := scheduler.Add("race-cleanup", cfg.RaceCleanupSchedule, func(ctx context.Context) error {
		cleanup, err := jobs.CleanupRaces(ctx, conn, time.Now(),
			time.Duration(cfg.RaceWaitingTTLHours)*time.Hour,
			time.Duration(cfg.RaceActiveTTLHours)*time.Hour,
		)
		if err != nil {
			return err
		}
		srv.PublishCleanup(ctx, cleanup.Deleted, cleanup.Completed)
		logger.Info("race cleanup done",
			zap.Int("deleted", len(cleanup.Deleted)),
			zap.Int("completed", len(cleanup.Completed)),
		)
		return nil
	}); err != nil {
		logger.Fatal("job setup failed", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("dles server listening", zap.String("addr", httpServer.Addr), zap.String("env", cfg.Env))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	srv.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
