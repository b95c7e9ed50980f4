// cmd/historian/main.go pops finished games from the Redis results queue and
// archives them in PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/trivia-lobby/internal/cache"
	"github.com/jason-s-yu/trivia-lobby/internal/config"
	"github.com/jason-s-yu/trivia-lobby/internal/database"
	"github.com/jason-s-yu/trivia-lobby/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	if cfg.IsProduction() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if cfg.Historian.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.WithError(err).Fatal("redis unavailable")
	}
	defer rdb.Close()

	pool, err := database.Connect(ctx, cfg.Historian.DatabaseURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("database unavailable")
	}
	defer pool.Close()

	writer := database.NewResultWriter(pool)
	if err := writer.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Fatal("schema setup failed")
	}

	queue := cache.NewResultQueue(rdb, cfg.Redis.ResultsQueue)
	svc := historian.New(queue, writer, historian.Config{
		BatchSize:  cfg.Historian.BatchSize,
		FlushDelay: cfg.Historian.FlushDelay,
	}, nil, logger.WithField("queue", queue.Name()))

	if err := svc.Run(ctx); err != nil {
		logger.WithError(err).Error("historian exited")
	}
}
