// worker consumes the account.events stream and appends every event to the
// account_audit_log table.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/eaglebank/identity-service/internal/audit"
	"github.com/eaglebank/identity-service/internal/config"
	"github.com/eaglebank/identity-service/internal/db"
	"github.com/eaglebank/identity-service/shared/events"
	"github.com/eaglebank/identity-service/shared/logging"
	sharedredis "github.com/eaglebank/identity-service/shared/redis"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(os.Stdout, cfg.LogLevel, "identity-audit-worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	redis, err := sharedredis.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redis.Close()

	consumer := audit.NewConsumer(audit.NewPostgresStore(sqlDB))
	subscriber := events.NewSubscriber(redis.Client, events.SubscriberConfig{
		Group:    cfg.AuditGroup,
		Consumer: cfg.AuditConsumer,
		Stream:   events.AccountEventsStream,
		Handler:  consumer.HandleAccountEvent,
	})

	if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("subscriber stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("audit worker stopped")
}
