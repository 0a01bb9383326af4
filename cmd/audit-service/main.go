package main

import (
	"auction-engine/internal/config"
	"auction-engine/internal/infrastructure/mysql"
	"auction-engine/internal/infrastructure/mysql/migrations"
	"auction-engine/internal/infrastructure/redis"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisClient "github.com/go-redis/redis/v8"
)

// audit-service appends every auction event published on Redis to the
// auction_events table, which backs GET /api/v1/auctions/:id/events.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.Storage.Driver != config.StorageMySQL {
		log.Fatal("Audit service requires the mysql storage driver", "driver", cfg.Storage.Driver)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("Audit service failed", "error", err)
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("connect to redis %s: %w", cfg.Redis.Address, err)
	}

	db, err := utils.InitializeMysql(ctx, cfg.MySQL, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.MySQL.MigrateOnStart {
		if err := migrations.Run(db.Database); err != nil {
			return err
		}
	}

	recorder := services.NewAuditRecorder(mysql.NewMySQLEventLogRepository(db), log)
	err = recorder.Start(ctx, redis.NewRedisEventSubscriber(rdb, log))
	if ctx.Err() != nil {
		log.Info("Audit service stopped")
		return nil
	}
	return err
}
