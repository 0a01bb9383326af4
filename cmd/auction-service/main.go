package main

import (
	"auction-engine/internal/api/handlers"
	"auction-engine/internal/api/middleware"
	"auction-engine/internal/config"
	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/leader"
	"auction-engine/internal/infrastructure/memory"
	"auction-engine/internal/infrastructure/mysql"
	"auction-engine/internal/infrastructure/mysql/migrations"
	"auction-engine/internal/infrastructure/redis"
	"auction-engine/internal/infrastructure/websocket"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
)

// backend is the set of ports the engine runs on, selected by storage.driver.
type backend struct {
	auctionRepo    domain.AuctionRepository
	wallet         domain.Wallet
	reversals      domain.EscrowReversalStore
	eventPub       domain.EventPublisher
	eventSub       domain.EventSubscriber
	eventLog       domain.EventLogRepository
	stateCache     domain.AuctionStateCache
	leader         domain.LeaderElection
	incrementRules domain.IncrementRuleProvider

	// background work owned by the backend, started after wiring
	background []func(ctx context.Context)
	closers    []func() error
}

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

	if err := run(cfg, log.With("instance_id", cfg.Instance.ID)); err != nil {
		log.Fatal("Auction service failed", "error", err)
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	log.Info("Starting auction service", "config", cfg.GetConfigString())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		b   *backend
		err error
	)
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		b = memoryBackend(log)
	default:
		b, err = mysqlBackend(ctx, cfg, log)
	}
	if err != nil {
		return err
	}
	defer func() {
		for _, closeFn := range b.closers {
			if err := closeFn(); err != nil {
				log.Warn("Failed to close resource", "error", err)
			}
		}
	}()

	clock := utils.SystemClock{}
	if err := seedWallets(ctx, cfg.Wallet, b.wallet, log); err != nil {
		return err
	}

	opts := services.EngineOptions{
		MaxBidRetries:    cfg.Engine.MaxBidRetries,
		MaxSettleRetries: cfg.Engine.MaxSettleRetries,
		WalletTimeout:    cfg.Engine.WalletTimeout,
		NotifyTimeout:    cfg.Engine.NotifyTimeout,
	}
	admins := services.NewStaticAdminDirectory(cfg.Admin.IDs)

	connManager := websocket.NewConnectionManager(log)
	notifier := websocket.NewWebSocketNotifier(connManager)

	auctionManager := services.NewAuctionManager(b.auctionRepo, b.stateCache, b.eventLog, b.incrementRules, clock, log)
	bidService := services.NewBidService(b.auctionRepo, b.wallet, b.reversals, b.eventPub, b.stateCache, clock, opts, log)
	settlement := services.NewSettlementService(b.auctionRepo, b.wallet, notifier, admins, b.eventPub, b.stateCache, clock, opts, log)
	scheduler := services.NewCronLifecycleScheduler(cfg.Scheduler.Spec, b.auctionRepo, settlement, bidService, b.leader, clock, log)
	listener := services.NewEventListener(notifier, log)

	for _, start := range b.background {
		go start(ctx)
	}
	go func() {
		if err := listener.Start(ctx, b.eventSub); err != nil && ctx.Err() == nil {
			log.Error("Event listener stopped", "error", err)
		}
	}()
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	middleware.Setup(e, cfg.Server, log)
	handlers.RegisterRoutes(e,
		handlers.NewAuctionHandler(auctionManager, bidService, settlement, admins, log),
		handlers.NewWebSocketHandlers(websocket.NewWebSocketHandler(bidService, auctionManager, connManager, cfg.Server.AllowOrigins, log)),
		cfg.Instance.ID,
	)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", serverAddr)
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("Shutting down auction service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := scheduler.Stop(); err != nil {
		log.Error("Failed to stop scheduler", "error", err)
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Auction service stopped")
	return nil
}

// memoryBackend runs everything in-process on a single node; the audit
// trail is recorded by an in-process subscriber instead of audit-service.
func memoryBackend(log logger.Logger) *backend {
	bus := memory.NewEventBus(256, log)
	eventLog := memory.NewEventLog()
	recorder := services.NewAuditRecorder(eventLog, log)

	log.Warn("Using in-memory storage; state is lost on restart")
	return &backend{
		auctionRepo:    memory.NewAuctionRepository(),
		wallet:         memory.NewWallet(),
		reversals:      memory.NewEscrowReversalStore(),
		eventPub:       bus,
		eventSub:       bus,
		eventLog:       eventLog,
		stateCache:     memory.NewStateCache(),
		leader:         memory.SingleNodeLeader{},
		incrementRules: memory.NewStaticIncrementRules(),
		background: []func(ctx context.Context){
			func(ctx context.Context) {
				if err := recorder.Start(ctx, bus); err != nil && ctx.Err() == nil {
					log.Error("Audit recorder stopped", "error", err)
				}
			},
		},
	}
}

func mysqlBackend(ctx context.Context, cfg *config.Config, log logger.Logger) (*backend, error) {
	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Redis.Address, err)
	}
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

	db, err := utils.InitializeMysql(ctx, cfg.MySQL, log)
	if err != nil {
		rdb.Close()
		return nil, err
	}

	if cfg.MySQL.MigrateOnStart {
		if err := migrations.Run(db.Database); err != nil {
			db.Close()
			rdb.Close()
			return nil, err
		}
		log.Info("Database migrations applied")
	}

	incrementRules := redis.NewIncrementRuleStore(rdb)
	if err := incrementRules.LoadRules(pingCtx); err != nil {
		db.Close()
		rdb.Close()
		return nil, fmt.Errorf("load increment rules: %w", err)
	}

	election := leader.NewRedisLeaderElection(rdb, cfg.Leader.Key, cfg.Instance.ID, cfg.Leader.TTL, log)

	return &backend{
		auctionRepo:    mysql.NewMySQLAuctionRepository(db),
		wallet:         mysql.NewMySQLWallet(db, utils.SystemClock{}),
		reversals:      mysql.NewMySQLEscrowReversalRepository(db),
		eventPub:       redis.NewEventPublisher(rdb),
		eventSub:       redis.NewRedisEventSubscriber(rdb, log),
		eventLog:       mysql.NewMySQLEventLogRepository(db),
		stateCache:     redis.NewRedisStateCache(rdb),
		leader:         election,
		incrementRules: incrementRules,
		background: []func(ctx context.Context){
			func(ctx context.Context) {
				election.RunElection(ctx, cfg.Leader.ElectionInterval)
			},
		},
		closers: []func() error{db.Close, rdb.Close},
	}, nil
}

func seedWallets(ctx context.Context, cfg config.WalletConfig, wallet domain.Wallet, log logger.Logger) error {
	balances, err := cfg.SeedBalances()
	if err != nil {
		return err
	}
	for userID, amount := range balances {
		if err := wallet.Credit(ctx, userID, amount, "seed_"+userID); err != nil {
			return fmt.Errorf("seed wallet %s: %w", userID, err)
		}
		log.Info("Seeded wallet", "user_id", userID, "amount", amount)
	}
	return nil
}
