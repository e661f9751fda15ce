// Command ledgercached serves the ledger read API over a layered cache:
// memory in front, Redis behind it when configured, PostgreSQL or an
// in-memory store at the bottom.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ledgercache/pkg/api"
	"ledgercache/pkg/cache"
	"ledgercache/pkg/cache/bloom"
	"ledgercache/pkg/cache/memory"
	"ledgercache/pkg/cache/redis"
	"ledgercache/pkg/chain"
	"ledgercache/pkg/config"
	"ledgercache/pkg/ledger"
	"ledgercache/pkg/logging"
	promcollector "ledgercache/pkg/metrics/prometheus"
	"ledgercache/pkg/postgres"
	"ledgercache/pkg/ratelimit"
	"ledgercache/pkg/resilience"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromEnv()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	logger.Info("starting ledgercached")

	// L1: in-process memory.
	l1 := memory.New(memory.Config{
		Name:       "L1-memory",
		MaxSize:    cfg.Cache.Memory.MaxSize,
		DefaultTTL: cfg.Cache.Memory.DefaultTTL.Std(),
	})
	layers := []cache.Layer{l1}
	resilientConfigs := []resilience.Config{
		resilience.DefaultConfig().WithTimeout(100 * time.Millisecond),
	}

	// L2: Redis, when configured.
	if cfg.Cache.Redis.Enabled {
		redisConfig := redis.DefaultConfig()
		redisConfig.Name = "L2-redis"
		redisConfig.Addr = cfg.Cache.Redis.Addr
		redisConfig.Password = cfg.Cache.Redis.Password
		redisConfig.DB = cfg.Cache.Redis.DB
		redisConfig.KeyPrefix = cfg.Cache.Redis.KeyPrefix

		l2, err := redis.New(redisConfig)
		if err != nil {
			logger.Fatal("connect redis", zap.Error(err))
		}
		layers = append(layers, l2)
		resilientConfigs = append(resilientConfigs,
			resilience.DefaultConfig().WithTimeout(time.Second))
		logger.Info("redis layer enabled", zap.String("addr", redisConfig.Addr))
	}

	collector := promcollector.New("ledgercache")
	prometheus.MustRegister(collector)

	cacheChain, err := chain.NewWithConfig(chain.Config{
		ResilientConfigs: resilientConfigs,
		TTLStrategy:      &chain.DecayingTTL{Factor: 0.5},
		Metrics:          collector,
		Logger:           logger,
	}, layers...)
	if err != nil {
		logger.Fatal("build cache chain", zap.Error(err))
	}
	logger.Info("cache chain ready", zap.String("topology", cacheChain.String()))

	var frontLayer cache.Layer = cacheChain
	if cfg.Cache.Bloom.Enabled {
		frontLayer = bloom.New(frontLayer, cfg.Cache.Bloom.ExpectedItems, cfg.Cache.Bloom.FalsePositiveRate)
		logger.Info("bloom guard enabled", zap.Uint("expected_items", cfg.Cache.Bloom.ExpectedItems))
	}
	if cfg.Cache.NegativeTTL.Std() > 0 {
		frontLayer = cache.NewNegativeLayer(frontLayer, cfg.Cache.NegativeTTL.Std())
	}
	// Closing the front layer cascades down through the wrappers to the chain.
	defer frontLayer.Close()

	// Backing store: PostgreSQL when configured, in-memory otherwise.
	var store ledger.Store
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(postgres.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		})
		if err != nil {
			logger.Fatal("connect postgres", zap.Error(err))
		}
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := pg.Migrate(migrateCtx); err != nil {
			cancel()
			logger.Fatal("migrate", zap.Error(err))
		}
		cancel()
		store = pg
		logger.Info("postgres store ready", zap.String("host", cfg.Postgres.Host))
	} else {
		store = ledger.NewMemStore()
		logger.Info("in-memory store ready")
	}
	defer store.Close()

	service := ledger.NewService(store, frontLayer, ledger.ServiceConfig{
		AccountTTL:     cfg.Cache.AccountTTL.Std(),
		TransactionTTL: cfg.Cache.TransactionTTL.Std(),
		ListTTL:        cfg.Cache.ListTTL.Std(),
		NegativeTTL:    cfg.Cache.NegativeTTL.Std(),
		Logger:         logger,
	})
	defer service.Close()

	limiter := ratelimit.New(ratelimit.Config{
		Rate:  cfg.RateLimit.Rate,
		Burst: cfg.RateLimit.Burst,
	}, logger)
	defer limiter.Close()

	server := api.New(service, limiter, api.Config{
		Port:              cfg.Server.Port,
		ReadTimeout:       cfg.Server.ReadTimeout.Std(),
		WriteTimeout:      cfg.Server.WriteTimeout.Std(),
		IdleTimeout:       cfg.Server.IdleTimeout.Std(),
		AccountMaxAge:     cfg.Cache.AccountTTL.Std(),
		TransactionMaxAge: cfg.Cache.TransactionTTL.Std(),
		ListMaxAge:        cfg.Cache.ListTTL.Std(),
		ListCost:          cfg.RateLimit.ListCost,
		Layers:            cacheChain.Layers,
	}, logger)

	errc := make(chan error, 1)
	go func() { errc <- server.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errc:
		if err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}
