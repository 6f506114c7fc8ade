/**
 * @description
 * Entry point for the relay service. Wires configuration, the ledger clients, the
 * payout journal, the rate limiter and the event producer into the HTTP API.
 *
 * Only NEAR_RPC_URL, TOKEN_CONTRACT_ID and ESCROW_ACCOUNT_ID are mandatory. Every other
 * backing service degrades: no DATABASE_URL keeps the journal in memory, no REDIS_URL
 * limits per process, no RABBITMQ_URL drops events.
 */
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/api"
	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/app"
	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/config"
	"github.com/yaairnaavaa/veridoc-ai-sub000/internal/store"
	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/consultationclient"
	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/nearclient"
	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/rabbitmq"
	"github.com/yaairnaavaa/veridoc-ai-sub000/pkg/tokenclient"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting relay service", "port", cfg.ServerPort, "relay_enabled", cfg.RelayEnabled, "release_enabled", cfg.ReleaseEnabled)

	ctx := context.Background()

	var repository store.Repository
	if cfg.DatabaseURL != "" {
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			logger.Error("unable to parse database URL", "error", err)
			os.Exit(1)
		}
		poolConfig.MaxConns = 20
		poolConfig.MinConns = 2
		poolConfig.MaxConnLifetime = 30 * time.Minute
		poolConfig.MaxConnIdleTime = 5 * time.Minute
		poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

		dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			logger.Error("unable to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbpool.Close()

		pg := store.NewPostgresRepository(dbpool)
		if err := pg.Migrate(ctx); err != nil {
			logger.Error("payout journal migration failed", "error", err)
			os.Exit(1)
		}
		repository = pg
		logger.Info("database connection established")
	} else {
		logger.Warn("DATABASE_URL not set; payout journal is kept in memory and lost on restart")
		repository = store.NewMemoryRepository()
	}

	var limiter app.RateLimiter = app.NewLocalRateLimiter()
	if cfg.RedisURL != "" {
		redisOptions, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("redis url parse failed; using in-process rate limiting", "error", err)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				logger.Warn("redis ping failed; using in-process rate limiting", "error", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
				logger.Info("redis connected")
			}
		}
	}

	var producer rabbitmq.Publisher = &rabbitmq.EventProducerFallback{}
	if cfg.RabbitMQURL != "" {
		rabbitProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			logger.Warn("rabbitmq producer unavailable; using fallback", "error", err)
		} else {
			defer rabbitProducer.Close()
			producer = rabbitProducer
			logger.Info("rabbitmq producer connected")
		}
	}

	rpc := nearclient.NewClient(cfg.NearRPCURL)
	opts := tokenclient.Options{StorageDeposit: cfg.StorageDeposit}
	if cfg.RelayerKey != nil {
		opts.Relayer = nearclient.NewSender(rpc, cfg.RelayerAccountID, cfg.RelayerKey)
	}
	if cfg.EscrowKey != nil {
		opts.Escrow = nearclient.NewSender(rpc, cfg.EscrowAccountID, cfg.EscrowKey)
	}
	tokens := tokenclient.NewClient(rpc, cfg.TokenContractID, opts)

	var records app.RecordStore
	if cfg.ConsultationStoreURL != "" {
		records = consultationclient.NewClient(cfg.ConsultationStoreURL, cfg.ConsultationStoreAPIKey)
	}

	relayService := app.NewRelayService(tokens, repository, producer, app.RelayConfig{
		Enabled:               cfg.RelayEnabled,
		TokenContractID:       cfg.TokenContractID,
		AllowedTokenContracts: cfg.AllowedTokenContracts,
		EscrowAccountID:       cfg.EscrowAccountID,
		EventsExchange:        cfg.EventsExchange,
	}, logger)
	relayService.LimitSigners(limiter, cfg.SignerRateLimitPerMin)

	releaseService := app.NewReleaseService(tokens, records, repository, producer, app.ReleaseConfig{
		Enabled:                cfg.ReleaseEnabled,
		TokenContractID:        cfg.TokenContractID,
		PlatformFeeAccountID:   cfg.PlatformFeeAccountID,
		SpecialistSharePercent: cfg.SpecialistSharePercent,
		EventsExchange:         cfg.EventsExchange,
	}, logger)

	handler := api.NewHandler(relayService, releaseService, cfg.ReleaseTimeout(), api.HealthStatus{
		RelayEnabled:   cfg.RelayEnabled,
		ReleaseEnabled: cfg.ReleaseEnabled,
	}, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		JWKSURL:                 cfg.AuthJWKSURL,
		ReleaseSecret:           cfg.ReleaseTriggerSecret,
		Limiter:                 limiter,
		RelayRateLimitPerMinute: cfg.RelayRateLimitPerMinute,
		Logger:                  logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started")

	// Long enough for an in-flight release item to finish both legs.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}
