package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/auth-session/internal/config"        // Internal config loader
	"github.com/iliyamo/auth-session/internal/database"      // MySQL pool and migrations
	"github.com/iliyamo/auth-session/internal/handler"       // HTTP handlers
	"github.com/iliyamo/auth-session/internal/observability" // logger and Sentry
	"github.com/iliyamo/auth-session/internal/queue"         // audit events over RabbitMQ
	"github.com/iliyamo/auth-session/internal/repository"    // credential and refresh token stores
	"github.com/iliyamo/auth-session/internal/router"        // Internal router setup
	"github.com/iliyamo/auth-session/internal/service"       // session issuance protocol
	"github.com/iliyamo/auth-session/internal/utils"         // token codec
)

func main() {
	cfg := config.Load() // Load environment config
	logger := observability.NewLogger("auth-session", cfg.LogLevel)

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Env); err != nil {
		logger.Errorj(log.JSON{"event": "init_sentry_failed", "error": err.Error()})
	}
	defer observability.FlushSentry()

	if err := cfg.SecretRisk(); err != nil {
		entry := log.JSON{"event": "insecure_jwt_secret", "env": cfg.Env, "error": err.Error()}
		if cfg.IsDevelopment() {
			logger.Warnj(entry)
		} else {
			logger.Errorj(entry)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DSN())
	if err != nil {
		logger.Fatalj(log.JSON{"event": "db_open_failed", "error": err.Error()})
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db); err != nil {
		logger.Fatalj(log.JSON{"event": "migrations_failed", "error": err.Error()})
	}

	users, err := repository.NewUserRepo(db, cfg.BcryptCost)
	if err != nil {
		logger.Fatalj(log.JSON{"event": "user_repo_init_failed", "error": err.Error()})
	}
	tokens := repository.NewTokenRepo(db)

	if cfg.SeedDevUsers {
		if !cfg.IsDevelopment() {
			logger.Warnj(log.JSON{"event": "dev_users_outside_development", "env": cfg.Env})
		}
		if err := service.SeedUsers(ctx, users, service.DevUsers, logger); err != nil {
			logger.Fatalj(log.JSON{"event": "seed_failed", "error": err.Error()})
		}
	}

	codec := utils.NewTokenCodec(cfg.JWTSecret, cfg.JWTIssuer)
	session := service.NewSession(users, tokens, codec, service.Options{
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
	}).WithLogger(logger)

	if cfg.AuditEnabled {
		pub := queue.NewPublisher(cfg.AMQPURL, cfg.AuditBuffer).WithLogger(logger)
		session.WithEvents(pub)
		go func() { _ = pub.Run(ctx) }()
	}
	if cfg.AuditConsumer {
		consumer := queue.NewConsumer(cfg.AMQPURL, cfg.AuditLogDir).WithLogger(logger)
		go func() { _ = consumer.Run(ctx) }()
	}

	var rdb *redis.Client
	limit := config.LoadLoginLimit()
	if limit.Enabled {
		rdb, err = connectRedis(ctx)
		if err != nil {
			logger.Warnj(log.JSON{"event": "rate_limit_disabled", "error": err.Error()})
		} else {
			defer rdb.Close()
		}
	}

	e := router.New(router.Deps{
		DB:         db,
		Auth:       handler.NewAuthHandler(session, logger),
		Verifier:   codec,
		Redis:      rdb,
		LoginLimit: limit,
		Log:        logger,
	})

	addr := ":" + cfg.Port // Address string with port
	go func() {
		logger.Infoj(log.JSON{"event": "listening", "addr": addr, "env": cfg.Env})
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorj(log.JSON{"event": "server_failed", "error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorj(log.JSON{"event": "shutdown_failed", "error": err.Error()})
	}
}

func connectRedis(ctx context.Context) (*redis.Client, error) {
	cfg, err := config.ParseRedisConfig(os.LookupEnv)
	if err != nil {
		return nil, err
	}
	return config.NewRedisClient(ctx, cfg)
}
