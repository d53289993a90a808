package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iliyamo/school-management/internal/config"
	"github.com/iliyamo/school-management/internal/database"
	"github.com/iliyamo/school-management/internal/handler"
	"github.com/iliyamo/school-management/internal/logging"
	"github.com/iliyamo/school-management/internal/queue"
	"github.com/iliyamo/school-management/internal/repository"
	"github.com/iliyamo/school-management/internal/router"
	"github.com/iliyamo/school-management/internal/service"
	"github.com/iliyamo/school-management/internal/token"
	"github.com/iliyamo/school-management/internal/utils"
)

func main() {
	if err := run(); err != nil {
		logging.New(os.Stderr, "error", "text").Error(context.Background(), "server exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		return err
	}
	cacheCfg, err := config.LoadCacheConfig()
	if err != nil {
		return err
	}
	redisCfg, err := config.LoadRedisConfig()
	if err != nil {
		return err
	}

	log := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat).With("env", cfg.Env)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info(ctx, "migrations applied")
	}

	rdb := config.NewRedisClient(redisCfg)
	if rdb == nil {
		log.Warn(ctx, "redis unavailable; rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}

	var events service.EventPublisher = queue.Nop{}
	if cfg.Events.Enabled {
		events = queue.NewPublisher(cfg.Events.URL, cfg.Events.Queue, log)
	}
	if cfg.Events.ConsumerEnabled {
		consumer := queue.NewAuditConsumer(cfg.Events.URL, cfg.Events.Queue, cfg.Events.AuditLogDir, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error(ctx, "audit consumer stopped", "err", err)
			}
		}()
	}

	hasher, err := utils.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		return err
	}
	accounts := repository.NewAccountRepo(db)
	codec := token.NewCodec(cfg.JWTSecret, repository.NewRevocationRepo(db))
	sessions := service.NewSessionManager(db, codec, hasher, events, log, service.SessionConfig{
		SelfRegisterRoles: cfg.SelfRegisterRoles,
		PhoneRegion:       cfg.PhoneRegion,
	})

	e := router.New(router.Deps{
		DB:        db,
		Auth:      handler.NewAuthHandler(sessions, log),
		Admin:     handler.NewAdminHandler(service.NewOnboarding(db, events, log), log),
		Tokens:    codec,
		Accounts:  accounts,
		Redis:     rdb,
		RateLimit: rlCfg,
		Cache:     cacheCfg,
		Log:       log,
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
