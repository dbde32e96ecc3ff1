// Package main provides the HTTP API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jnst/theshop-core/internal/config"
	"github.com/jnst/theshop-core/internal/db"
	"github.com/jnst/theshop-core/internal/handler"
	"github.com/jnst/theshop-core/internal/kv"
	"github.com/jnst/theshop-core/internal/logger"
	"github.com/jnst/theshop-core/internal/repository"
	"github.com/jnst/theshop-core/internal/service"
)

const (
	serviceName       = "theshop-api"
	readHeaderTimeout = 5 * time.Second
	exitCode          = 1
)

func buildServer(cfg *config.Config, pool *pgxpool.Pool, store kv.Store) (*handler.APIServer, error) {
	tokens, err := service.NewTokenServiceImpl(service.TokenOptions{
		Secret:         []byte(cfg.JWT.Secret),
		Issuer:         cfg.JWT.Issuer,
		Audience:       cfg.JWT.Audience,
		AccessTokenTTL: cfg.JWT.AccessTokenTTL,
	})
	if err != nil {
		return nil, err
	}

	sessions := service.NewSessionServiceImpl(store, service.SessionOptions{
		UserIndexTTL:     cfg.Session.UserIndexTTL,
		RevokedRetention: cfg.Session.RevokedRetention,
	})

	// 依存関係注入
	accountRepo := repository.NewAccountRepositoryImpl(pool)
	orderRepo := repository.NewOrderRepositoryImpl(pool)
	productRepo := repository.NewProductRepositoryImpl(pool)
	outboxRepo := repository.NewOutboxRepositoryImpl(pool)
	transactionMgr := repository.NewTransactionManagerImpl(pool)

	return handler.NewAPIServer(handler.Services{
		Identity: service.NewIdentityServiceImpl(accountRepo, tokens, sessions, service.IdentityOptions{
			SessionTTL:      cfg.JWT.AccessTokenTTL,
			RefreshTokenTTL: cfg.JWT.RefreshTokenTTL,
		}),
		Orders:      service.NewOrderServiceImpl(orderRepo, productRepo, outboxRepo, transactionMgr),
		Catalog:     service.NewCatalogServiceImpl(productRepo, outboxRepo, transactionMgr),
		Sessions:    sessions,
		Tokens:      tokens,
		Idempotency: service.NewIdempotencyServiceImpl(store, cfg.Idempotency.TTL, cfg.Idempotency.ClaimTTL),
	}), nil
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := kv.NewRedisClient(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	api, err := buildServer(cfg, pool, kv.NewRedisStore(redisClient))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Routes(log),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info("starting API server", slog.String("port", cfg.Port))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down API server", slog.Duration("grace_period", cfg.ShutdownGracePeriod))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	api.Wait()

	return nil
}

func main() {
	// 環境変数読み込み
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	log := logger.Setup(logger.Options{
		Service: serviceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("api server failed", slog.String("error", err.Error()))
		stop()
		os.Exit(exitCode)
	}
}
