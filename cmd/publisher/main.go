// Package main provides the outbox dispatcher that polls pending entries and
// publishes them to the configured broker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jnst/theshop-core/internal/config"
	"github.com/jnst/theshop-core/internal/db"
	"github.com/jnst/theshop-core/internal/kv"
	"github.com/jnst/theshop-core/internal/logger"
	"github.com/jnst/theshop-core/internal/messaging"
	"github.com/jnst/theshop-core/internal/repository"
	"github.com/jnst/theshop-core/internal/service"
	"github.com/jnst/theshop-core/internal/telemetry"
)

const (
	serviceName = "theshop-publisher"
	exitCode    = 1
)

func setupPublisher(cfg *config.Config, log *slog.Logger) (messaging.Publisher, func(), error) {
	switch cfg.Broker {
	case "kafka":
		pub, err := messaging.NewKafkaPublisher(messaging.KafkaOptions{
			Brokers:      cfg.Kafka.Brokers,
			Timeout:      cfg.BrokerTimeout,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
			Logger:       log,
		})
		if err != nil {
			return nil, nil, err
		}

		return pub, func() { _ = pub.Close() }, nil
	case "redis":
		client, err := kv.NewRedisClient(cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}

		return messaging.NewStreamPublisher(client, cfg.BrokerTimeout, log), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown broker %q", cfg.Broker)
	}
}

func topics(registry *service.EventRegistry) []string {
	tags := registry.Tags()
	out := make([]string, 0, len(tags))

	for _, tag := range tags {
		out = append(out, messaging.TopicName(tag))
	}

	return out
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	provider, err := telemetry.NewMeterProvider(ctx, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	provider.SetGlobal()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownGracePeriod)
		defer cancel()

		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	pub, closePub, err := setupPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer closePub()

	registry := service.NewEventRegistry()
	service.RegisterIntegrationEvents(registry, pub)

	dispatcher, err := service.NewOutboxServiceImpl(repository.NewOutboxRepositoryImpl(pool), registry, service.OutboxOptions{
		BatchSize:    cfg.Outbox.BatchSize,
		PollInterval: cfg.Outbox.PollInterval,
		StartupDelay: cfg.Outbox.StartupDelay,
		Logger:       log,
	})
	if err != nil {
		return err
	}

	log.Info("publishing to broker", slog.String("broker", cfg.Broker), slog.Any("topics", topics(registry)))

	return dispatcher.Run(ctx)
}

func main() {
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
		log.Error("dispatcher stopped with error", slog.String("error", err.Error()))
		stop()
		os.Exit(exitCode)
	}

	log.Info("publisher stopped")
}
