// Package main provides the consumer that reads integration events back from
// the broker and records them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/jnst/theshop-core/internal/config"
	"github.com/jnst/theshop-core/internal/kv"
	"github.com/jnst/theshop-core/internal/logger"
	"github.com/jnst/theshop-core/internal/messaging"
	"github.com/jnst/theshop-core/internal/service"
)

const (
	serviceName = "theshop-consumer"
	exitCode    = 1
)

func setupSubscriber(cfg *config.Config, log *slog.Logger) (messaging.Subscriber, func(), error) {
	switch cfg.Broker {
	case "kafka":
		return messaging.NewKafkaSubscriber(cfg.Kafka.Brokers, cfg.ConsumerGroup, log), func() {}, nil
	case "redis":
		client, err := kv.NewRedisClient(cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}

		return messaging.NewStreamSubscriber(client, cfg.ConsumerGroup, cfg.ConsumerName, log), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown broker %q", cfg.Broker)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	sub, closeSub, err := setupSubscriber(cfg, log)
	if err != nil {
		return err
	}
	defer closeSub()

	registry := service.NewEventRegistry()
	service.RegisterIntegrationEvents(registry, &eventLog{log: log})
	handler := NewMessageHandler(registry)

	g, ctx := errgroup.WithContext(ctx)

	for _, tag := range registry.Tags() {
		topic := messaging.TopicName(tag)

		g.Go(func() error {
			log.Info("starting message consumer",
				slog.String("topic", topic),
				slog.String("group", cfg.ConsumerGroup),
				slog.String("consumer", cfg.ConsumerName),
			)

			return sub.Subscribe(ctx, topic, handler.Handle)
		})
	}

	return g.Wait()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	// ログ設定
	log := logger.Setup(logger.Options{
		Service: serviceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("consumer stopped with error", slog.String("error", err.Error()))
		stop()
		os.Exit(exitCode)
	}

	log.Info("consumer stopped")
}
