package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jnst/theshop-core/internal/model"
	"github.com/jnst/theshop-core/internal/repository"
)

const instrumentationName = "github.com/jnst/theshop-core/internal/service"

// OutboxOptions configures the dispatcher.
type OutboxOptions struct {
	BatchSize    int
	PollInterval time.Duration
	StartupDelay time.Duration
	Logger       *slog.Logger
	// Meter records dispatch metrics; the global meter provider is used when nil.
	Meter metric.Meter
	Now   func() time.Time
}

// CycleStats summarizes one dispatch cycle.
type CycleStats struct {
	Loaded    int
	Published int
	Failed    int
	Poisoned  int
}

type outboxMetrics struct {
	entries  metric.Int64Counter
	duration metric.Float64Histogram
}

// OutboxServiceImpl implements OutboxService for processing outbox entries.
type OutboxServiceImpl struct {
	outboxRepo repository.OutboxRepository
	registry   *EventRegistry
	opts       OutboxOptions
	log        *slog.Logger
	metrics    outboxMetrics
}

// NewOutboxServiceImpl creates a new OutboxService implementation.
func NewOutboxServiceImpl(
	outboxRepo repository.OutboxRepository,
	registry *EventRegistry,
	opts OutboxOptions,
) (OutboxService, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Meter == nil {
		opts.Meter = otel.Meter(instrumentationName)
	}

	entries, err := opts.Meter.Int64Counter("outbox.entries",
		metric.WithDescription("Outbox entries handled by the dispatcher, by result"))
	if err != nil {
		return nil, fmt.Errorf("failed to create outbox counter: %w", err)
	}

	duration, err := opts.Meter.Float64Histogram("outbox.cycle.duration",
		metric.WithDescription("Duration of one dispatch cycle"), metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create outbox histogram: %w", err)
	}

	return &OutboxServiceImpl{
		outboxRepo: outboxRepo,
		registry:   registry,
		opts:       opts,
		log:        opts.Logger.With(slog.String("component", "outbox_dispatcher")),
		metrics:    outboxMetrics{entries: entries, duration: duration},
	}, nil
}

// ProcessPendingEntries loads the oldest pending entries, publishes each
// through its registered binding and persists all outcomes in one commit.
// A failing entry never stops the rest of the batch.
func (s *OutboxServiceImpl) ProcessPendingEntries(ctx context.Context) (CycleStats, error) {
	var stats CycleStats

	start := time.Now()
	defer func() {
		s.metrics.duration.Record(ctx, time.Since(start).Seconds())
	}()

	entries, err := s.outboxRepo.GetPendingEntries(ctx, s.opts.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("failed to load pending entries: %w", err)
	}

	stats.Loaded = len(entries)
	if len(entries) == 0 {
		return stats, nil
	}

	for _, entry := range entries {
		result := s.dispatch(ctx, entry)

		switch result {
		case resultPublished:
			stats.Published++
		case resultPoisoned:
			stats.Poisoned++
		default:
			stats.Failed++
		}

		s.metrics.entries.Add(ctx, 1, metric.WithAttributes(
			attribute.String("result", result),
			attribute.String("event_type", entry.EventTypeName),
		))
	}

	if err := s.outboxRepo.UpdateEntries(ctx, entries); err != nil {
		return stats, fmt.Errorf("failed to persist outbox entries: %w", err)
	}

	return stats, nil
}

const (
	resultPublished = "published"
	resultFailed    = "failed"
	resultPoisoned  = "poisoned"
)

func (s *OutboxServiceImpl) dispatch(ctx context.Context, entry *model.OutboxEntry) string {
	log := s.log.With(
		slog.String("entry_id", entry.ID.String()),
		slog.String("event_type", entry.EventTypeName),
	)

	binding, err := s.registry.Resolve(entry.EventTypeName)
	if err != nil {
		return s.poison(entry, log, err)
	}

	event, err := binding.Decode(entry.Content)
	if err != nil {
		return s.poison(entry, log, err)
	}

	if err := binding.Publish(ctx, event); err != nil {
		entry.RecordError(err.Error())
		log.Debug("publish failed, entry stays pending", slog.String("error", err.Error()))

		return resultFailed
	}

	entry.MarkProcessed(s.opts.Now())

	return resultPublished
}

// poison closes an entry that no retry can deliver.
func (s *OutboxServiceImpl) poison(entry *model.OutboxEntry, log *slog.Logger, err error) string {
	entry.RecordError(err.Error())
	entry.MarkProcessed(s.opts.Now())
	log.Error("poison outbox entry", slog.String("error", err.Error()))

	return resultPoisoned
}

// Run waits for the startup delay, then runs a cycle every poll interval
// until ctx is cancelled. Cancellation is a clean stop and returns nil.
func (s *OutboxServiceImpl) Run(ctx context.Context) error {
	s.log.Info("outbox dispatcher starting",
		slog.Duration("startup_delay", s.opts.StartupDelay),
		slog.Duration("poll_interval", s.opts.PollInterval),
		slog.Int("batch_size", s.opts.BatchSize),
	)

	if !sleepContext(ctx, s.opts.StartupDelay) {
		s.log.Info("outbox dispatcher stopped")

		return nil
	}

	for {
		s.runCycle(ctx)

		if !sleepContext(ctx, s.opts.PollInterval) {
			s.log.Info("outbox dispatcher stopped")

			return nil
		}
	}
}

// runCycle runs one cycle detached from ctx cancellation so entries already
// being published are finished and persisted.
func (s *OutboxServiceImpl) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("outbox cycle panicked", slog.Any("panic", r))
		}
	}()

	stats, err := s.ProcessPendingEntries(context.WithoutCancel(ctx))
	if err != nil {
		s.log.Error("outbox cycle failed", slog.String("error", err.Error()))

		return
	}

	if stats.Loaded > 0 {
		s.log.Info("outbox cycle finished",
			slog.Int("loaded", stats.Loaded),
			slog.Int("published", stats.Published),
			slog.Int("failed", stats.Failed),
			slog.Int("poisoned", stats.Poisoned),
		)
	}
}

// sleepContext waits for d and reports whether ctx is still live.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}

	if d <= 0 {
		return true
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
