package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/jnst/theshop-core/internal/model"
	"github.com/jnst/theshop-core/internal/repository"
)

func newDispatcher(t *testing.T, db *memDB, pub *fakePublisher, opts OutboxOptions) *OutboxServiceImpl {
	t.Helper()

	registry := NewEventRegistry()
	RegisterIntegrationEvents(registry, pub)

	svc, err := NewOutboxServiceImpl(memOutbox{db}, registry, opts)
	require.NoError(t, err)

	return svc.(*OutboxServiceImpl)
}

func addEvent(t *testing.T, db *memDB, ev model.IntegrationEvent) *model.OutboxEntry {
	t.Helper()

	entry, err := repository.NewOutboxEntry(ev)
	require.NoError(t, err)
	db.outbox = append(db.outbox, entry)

	return entry
}

func orderCreated(at time.Time) model.OrderCreatedIntegrationEvent {
	return model.OrderCreatedIntegrationEvent{
		EventMeta: model.NewEventMeta(at),
		OrderID:   uuid.New(),
		BuyerID:   uuid.New(),
	}
}

func TestEventRegistryResolve(t *testing.T) {
	t.Parallel()

	r := NewEventRegistry()
	RegisterIntegrationEvents(r, &fakePublisher{})

	require.Equal(t, []string{
		"OrderCreatedIntegrationEvent",
		"OrderStatusChangedIntegrationEvent",
		"ProductPriceChangedIntegrationEvent",
	}, r.Tags())

	b, err := r.Resolve("OrderCreatedIntegrationEvent")
	require.NoError(t, err)

	ev, err := b.Decode([]byte(`{"id":"7c0b7c0e-52a4-4c38-9a52-0a5f8a1f3e11","orderId":"0f8fad5b-d9cb-469f-a165-70867728950e"}`))
	require.NoError(t, err)
	require.IsType(t, model.OrderCreatedIntegrationEvent{}, ev)

	_, err = b.Decode([]byte(`not json`))
	require.ErrorIs(t, err, model.ErrMalformedEvent)

	_, err = r.Resolve("CustomerDeletedIntegrationEvent")
	require.ErrorIs(t, err, model.ErrUnregisteredEvent)
}

func TestProcessPendingEntries(t *testing.T) {
	t.Parallel()

	t.Run("publishes and marks processed", func(t *testing.T) {
		t.Parallel()

		db := newMemDB()
		pub := &fakePublisher{}
		svc := newDispatcher(t, db, pub, OutboxOptions{})
		addEvent(t, db, orderCreated(time.Now()))
		addEvent(t, db, orderCreated(time.Now()))

		stats, err := svc.ProcessPendingEntries(context.Background())
		require.NoError(t, err)
		require.Equal(t, CycleStats{Loaded: 2, Published: 2}, stats)
		require.Equal(t, 1, db.updateCalls)
		require.Equal(t, 2, pub.acceptedCount())
		require.NotNil(t, memOutbox{db}.entries()[0].ProcessedOn)
	})

	t.Run("unknown type is poison", func(t *testing.T) {
		t.Parallel()

		db := newMemDB()
		pub := &fakePublisher{}
		svc := newDispatcher(t, db, pub, OutboxOptions{})
		db.outbox = append(db.outbox, &model.OutboxEntry{
			ID: uuid.New(), EventTypeName: "LegacyIntegrationEvent", Content: []byte(`{}`), OccurredOn: time.Now(),
		})

		stats, err := svc.ProcessPendingEntries(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, stats.Poisoned)

		entry := memOutbox{db}.entries()[0]
		require.NotNil(t, entry.ProcessedOn)
		require.Contains(t, *entry.Error, "unregistered event type")
		require.Zero(t, pub.attempts)
	})

	t.Run("malformed payload is poison", func(t *testing.T) {
		t.Parallel()

		db := newMemDB()
		svc := newDispatcher(t, db, &fakePublisher{}, OutboxOptions{})
		db.outbox = append(db.outbox, &model.OutboxEntry{
			ID: uuid.New(), EventTypeName: "OrderCreatedIntegrationEvent", Content: []byte(`{"orderId":42}`), OccurredOn: time.Now(),
		})

		stats, err := svc.ProcessPendingEntries(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, stats.Poisoned)
		require.Contains(t, *memOutbox{db}.entries()[0].Error, "malformed")
	})

	t.Run("failures are isolated per entry", func(t *testing.T) {
		t.Parallel()

		db := newMemDB()
		pub := &fakePublisher{failures: 1}
		svc := newDispatcher(t, db, pub, OutboxOptions{})
		now := time.Now()
		first := addEvent(t, db, orderCreated(now.Add(-time.Minute)))
		second := addEvent(t, db, orderCreated(now))

		stats, err := svc.ProcessPendingEntries(context.Background())
		require.NoError(t, err)
		require.Equal(t, CycleStats{Loaded: 2, Published: 1, Failed: 1}, stats)

		byID := map[uuid.UUID]*model.OutboxEntry{}
		for _, e := range (memOutbox{db}).entries() {
			byID[e.ID] = e
		}
		require.Nil(t, byID[first.ID].ProcessedOn)
		require.Equal(t, errBrokerDown.Error(), *byID[first.ID].Error)
		require.NotNil(t, byID[second.ID].ProcessedOn)
	})

	t.Run("oldest first capped by batch size", func(t *testing.T) {
		t.Parallel()

		db := newMemDB()
		pub := &fakePublisher{}
		svc := newDispatcher(t, db, pub, OutboxOptions{BatchSize: 2})
		now := time.Now()
		newest := addEvent(t, db, orderCreated(now))
		addEvent(t, db, orderCreated(now.Add(-2*time.Minute)))
		addEvent(t, db, orderCreated(now.Add(-time.Minute)))

		stats, err := svc.ProcessPendingEntries(context.Background())
		require.NoError(t, err)
		require.Equal(t, 2, stats.Loaded)

		pending, err := memOutbox{db}.GetPendingEntries(context.Background(), 100)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.Equal(t, newest.ID, pending[0].ID)
	})

	t.Run("persist failure is returned", func(t *testing.T) {
		t.Parallel()

		db := newMemDB()
		db.failUpdate = errors.New("db down")
		svc := newDispatcher(t, db, &fakePublisher{}, OutboxOptions{})
		addEvent(t, db, orderCreated(time.Now()))

		_, err := svc.ProcessPendingEntries(context.Background())
		require.ErrorIs(t, err, db.failUpdate)
	})
}

func TestDispatcherAtLeastOnceAfterOutage(t *testing.T) {
	t.Parallel()

	const outageCycles = 3

	db := newMemDB()
	pub := &fakePublisher{failures: outageCycles}
	svc := newDispatcher(t, db, pub, OutboxOptions{})
	entry := addEvent(t, db, orderCreated(time.Now()))

	for i := range outageCycles {
		_, err := svc.ProcessPendingEntries(context.Background())
		require.NoError(t, err)

		got := memOutbox{db}.entries()[0]
		require.Nil(t, got.ProcessedOn, "cycle %d", i)
		require.NotNil(t, got.Error)
	}

	_, err := svc.ProcessPendingEntries(context.Background())
	require.NoError(t, err)

	got := memOutbox{db}.entries()[0]
	require.NotNil(t, got.ProcessedOn)
	require.Equal(t, 1, pub.acceptedCount())
	require.Equal(t, outageCycles+1, pub.attempts)
	require.Equal(t, entry.ID, pub.accepted[0].EventID())
}

func TestDispatcherRecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	db := newMemDB()
	svc := newDispatcher(t, db, &fakePublisher{failures: 1}, OutboxOptions{Meter: mp.Meter("test")})
	addEvent(t, db, orderCreated(time.Now().Add(-time.Second)))
	addEvent(t, db, orderCreated(time.Now()))

	_, err := svc.ProcessPendingEntries(context.Background())
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	var sawHistogram bool

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "outbox.entries":
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			case "outbox.cycle.duration":
				sawHistogram = true
			}
		}
	}

	assert.Equal(t, int64(2), total)
	assert.True(t, sawHistogram)
}

func TestDispatcherRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	db := newMemDB()
	pub := &fakePublisher{}
	svc := newDispatcher(t, db, pub, OutboxOptions{PollInterval: 5 * time.Millisecond})
	addEvent(t, db, orderCreated(time.Now()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return pub.acceptedCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDispatcherRunHonorsStartupDelay(t *testing.T) {
	t.Parallel()

	db := newMemDB()
	pub := &fakePublisher{}
	svc := newDispatcher(t, db, pub, OutboxOptions{StartupDelay: time.Hour})
	addEvent(t, db, orderCreated(time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, svc.Run(ctx))
	require.Zero(t, pub.acceptedCount())
}

type panickingOutbox struct {
	memOutbox
	calls atomic.Int32
}

func (p *panickingOutbox) GetPendingEntries(context.Context, int) ([]*model.OutboxEntry, error) {
	p.calls.Add(1)
	panic("boom")
}

func TestDispatcherSurvivesPanickingCycle(t *testing.T) {
	t.Parallel()

	repo := &panickingOutbox{}
	svc, err := NewOutboxServiceImpl(repo, NewEventRegistry(), OutboxOptions{PollInterval: time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return repo.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
