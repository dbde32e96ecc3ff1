package service

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jnst/theshop-core/internal/model"
	"github.com/jnst/theshop-core/internal/repository"
)

// memDB is an in-memory stand-in for the database. WithTransaction snapshots
// its state and restores the snapshot when fn fails.
type memDB struct {
	mu       sync.Mutex
	outbox   []*model.OutboxEntry
	orders   map[uuid.UUID]model.Order
	products map[uuid.UUID]model.Product
	accounts map[uuid.UUID]model.Account

	failOrderCreate error
	failUpdate      error
	updateCalls     int
}

func newMemDB() *memDB {
	return &memDB{
		orders:   map[uuid.UUID]model.Order{},
		products: map[uuid.UUID]model.Product{},
		accounts: map[uuid.UUID]model.Account{},
	}
}

type inTxKey struct{}

func (db *memDB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx)
	}

	db.mu.Lock()
	outbox := append([]*model.OutboxEntry(nil), db.outbox...)
	orders := maps.Clone(db.orders)
	products := maps.Clone(db.products)
	accounts := maps.Clone(db.accounts)
	db.mu.Unlock()

	if err := fn(context.WithValue(ctx, inTxKey{}, true)); err != nil {
		db.mu.Lock()
		db.outbox, db.orders, db.products, db.accounts = outbox, orders, products, accounts
		db.mu.Unlock()

		return err
	}

	return nil
}

// outbox

type memOutbox struct{ db *memDB }

func (r memOutbox) Save(ctx context.Context, event model.IntegrationEvent) error {
	if ctx.Value(inTxKey{}) == nil {
		return model.ErrNoTransaction
	}

	entry, err := repository.NewOutboxEntry(event)
	if err != nil {
		return err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.outbox = append(r.db.outbox, entry)

	return nil
}

func (r memOutbox) GetPendingEntries(_ context.Context, limit int) ([]*model.OutboxEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var pending []*model.OutboxEntry
	for _, e := range r.db.outbox {
		if e.Pending() {
			c := *e
			pending = append(pending, &c)
		}
	}

	sort.SliceStable(pending, func(i, j int) bool { return pending[i].OccurredOn.Before(pending[j].OccurredOn) })

	if len(pending) > limit {
		pending = pending[:limit]
	}

	return pending, nil
}

func (r memOutbox) UpdateEntries(_ context.Context, entries []*model.OutboxEntry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.updateCalls++
	if r.db.failUpdate != nil {
		return r.db.failUpdate
	}

	for _, u := range entries {
		for i, e := range r.db.outbox {
			if e.ID == u.ID {
				c := *u
				r.db.outbox[i] = &c
			}
		}
	}

	return nil
}

func (r memOutbox) entries() []*model.OutboxEntry {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	return append([]*model.OutboxEntry(nil), r.db.outbox...)
}

// orders and products

type memOrders struct{ db *memDB }

func (r memOrders) Create(_ context.Context, o *model.Order) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if r.db.failOrderCreate != nil {
		return r.db.failOrderCreate
	}
	r.db.orders[o.ID] = *o

	return nil
}

func (r memOrders) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	o, ok := r.db.orders[id]
	if !ok {
		return nil, model.ErrOrderNotFound
	}

	return &o, nil
}

func (r memOrders) UpdateStatus(_ context.Context, id uuid.UUID, from, to model.OrderStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	o, ok := r.db.orders[id]
	if !ok || o.Status != from {
		return model.ErrInvalidOrderTransition
	}
	o.Status = to
	r.db.orders[id] = o

	return nil
}

type memProducts struct{ db *memDB }

func (r memProducts) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	p, ok := r.db.products[id]
	if !ok {
		return nil, model.ErrProductNotFound
	}

	return &p, nil
}

func (r memProducts) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := map[uuid.UUID]*model.Product{}
	for _, id := range ids {
		if p, ok := r.db.products[id]; ok {
			out[id] = &p
		}
	}

	return out, nil
}

func (r memProducts) UpdatePrice(_ context.Context, id uuid.UUID, price int64, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	p, ok := r.db.products[id]
	if !ok {
		return model.ErrProductNotFound
	}
	p.PriceCents = price
	p.UpdatedAt = at
	r.db.products[id] = p

	return nil
}

// accounts

type memAccounts struct{ db *memDB }

func (r memAccounts) Create(_ context.Context, a *model.Account) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, existing := range r.db.accounts {
		if existing.Email == a.Email {
			return model.ErrEmailTaken
		}
	}
	r.db.accounts[a.ID] = *a

	return nil
}

func (r memAccounts) find(match func(model.Account) bool) (*model.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, a := range r.db.accounts {
		if match(a) {
			return &a, nil
		}
	}

	return nil, model.ErrAccountNotFound
}

func (r memAccounts) GetByID(_ context.Context, id uuid.UUID) (*model.Account, error) {
	return r.find(func(a model.Account) bool { return a.ID == id })
}

func (r memAccounts) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	return r.find(func(a model.Account) bool { return a.Email == email })
}

func (r memAccounts) FindByRefreshToken(_ context.Context, token string) (*model.Account, error) {
	return r.find(func(a model.Account) bool { return a.RefreshToken != nil && *a.RefreshToken == token })
}

func (r memAccounts) UpdateRefreshToken(_ context.Context, a *model.Account) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	existing, ok := r.db.accounts[a.ID]
	if !ok {
		return model.ErrAccountNotFound
	}
	existing.RefreshToken = a.RefreshToken
	existing.RefreshTokenExpiresAt = a.RefreshTokenExpiresAt
	r.db.accounts[a.ID] = existing

	return nil
}

// publisher

// fakePublisher fails the first failures calls, then accepts messages.
type fakePublisher struct {
	mu       sync.Mutex
	failures int
	accepted []model.IntegrationEvent
	attempts int
}

var errBrokerDown = errors.New("broker unreachable")

func (p *fakePublisher) Publish(_ context.Context, event model.IntegrationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts++
	if p.failures > 0 {
		p.failures--

		return errBrokerDown
	}
	p.accepted = append(p.accepted, event)

	return nil
}

func (*fakePublisher) Close() error { return nil }

func (p *fakePublisher) setFailures(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = n
}

func (p *fakePublisher) acceptedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.accepted)
}

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
