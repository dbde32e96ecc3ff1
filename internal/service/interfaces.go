// Package service provides business logic layer implementations.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jnst/theshop-core/internal/model"
)

// OutboxService drains pending outbox entries to the broker.
type OutboxService interface {
	// ProcessPendingEntries runs one dispatch cycle.
	ProcessPendingEntries(ctx context.Context) (CycleStats, error)
	// Run dispatches on a fixed interval until ctx is cancelled.
	Run(ctx context.Context) error
}

// IdempotencyService caches responses of write requests by caller-built key.
type IdempotencyService interface {
	Get(ctx context.Context, key string) (*model.IdempotencyRecord, error)
	Store(ctx context.Context, key string, statusCode int, body string, ttl time.Duration) error
	TryClaim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// SessionService manages server-side sessions behind access tokens.
type SessionService interface {
	CreateSession(ctx context.Context, params *model.CreateSessionParams) (*model.UserSession, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (*model.UserSession, error)
	GetSessionByJTI(ctx context.Context, jti string) (*model.UserSession, error)
	ValidateSession(ctx context.Context, jti string) (bool, error)
	UpdateActivity(ctx context.Context, jti string) error
	RevokeSession(ctx context.Context, jti string) error
	RevokeSessionByID(ctx context.Context, userID, sessionID uuid.UUID) error
	RevokeAllUserSessions(ctx context.Context, userID uuid.UUID) error
	ListUserSessions(ctx context.Context, userID uuid.UUID) ([]model.SessionSummary, error)
	CountActiveSessions(ctx context.Context) (int, error)
}

// TokenService issues and verifies tokens.
type TokenService interface {
	IssueAccessToken(account *model.Account) (*IssuedToken, error)
	IssueRefreshToken() (string, error)
	ParseAccessToken(token string) (*AccessClaims, error)
	// ParseExpiredAccessToken verifies the signature but ignores expiry, so a
	// refresh can name the session of the token it replaces.
	ParseExpiredAccessToken(token string) (*AccessClaims, error)
}

// IdentityService handles registration, login and the token lifecycle.
type IdentityService interface {
	Register(ctx context.Context, params *model.RegisterParams) (*model.Account, error)
	Login(ctx context.Context, params *model.LoginParams) (*model.TokenPair, error)
	Refresh(ctx context.Context, params *model.RefreshParams) (*model.TokenPair, error)
	Logout(ctx context.Context, principal model.Principal, allDevices bool) error
	ListSessions(ctx context.Context, principal model.Principal) ([]model.SessionSummary, error)
	RevokeSession(ctx context.Context, principal model.Principal, sessionID uuid.UUID) error
}

// OrderService defines business logic methods for orders.
type OrderService interface {
	CreateOrder(ctx context.Context, params *model.CreateOrderParams) (*model.Order, error)
	GetOrder(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.Order, error)
	CancelOrder(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.Order, error)
	ShipOrder(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.Order, error)
}

// CatalogService defines business logic methods for the catalog.
type CatalogService interface {
	UpdateProductPrice(ctx context.Context, principal model.Principal, id uuid.UUID, priceCents int64) (*model.Product, error)
}
