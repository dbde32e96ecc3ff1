package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jnst/theshop-core/internal/model"
)

const (
	accountColumns = `id, email, first_name, last_name, password_hash, role, is_active,
refresh_token, refresh_token_expires_at, created_at`

	uniqueViolation = "23505"
)

// AccountRepositoryImpl implements AccountRepository using PostgreSQL.
type AccountRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewAccountRepositoryImpl creates a new AccountRepository implementation.
func NewAccountRepositoryImpl(pool *pgxpool.Pool) AccountRepository {
	return &AccountRepositoryImpl{pool: pool}
}

// Create inserts a new account.
func (r *AccountRepositoryImpl) Create(ctx context.Context, a *model.Account) error {
	_, err := querier(ctx, r.pool).Exec(ctx,
		`INSERT INTO accounts (id, email, first_name, last_name, password_hash, role, is_active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Email, a.FirstName, a.LastName, a.PasswordHash, string(a.Role), a.IsActive, a.CreatedAt,
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return model.ErrEmailTaken
	}

	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetByEmail retrieves an account by email.
func (r *AccountRepositoryImpl) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

// FindByRefreshToken retrieves the account currently holding token.
func (r *AccountRepositoryImpl) FindByRefreshToken(ctx context.Context, token string) (*model.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE refresh_token = $1`, token)
}

// UpdateRefreshToken overwrites the account's refresh-token slot.
func (r *AccountRepositoryImpl) UpdateRefreshToken(ctx context.Context, a *model.Account) error {
	tag, err := querier(ctx, r.pool).Exec(ctx,
		`UPDATE accounts SET refresh_token = $2, refresh_token_expires_at = $3 WHERE id = $1`,
		a.ID, a.RefreshToken, a.RefreshTokenExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update refresh token: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return model.ErrAccountNotFound
	}

	return nil
}

func (r *AccountRepositoryImpl) getOne(ctx context.Context, sql string, arg any) (*model.Account, error) {
	var (
		a    model.Account
		role string
	)

	err := querier(ctx, r.pool).QueryRow(ctx, sql, arg).Scan(
		&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.PasswordHash, &role, &a.IsActive,
		&a.RefreshToken, &a.RefreshTokenExpiresAt, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrAccountNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	a.Role = model.Role(role)

	return &a, nil
}
