package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jnst/theshop-core/internal/model"
	"github.com/jnst/theshop-core/internal/repository"
)

// IdentityOptions configures IdentityServiceImpl.
type IdentityOptions struct {
	// SessionTTL is the lifetime of a session; it matches the access token.
	SessionTTL      time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int
	Now             func() time.Time
}

// IdentityServiceImpl implements IdentityService.
type IdentityServiceImpl struct {
	accounts repository.AccountRepository
	tokens   TokenService
	sessions SessionService
	opts     IdentityOptions
}

// NewIdentityServiceImpl creates a new IdentityService implementation.
func NewIdentityServiceImpl(
	accounts repository.AccountRepository,
	tokens TokenService,
	sessions SessionService,
	opts IdentityOptions,
) IdentityService {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 6 * time.Hour
	}

	if opts.RefreshTokenTTL <= 0 {
		opts.RefreshTokenTTL = 7 * 24 * time.Hour
	}

	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &IdentityServiceImpl{accounts: accounts, tokens: tokens, sessions: sessions, opts: opts}
}

// Register creates a customer account.
func (s *IdentityServiceImpl) Register(ctx context.Context, params *model.RegisterParams) (*model.Account, error) {
	params.Email = strings.ToLower(strings.TrimSpace(params.Email))
	if err := params.Validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), s.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &model.Account{
		ID:           uuid.New(),
		Email:        params.Email,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		PasswordHash: string(hash),
		Role:         model.RoleCustomer,
		IsActive:     true,
		CreatedAt:    s.opts.Now().UTC(),
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	return account, nil
}

// Login checks credentials and opens a session for the device.
func (s *IdentityServiceImpl) Login(ctx context.Context, params *model.LoginParams) (*model.TokenPair, error) {
	account, err := s.accounts.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(params.Email)))
	if errors.Is(err, model.ErrAccountNotFound) {
		return nil, model.ErrInvalidCredentials
	}

	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(params.Password)); err != nil {
		return nil, model.ErrInvalidCredentials
	}

	if !account.IsActive {
		return nil, model.ErrAccountDisabled
	}

	return s.issue(ctx, account, params.DeviceInfo, params.IPAddress)
}

// Refresh rotates the account's refresh token and opens a new session. The
// session of the previous access token is revoked when it is named.
func (s *IdentityServiceImpl) Refresh(ctx context.Context, params *model.RefreshParams) (*model.TokenPair, error) {
	if params.RefreshToken == "" {
		return nil, model.ErrInvalidRefreshToken
	}

	account, err := s.accounts.FindByRefreshToken(ctx, params.RefreshToken)
	if errors.Is(err, model.ErrAccountNotFound) {
		return nil, model.ErrInvalidRefreshToken
	}

	if err != nil {
		return nil, err
	}

	if !account.IsRefreshTokenValid(params.RefreshToken, s.opts.Now()) {
		return nil, model.ErrInvalidRefreshToken
	}

	if !account.IsActive {
		return nil, model.ErrAccountDisabled
	}

	if params.PreviousJTI != "" {
		if err := s.revokePrevious(ctx, account.ID, params.PreviousJTI); err != nil {
			return nil, err
		}
	}

	return s.issue(ctx, account, params.DeviceInfo, params.IPAddress)
}

func (s *IdentityServiceImpl) revokePrevious(ctx context.Context, accountID uuid.UUID, jti string) error {
	prev, err := s.sessions.GetSessionByJTI(ctx, jti)
	if err != nil {
		return err
	}

	if prev == nil || prev.UserID != accountID {
		return nil
	}

	return s.sessions.RevokeSession(ctx, jti)
}

// Logout revokes the caller's session, or with allDevices every session of
// the account together with its refresh token.
func (s *IdentityServiceImpl) Logout(ctx context.Context, principal model.Principal, allDevices bool) error {
	if !allDevices {
		return s.sessions.RevokeSession(ctx, principal.JTI)
	}

	if err := s.sessions.RevokeAllUserSessions(ctx, principal.UserID); err != nil {
		return err
	}

	account, err := s.accounts.GetByID(ctx, principal.UserID)
	if errors.Is(err, model.ErrAccountNotFound) {
		return nil
	}

	if err != nil {
		return err
	}

	account.RevokeRefreshToken()

	return s.accounts.UpdateRefreshToken(ctx, account)
}

// ListSessions lists the caller's active sessions.
func (s *IdentityServiceImpl) ListSessions(ctx context.Context, principal model.Principal) ([]model.SessionSummary, error) {
	return s.sessions.ListUserSessions(ctx, principal.UserID)
}

// RevokeSession revokes one of the caller's sessions by id.
func (s *IdentityServiceImpl) RevokeSession(ctx context.Context, principal model.Principal, sessionID uuid.UUID) error {
	return s.sessions.RevokeSessionByID(ctx, principal.UserID, sessionID)
}

// issue creates an access token, a session bound to its jti and a new
// refresh token that overwrites the account's slot.
func (s *IdentityServiceImpl) issue(
	ctx context.Context, account *model.Account, deviceInfo, ipAddress string,
) (*model.TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(account)
	if err != nil {
		return nil, err
	}

	refresh, err := s.tokens.IssueRefreshToken()
	if err != nil {
		return nil, err
	}

	account.UpdateRefreshToken(refresh, s.opts.Now().Add(s.opts.RefreshTokenTTL))
	if err := s.accounts.UpdateRefreshToken(ctx, account); err != nil {
		return nil, err
	}

	session, err := s.sessions.CreateSession(ctx, &model.CreateSessionParams{
		UserID:     account.ID,
		Email:      account.Email,
		Name:       account.DisplayName(),
		Role:       account.Role,
		JTI:        access.JTI,
		Expiration: s.opts.SessionTTL,
		DeviceInfo: deviceInfo,
		IPAddress:  ipAddress,
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "session opened",
		slog.String("user_id", account.ID.String()),
		slog.String("session_id", session.SessionID.String()),
	)

	return &model.TokenPair{
		AccessToken:  access.Token,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.opts.SessionTTL / time.Second),
	}, nil
}
