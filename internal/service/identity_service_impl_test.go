package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jnst/theshop-core/internal/kv/kvtest"
	"github.com/jnst/theshop-core/internal/model"
)

type identityFixture struct {
	svc      IdentityService
	tokens   TokenService
	sessions SessionService
	accounts memAccounts
	clk      *clock
}

func newIdentityFixture(t *testing.T) *identityFixture {
	t.Helper()

	clk := newClock()
	db := newMemDB()
	accounts := memAccounts{db}
	tokens := newTokenService(t, clk)
	sessions := NewSessionServiceImpl(kvtest.NewMemoryStore(clk.Now), SessionOptions{Now: clk.Now})

	svc := NewIdentityServiceImpl(accounts, tokens, sessions, IdentityOptions{
		SessionTTL: time.Hour, BcryptCost: bcrypt.MinCost, Now: clk.Now,
	})

	return &identityFixture{svc: svc, tokens: tokens, sessions: sessions, accounts: accounts, clk: clk}
}

func (f *identityFixture) register(t *testing.T) *model.Account {
	t.Helper()

	a, err := f.svc.Register(context.Background(), &model.RegisterParams{
		Email: " Ada@Example.com ", Password: "correct-horse", FirstName: "Ada", LastName: "Lovelace",
	})
	require.NoError(t, err)

	return a
}

func (f *identityFixture) login(t *testing.T, device string) (*model.TokenPair, model.Principal) {
	t.Helper()

	pair, err := f.svc.Login(context.Background(), &model.LoginParams{
		Email: "ada@example.com", Password: "correct-horse", DeviceInfo: device,
	})
	require.NoError(t, err)

	return pair, f.principal(t, pair.AccessToken)
}

func (f *identityFixture) principal(t *testing.T, token string) model.Principal {
	t.Helper()

	claims, err := f.tokens.ParseAccessToken(token)
	require.NoError(t, err)
	p, err := claims.Principal()
	require.NoError(t, err)

	return p
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newIdentityFixture(t)
	account := f.register(t)
	require.Equal(t, "ada@example.com", account.Email)
	require.Equal(t, model.RoleCustomer, account.Role)

	_, err := f.svc.Register(ctx, &model.RegisterParams{Email: "ada@example.com", Password: "12345678", FirstName: "A"})
	require.ErrorIs(t, err, model.ErrEmailTaken)

	_, err = f.svc.Register(ctx, &model.RegisterParams{Email: "b@example.com", Password: "short", FirstName: "B"})
	require.ErrorIs(t, err, model.ErrWeakPassword)

	pair, p := f.login(t, "phone")
	require.Equal(t, int64(3600), pair.ExpiresIn)

	ok, err := f.sessions.ValidateSession(ctx, p.JTI)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.Login(ctx, &model.LoginParams{Email: "ada@example.com", Password: "wrong-pass"})
	require.ErrorIs(t, err, model.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, &model.LoginParams{Email: "nobody@example.com", Password: "whatever1"})
	require.ErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	t.Parallel()

	f := newIdentityFixture(t)
	account := f.register(t)

	stored := f.accounts.db.accounts[account.ID]
	stored.IsActive = false
	f.accounts.db.accounts[account.ID] = stored

	_, err := f.svc.Login(context.Background(), &model.LoginParams{Email: "ada@example.com", Password: "correct-horse"})
	require.ErrorIs(t, err, model.ErrAccountDisabled)
}

func TestRefreshRotatesAndRevokesPrevious(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newIdentityFixture(t)
	f.register(t)
	pair, p := f.login(t, "laptop")

	next, err := f.svc.Refresh(ctx, &model.RefreshParams{RefreshToken: pair.RefreshToken, PreviousJTI: p.JTI})
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	ok, err := f.sessions.ValidateSession(ctx, p.JTI)
	require.NoError(t, err)
	require.False(t, ok, "previous session is revoked")

	ok, err = f.sessions.ValidateSession(ctx, f.principal(t, next.AccessToken).JTI)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.Refresh(ctx, &model.RefreshParams{RefreshToken: pair.RefreshToken})
	require.ErrorIs(t, err, model.ErrInvalidRefreshToken, "rotated token is dead")

	f.clk.Advance(8 * 24 * time.Hour)
	_, err = f.svc.Refresh(ctx, &model.RefreshParams{RefreshToken: next.RefreshToken})
	require.ErrorIs(t, err, model.ErrInvalidRefreshToken, "expired token is dead")

	_, err = f.svc.Refresh(ctx, &model.RefreshParams{})
	require.ErrorIs(t, err, model.ErrInvalidRefreshToken)
}

func TestLogout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newIdentityFixture(t)
	f.register(t)

	_, phone := f.login(t, "phone")
	_, laptop := f.login(t, "laptop")

	sessions, err := f.svc.ListSessions(ctx, laptop)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	require.NoError(t, f.svc.Logout(ctx, phone, false))

	ok, err := f.sessions.ValidateSession(ctx, phone.JTI)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.sessions.ValidateSession(ctx, laptop.JTI)
	require.NoError(t, err)
	require.True(t, ok)

	pair, tablet := f.login(t, "tablet")
	require.NoError(t, f.svc.Logout(ctx, tablet, true))

	for _, jti := range []string{laptop.JTI, tablet.JTI} {
		ok, err := f.sessions.ValidateSession(ctx, jti)
		require.NoError(t, err)
		require.False(t, ok)
	}

	_, err = f.svc.Refresh(ctx, &model.RefreshParams{RefreshToken: pair.RefreshToken})
	require.ErrorIs(t, err, model.ErrInvalidRefreshToken, "logout everywhere clears the refresh slot")
}

func TestRevokeSessionByOwner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newIdentityFixture(t)
	f.register(t)
	_, phone := f.login(t, "phone")
	_, laptop := f.login(t, "laptop")

	list, err := f.svc.ListSessions(ctx, laptop)
	require.NoError(t, err)

	var phoneSession model.SessionSummary
	for _, s := range list {
		if s.DeviceInfo == "phone" {
			phoneSession = s
		}
	}

	require.NoError(t, f.svc.RevokeSession(ctx, laptop, phoneSession.SessionID))

	ok, err := f.sessions.ValidateSession(ctx, phone.JTI)
	require.NoError(t, err)
	require.False(t, ok)
}
