package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the authorization role embedded in access tokens.
type Role string

const (
	// RoleCustomer is the default role for registered accounts.
	RoleCustomer Role = "Customer"
	// RoleAdmin may ship orders and change catalog prices.
	RoleAdmin Role = "Admin"
)

// Account represents a user account. It holds a single refresh-token slot:
// issuing a new refresh token overwrites (and so invalidates) the previous one.
type Account struct {
	ID                    uuid.UUID  `json:"id"`
	Email                 string     `json:"email"`
	FirstName             string     `json:"firstName"`
	LastName              string     `json:"lastName"`
	PasswordHash          string     `json:"-"`
	Role                  Role       `json:"role"`
	IsActive              bool       `json:"isActive"`
	RefreshToken          *string    `json:"-"`
	RefreshTokenExpiresAt *time.Time `json:"-"`
	CreatedAt             time.Time  `json:"createdAt"`
}

// DisplayName is the name embedded in tokens and sessions.
func (a *Account) DisplayName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// UpdateRefreshToken replaces the refresh-token slot.
func (a *Account) UpdateRefreshToken(token string, expiresAt time.Time) {
	t := expiresAt.UTC()
	a.RefreshToken = &token
	a.RefreshTokenExpiresAt = &t
}

// RevokeRefreshToken clears the refresh-token slot.
func (a *Account) RevokeRefreshToken() {
	a.RefreshToken = nil
	a.RefreshTokenExpiresAt = nil
}

// IsRefreshTokenValid reports whether token is the account's current, unexpired refresh token.
func (a *Account) IsRefreshTokenValid(token string, now time.Time) bool {
	if a.RefreshToken == nil || a.RefreshTokenExpiresAt == nil || token == "" {
		return false
	}

	return *a.RefreshToken == token && now.Before(*a.RefreshTokenExpiresAt)
}

// RegisterParams represents parameters for creating a new account.
type RegisterParams struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Validate validates the register parameters.
func (p *RegisterParams) Validate() error {
	if !strings.Contains(p.Email, "@") {
		return ErrInvalidEmail
	}

	if len(p.Password) < 8 {
		return ErrWeakPassword
	}

	if p.FirstName == "" {
		return ErrInvalidName
	}

	return nil
}

// LoginParams represents a credential login from a device.
type LoginParams struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceInfo string `json:"-"`
	IPAddress  string `json:"-"`
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// RefreshParams exchanges a refresh token for a new pair. PreviousJTI, when
// known, identifies the session the old access token belonged to.
type RefreshParams struct {
	RefreshToken string `json:"refreshToken"`
	PreviousJTI  string `json:"-"`
	DeviceInfo   string `json:"-"`
	IPAddress    string `json:"-"`
}
