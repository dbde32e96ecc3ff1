package model

import (
	"time"

	"github.com/google/uuid"
)

// UserSession is the server-side record behind an access token. It is looked
// up by session id and, while active, by the token's jti.
type UserSession struct {
	SessionID      uuid.UUID `json:"sessionId"`
	UserID         uuid.UUID `json:"userId"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Role           Role      `json:"role"`
	JTI            string    `json:"jti"`
	DeviceInfo     string    `json:"deviceInfo,omitempty"`
	IPAddress      string    `json:"ipAddress,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	IsRevoked      bool      `json:"isRevoked"`
}

// Active reports whether the session may still authenticate requests at now.
func (s *UserSession) Active(now time.Time) bool {
	return !s.IsRevoked && now.Before(s.ExpiresAt)
}

// Summary returns the listing projection of the session.
func (s *UserSession) Summary() SessionSummary {
	return SessionSummary{
		SessionID:      s.SessionID,
		DeviceInfo:     s.DeviceInfo,
		IPAddress:      s.IPAddress,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
	}
}

// SessionSummary is the read-only projection exposed by session listing.
type SessionSummary struct {
	SessionID      uuid.UUID `json:"sessionId"`
	DeviceInfo     string    `json:"deviceInfo,omitempty"`
	IPAddress      string    `json:"ipAddress,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// CreateSessionParams represents parameters for creating a session.
type CreateSessionParams struct {
	UserID     uuid.UUID
	Email      string
	Name       string
	Role       Role
	JTI        string
	Expiration time.Duration
	DeviceInfo string
	IPAddress  string
}

// Principal is the authenticated caller of a request, taken from a verified
// access token whose session is active.
type Principal struct {
	UserID uuid.UUID
	Email  string
	Name   string
	Role   Role
	JTI    string
}

// IsAdmin reports whether the caller has the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanAccess reports whether the caller may act on a resource owned by ownerID.
func (p Principal) CanAccess(ownerID uuid.UUID) bool {
	return p.IsAdmin() || p.UserID == ownerID
}
