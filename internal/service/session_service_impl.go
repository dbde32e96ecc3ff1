package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jnst/theshop-core/internal/kv"
	"github.com/jnst/theshop-core/internal/model"
)

const (
	sessionPrefix      = "session:"
	sessionJTIPrefix   = "session:jti:"
	userSessionsPrefix = "user:sessions:"
)

func sessionKey(id uuid.UUID) string { return sessionPrefix + id.String() }

func sessionJTIKey(jti string) string { return sessionJTIPrefix + jti }

func userSessionsKey(userID uuid.UUID) string { return userSessionsPrefix + userID.String() }

// SessionOptions configures SessionServiceImpl.
type SessionOptions struct {
	// UserIndexTTL is the lifetime of the per-user session id set.
	UserIndexTTL time.Duration
	// RevokedRetention is how long a revoked record is kept for audit.
	RevokedRetention time.Duration
	Now              func() time.Time
}

// SessionServiceImpl implements SessionService on a kv.Store. A session is
// stored under its id, indexed by jti with the same ttl, and listed in a
// per-user set with a longer ttl.
type SessionServiceImpl struct {
	store kv.Store
	opts  SessionOptions
}

// NewSessionServiceImpl creates a new SessionService implementation.
func NewSessionServiceImpl(store kv.Store, opts SessionOptions) SessionService {
	if opts.UserIndexTTL <= 0 {
		opts.UserIndexTTL = 30 * 24 * time.Hour
	}

	if opts.RevokedRetention <= 0 {
		opts.RevokedRetention = time.Hour
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &SessionServiceImpl{store: store, opts: opts}
}

// CreateSession stores a new active session and its indexes.
func (s *SessionServiceImpl) CreateSession(ctx context.Context, p *model.CreateSessionParams) (*model.UserSession, error) {
	if p.Expiration <= 0 {
		return nil, fmt.Errorf("session expiration must be positive, got %s", p.Expiration)
	}

	now := s.opts.Now().UTC()
	session := &model.UserSession{
		SessionID:      uuid.New(),
		UserID:         p.UserID,
		Email:          p.Email,
		Name:           p.Name,
		Role:           p.Role,
		JTI:            p.JTI,
		DeviceInfo:     p.DeviceInfo,
		IPAddress:      p.IPAddress,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(p.Expiration),
	}

	if err := s.put(ctx, session, p.Expiration); err != nil {
		return nil, err
	}

	if err := s.store.Set(ctx, sessionJTIKey(p.JTI), session.SessionID.String(), p.Expiration); err != nil {
		return nil, fmt.Errorf("failed to index session by jti: %w", err)
	}

	setKey := userSessionsKey(p.UserID)
	if err := s.store.SAdd(ctx, setKey, session.SessionID.String()); err != nil {
		return nil, fmt.Errorf("failed to index session by user: %w", err)
	}

	if err := s.store.Expire(ctx, setKey, s.opts.UserIndexTTL); err != nil {
		return nil, fmt.Errorf("failed to set user session index ttl: %w", err)
	}

	return session, nil
}

// GetSession returns the session stored under sessionID, revoked or not,
// or nil when it does not exist.
func (s *SessionServiceImpl) GetSession(ctx context.Context, sessionID uuid.UUID) (*model.UserSession, error) {
	raw, found, err := s.store.Get(ctx, sessionKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	if !found {
		return nil, nil
	}

	var session model.UserSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}

	return &session, nil
}

// GetSessionByJTI resolves the jti index and returns its session, or nil.
func (s *SessionServiceImpl) GetSessionByJTI(ctx context.Context, jti string) (*model.UserSession, error) {
	if jti == "" {
		return nil, nil
	}

	raw, found, err := s.store.Get(ctx, sessionJTIKey(jti))
	if err != nil {
		return nil, fmt.Errorf("failed to read jti index: %w", err)
	}

	if !found {
		return nil, nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, nil
	}

	return s.GetSession(ctx, id)
}

// ValidateSession reports whether jti belongs to an active session. Absent,
// revoked and expired sessions all yield false. An error is returned only
// when the store cannot answer.
func (s *SessionServiceImpl) ValidateSession(ctx context.Context, jti string) (bool, error) {
	session, err := s.GetSessionByJTI(ctx, jti)
	if err != nil {
		return false, err
	}

	return session != nil && session.Active(s.opts.Now()), nil
}

// UpdateActivity bumps LastActivityAt of an active session. The record is
// re-persisted with its remaining ttl, so absolute expiry never moves. A
// concurrent revocation always wins.
func (s *SessionServiceImpl) UpdateActivity(ctx context.Context, jti string) error {
	session, err := s.GetSessionByJTI(ctx, jti)
	if err != nil || session == nil {
		return err
	}

	now := s.opts.Now()
	if !session.Active(now) {
		return nil
	}

	remaining := session.ExpiresAt.Sub(now)
	session.LastActivityAt = now.UTC()
	if err := s.put(ctx, session, remaining); err != nil {
		return err
	}

	// A revocation that ran between the read and the write above has already
	// dropped the jti index, so the write may have resurrected the record.
	_, indexed, err := s.store.Get(ctx, sessionJTIKey(jti))
	if err != nil {
		return fmt.Errorf("failed to recheck jti index: %w", err)
	}

	if !indexed {
		slog.WarnContext(ctx, "session revoked during activity update",
			slog.String("session_id", session.SessionID.String()))

		return s.reconcileRevoked(ctx, session)
	}

	return nil
}

// RevokeSession revokes the session behind jti. Unknown jtis are ignored.
func (s *SessionServiceImpl) RevokeSession(ctx context.Context, jti string) error {
	session, err := s.GetSessionByJTI(ctx, jti)
	if err != nil {
		return err
	}

	if session == nil {
		return s.store.Del(ctx, sessionJTIKey(jti))
	}

	return s.reconcileRevoked(ctx, session)
}

// RevokeSessionByID revokes one of userID's sessions by its id.
func (s *SessionServiceImpl) RevokeSessionByID(ctx context.Context, userID, sessionID uuid.UUID) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if session == nil || session.UserID != userID {
		return model.ErrSessionNotFound
	}

	return s.reconcileRevoked(ctx, session)
}

// RevokeAllUserSessions revokes every session in the user's index and drops
// the index.
func (s *SessionServiceImpl) RevokeAllUserSessions(ctx context.Context, userID uuid.UUID) error {
	setKey := userSessionsKey(userID)

	ids, err := s.store.SMembers(ctx, setKey)
	if err != nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}

	for _, raw := range ids {
		session, err := s.sessionFromMember(ctx, raw)
		if err != nil {
			return err
		}

		if session == nil {
			continue
		}

		if err := s.reconcileRevoked(ctx, session); err != nil {
			return err
		}
	}

	return s.store.Del(ctx, setKey)
}

// ListUserSessions returns the user's active sessions, most recently used
// first. Ids whose session expired or was revoked are pruned from the index.
func (s *SessionServiceImpl) ListUserSessions(ctx context.Context, userID uuid.UUID) ([]model.SessionSummary, error) {
	setKey := userSessionsKey(userID)

	ids, err := s.store.SMembers(ctx, setKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list user sessions: %w", err)
	}

	now := s.opts.Now()
	out := make([]model.SessionSummary, 0, len(ids))

	for _, raw := range ids {
		session, err := s.sessionFromMember(ctx, raw)
		if err != nil {
			return nil, err
		}

		switch {
		case session == nil:
			s.prune(ctx, setKey, raw)
		case session.IsRevoked:
			if err := s.reconcileRevoked(ctx, session); err != nil {
				slog.WarnContext(ctx, "failed to reconcile revoked session",
					slog.String("session_id", raw), slog.String("error", err.Error()))
			}
		case session.Active(now):
			out = append(out, session.Summary())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})

	return out, nil
}

// CountActiveSessions scans every session record and counts the active ones.
func (s *SessionServiceImpl) CountActiveSessions(ctx context.Context) (int, error) {
	keys, err := s.store.Keys(ctx, sessionPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to scan sessions: %w", err)
	}

	now := s.opts.Now()
	count := 0

	for _, key := range keys {
		if strings.HasPrefix(key, sessionJTIPrefix) {
			continue
		}

		id, err := uuid.Parse(strings.TrimPrefix(key, sessionPrefix))
		if err != nil {
			continue
		}

		session, err := s.GetSession(ctx, id)
		if err != nil {
			return 0, err
		}

		if session != nil && session.Active(now) {
			count++
		}
	}

	return count, nil
}

// reconcileRevoked brings every key of a session to the revoked state: the
// jti index is removed, the record is flagged and kept briefly and the id is
// dropped from the user's set. The jti index goes first so UpdateActivity can
// detect a revocation that raced its write. Each step is idempotent, so a
// partial run is repaired by running it again.
func (s *SessionServiceImpl) reconcileRevoked(ctx context.Context, session *model.UserSession) error {
	if err := s.store.Del(ctx, sessionJTIKey(session.JTI)); err != nil {
		return fmt.Errorf("failed to delete jti index: %w", err)
	}

	if !session.IsRevoked {
		retention := min(s.opts.RevokedRetention, session.ExpiresAt.Sub(s.opts.Now()))
		if retention > 0 {
			session.IsRevoked = true
			if err := s.put(ctx, session, retention); err != nil {
				return err
			}
		} else if err := s.store.Del(ctx, sessionKey(session.SessionID)); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}

	if err := s.store.SRem(ctx, userSessionsKey(session.UserID), session.SessionID.String()); err != nil {
		return fmt.Errorf("failed to remove session from user index: %w", err)
	}

	return nil
}

func (s *SessionServiceImpl) sessionFromMember(ctx context.Context, member string) (*model.UserSession, error) {
	id, err := uuid.Parse(member)
	if err != nil {
		return nil, nil
	}

	return s.GetSession(ctx, id)
}

func (s *SessionServiceImpl) prune(ctx context.Context, setKey, member string) {
	if err := s.store.SRem(ctx, setKey, member); err != nil {
		slog.WarnContext(ctx, "failed to prune session index",
			slog.String("session_id", member), slog.String("error", err.Error()))
	}
}

func (s *SessionServiceImpl) put(ctx context.Context, session *model.UserSession, ttl time.Duration) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := s.store.Set(ctx, sessionKey(session.SessionID), string(raw), ttl); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	return nil
}
