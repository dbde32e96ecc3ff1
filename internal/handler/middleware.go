package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jnst/theshop-core/internal/logger"
	"github.com/jnst/theshop-core/internal/model"
)

const (
	// IdempotencyKeyHeader carries the client-chosen idempotency key.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotencyReplayedHeader marks a response served from the cache.
	IdempotencyReplayedHeader = "Idempotency-Replayed"

	activityUpdateTimeout = 2 * time.Second
)

type principalKey struct{}

func withPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated caller stored by the authentication middleware.
func PrincipalFrom(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(model.Principal)

	return p, ok
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")

	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token == "" {
		return "", false
	}

	return token, true
}

// authenticate admits requests whose access token verifies and whose session
// is still active. The session's activity is bumped off the request path.
func (s *APIServer) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return s.authenticateWith(next, true)
}

// authenticateEnding is authenticate for requests that end a session. They
// skip the activity bump, which would otherwise race the revocation.
func (s *APIServer) authenticateEnding(next http.HandlerFunc) http.HandlerFunc {
	return s.authenticateWith(next, false)
}

func (s *APIServer) authenticateWith(next http.HandlerFunc, touch bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, r, model.ErrInvalidToken)

			return
		}

		claims, err := s.tokens.ParseAccessToken(token)
		if err != nil {
			writeError(w, r, model.ErrInvalidToken)

			return
		}

		valid, err := s.sessions.ValidateSession(r.Context(), claims.ID)
		if err != nil {
			logger.FromContext(r.Context()).Error("session validation failed", slog.String("error", err.Error()))
			writeError(w, r, errStoreUnavailable)

			return
		}

		if !valid {
			writeError(w, r, model.ErrInvalidToken)

			return
		}

		principal, err := claims.Principal()
		if err != nil {
			writeError(w, r, err)

			return
		}

		if touch {
			s.touchSession(r.Context(), claims.ID)
		}

		next(w, r.WithContext(withPrincipal(r.Context(), principal)))
	}
}

func (s *APIServer) touchSession(reqCtx context.Context, jti string) {
	log := logger.FromContext(reqCtx)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), activityUpdateTimeout)

	s.background.Add(1)

	go func() {
		defer s.background.Done()
		defer cancel()

		if err := s.sessions.UpdateActivity(ctx, jti); err != nil {
			log.Debug("session activity update failed", slog.String("error", err.Error()))
		}
	}()
}

// idempotent replays a stored response for a repeated Idempotency-Key and
// otherwise runs next under a claim on the key, caching 2xx results. The key
// is scoped by scope and the caller, so equal keys of different users never
// collide. It must run after authenticate.
func (s *APIServer) idempotent(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientKey := r.Header.Get(IdempotencyKeyHeader)
		principal, ok := PrincipalFrom(r.Context())

		if clientKey == "" || !ok {
			next(w, r)

			return
		}

		ctx := r.Context()
		key := scope + ":" + principal.UserID.String() + ":" + clientKey
		log := logger.FromContext(ctx).With(slog.String("idempotency_key", key))

		if s.replay(w, r, key) {
			return
		}

		claimed, err := s.idempotency.TryClaim(ctx, key)
		if err != nil {
			log.Error("idempotency claim failed", slog.String("error", err.Error()))
			writeError(w, r, errStoreUnavailable)

			return
		}

		if !claimed {
			// The holder may have finished between the lookup and the claim.
			if s.replay(w, r, key) {
				return
			}

			writeError(w, r, model.ErrIdempotencyInProgress)

			return
		}

		defer func() {
			if err := s.idempotency.Release(context.WithoutCancel(ctx), key); err != nil {
				log.Warn("idempotency release failed", slog.String("error", err.Error()))
			}
		}()

		rec := &bufferedResponse{header: http.Header{}, status: http.StatusOK}
		next(rec, r)

		if rec.status >= 200 && rec.status < 300 {
			if err := s.idempotency.Store(ctx, key, rec.status, rec.body.String(), 0); err != nil {
				log.Warn("idempotency store failed", slog.String("error", err.Error()))
			}
		}

		rec.flush(w)
	}
}

func (s *APIServer) replay(w http.ResponseWriter, r *http.Request, key string) bool {
	stored, err := s.idempotency.Get(r.Context(), key)
	if err != nil {
		logger.FromContext(r.Context()).Warn("idempotency lookup failed", slog.String("error", err.Error()))

		return false
	}

	if stored == nil {
		return false
	}

	w.Header().Set(contentTypeHeader, applicationJSON)
	w.Header().Set(IdempotencyReplayedHeader, "true")
	w.WriteHeader(stored.StatusCode)
	_, _ = w.Write([]byte(stored.ResponseBody))

	return true
}

// bufferedResponse holds a handler's response so it can be cached before
// it is sent.
type bufferedResponse struct {
	header      http.Header
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	b.wroteHeader = true
	b.status = status
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	b.WriteHeader(http.StatusOK)

	return b.body.Write(p)
}

func (b *bufferedResponse) flush(w http.ResponseWriter) {
	for k, v := range b.header {
		w.Header()[k] = v
	}
	w.WriteHeader(b.status)
	_, _ = w.Write(b.body.Bytes())
}

// requireAdmin rejects callers without the admin role. It must run after authenticate.
func requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p, ok := PrincipalFrom(r.Context()); !ok || !p.IsAdmin() {
			writeError(w, r, model.ErrForbidden)

			return
		}

		next(w, r)
	}
}
