package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/jnst/theshop-core/internal/model"
)

var errRefreshMissingTokens = errors.New("refresh response is missing tokens")

// RefreshPath is the endpoint exchanging a refresh token for a new pair.
const RefreshPath = "/auth/refresh"

// RefreshTransport attaches the stored access token to every request. When a
// request is answered 401 it refreshes the token pair once and retries the
// request once with the new access token.
//
// Refreshes are serialized by one lock per transport: requests failing
// together produce a single refresh call, and the ones that waited reuse the
// pair it obtained. The lock is never held while the retry is in flight.
type RefreshTransport struct {
	Base       http.RoundTripper
	Tokens     TokenStore
	RefreshURL string
	// OnLogout runs after a rejected refresh has cleared the tokens.
	OnLogout func()
	Logger   *slog.Logger

	mu sync.Mutex
}

func (t *RefreshTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}

	return http.DefaultTransport
}

func (t *RefreshTransport) log() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}

	return slog.Default()
}

// RoundTrip implements http.RoundTripper.
func (t *RefreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := snapshotBody(req)
	if err != nil {
		return nil, err
	}

	current := t.Tokens.Load()

	resp, err := t.base().RoundTrip(withToken(req, body, current.AccessToken))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || strings.HasSuffix(req.URL.Path, RefreshPath) {
		return resp, nil
	}

	if current.RefreshToken == "" {
		return resp, nil
	}

	access, ok := t.refresh(req.Context(), current.AccessToken)
	if !ok {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	return t.base().RoundTrip(withToken(req, body, access))
}

// refresh returns an access token newer than failed, calling the refresh
// endpoint only if no other request has already replaced failed.
func (t *RefreshTransport) refresh(ctx context.Context, failed string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.Tokens.Load()
	if current.RefreshToken == "" {
		return "", false
	}

	if current.AccessToken != "" && current.AccessToken != failed {
		return current.AccessToken, true
	}

	pair, status, err := t.exchange(ctx, current)
	if err != nil {
		t.log().Warn("token refresh failed", slog.String("error", err.Error()))

		return "", false
	}

	if status < 200 || status >= 300 {
		t.log().Info("refresh token rejected, logging out", slog.Int("status", status))
		t.Tokens.Clear()

		if t.OnLogout != nil {
			t.OnLogout()
		}

		return "", false
	}

	t.Tokens.Save(Tokens{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})

	return pair.AccessToken, true
}

func (t *RefreshTransport) exchange(ctx context.Context, current Tokens) (*model.TokenPair, int, error) {
	payload, err := json.Marshal(model.RefreshParams{RefreshToken: current.RefreshToken})
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.RefreshURL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}

	req.Header.Set("Content-Type", "application/json")

	// The expired token lets the server revoke the session it belonged to.
	if current.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+current.AccessToken)
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil, resp.StatusCode, nil
	}

	var pair model.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode token pair: %w", err)
	}

	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return nil, resp.StatusCode, errRefreshMissingTokens
	}

	return &pair, resp.StatusCode, nil
}

// snapshotBody reads the request body once so it can be sent twice.
func snapshotBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()

	b, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	return b, nil
}

func withToken(req *http.Request, body []byte, access string) *http.Request {
	out := req.Clone(req.Context())
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.ContentLength = int64(len(body))
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	if access != "" {
		out.Header.Set("Authorization", "Bearer "+access)
	}

	return out
}
