package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jnst/theshop-core/internal/model"
)

// IdempotencyKeyHeader carries the client-chosen idempotency key.
const IdempotencyKeyHeader = "Idempotency-Key"

// StatusError is returned for non-2xx API responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	Tokens   TokenStore
	OnLogout func()
	Timeout  time.Duration
	Base     http.RoundTripper
	Logger   *slog.Logger
}

// Client calls the API with automatic token refresh.
type Client struct {
	baseURL string
	tokens  TokenStore
	http    *http.Client
}

// NewClient creates a new Client.
func NewClient(opts Options) *Client {
	if opts.Tokens == nil {
		opts.Tokens = NewMemoryTokenStore()
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	baseURL := strings.TrimSuffix(opts.BaseURL, "/")

	return &Client{
		baseURL: baseURL,
		tokens:  opts.Tokens,
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: &RefreshTransport{
				Base:       opts.Base,
				Tokens:     opts.Tokens,
				RefreshURL: baseURL + RefreshPath,
				OnLogout:   opts.OnLogout,
				Logger:     opts.Logger,
			},
		},
	}
}

// Login signs in and stores the returned token pair.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var pair model.TokenPair
	if err := c.do(ctx, http.MethodPost, "/auth/login", model.LoginParams{Email: email, Password: password}, nil, &pair); err != nil {
		return err
	}

	c.tokens.Save(Tokens{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})

	return nil
}

// CreateOrder places an order. A non-empty idempotencyKey makes retries of
// the same call return the first result.
func (c *Client) CreateOrder(ctx context.Context, params *model.CreateOrderParams, idempotencyKey string) (*model.Order, error) {
	header := http.Header{}
	if idempotencyKey != "" {
		header.Set(IdempotencyKeyHeader, idempotencyKey)
	}

	var order model.Order
	if err := c.do(ctx, http.MethodPost, "/orders", params, header, &order); err != nil {
		return nil, err
	}

	return &order, nil
}

// ListSessions returns the caller's active sessions.
func (c *Client) ListSessions(ctx context.Context) ([]model.SessionSummary, error) {
	var sessions []model.SessionSummary
	if err := c.do(ctx, http.MethodGet, "/auth/sessions", nil, nil, &sessions); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Logout ends the current session, or every session when allDevices is set,
// and forgets the stored tokens.
func (c *Client) Logout(ctx context.Context, allDevices bool) error {
	body := map[string]bool{"allDevices": allDevices}

	err := c.do(ctx, http.MethodPost, "/auth/logout", body, nil, nil)
	c.tokens.Clear()

	return err
}

func (c *Client) do(ctx context.Context, method, path string, in any, header http.Header, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	for k, v := range header {
		req.Header[k] = v
	}

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)

		return &StatusError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
