// Package handler provides the HTTP API.
package handler

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/jnst/theshop-core/internal/logger"
	"github.com/jnst/theshop-core/internal/service"
)

// Services groups the collaborators of APIServer.
type Services struct {
	Identity    service.IdentityService
	Orders      service.OrderService
	Catalog     service.CatalogService
	Sessions    service.SessionService
	Tokens      service.TokenService
	Idempotency service.IdempotencyService
}

// APIServer handles HTTP requests.
type APIServer struct {
	identity    service.IdentityService
	orders      service.OrderService
	catalog     service.CatalogService
	sessions    service.SessionService
	tokens      service.TokenService
	idempotency service.IdempotencyService

	background sync.WaitGroup
}

// NewAPIServer creates a new API server instance.
func NewAPIServer(s Services) *APIServer {
	return &APIServer{
		identity:    s.Identity,
		orders:      s.Orders,
		catalog:     s.Catalog,
		sessions:    s.Sessions,
		tokens:      s.Tokens,
		idempotency: s.Idempotency,
	}
}

// Routes returns the API handler wrapped in request logging.
func (s *APIServer) Routes(base *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.HealthCheck)

	mux.HandleFunc("POST /auth/register", s.Register)
	mux.HandleFunc("POST /auth/login", s.Login)
	mux.HandleFunc("POST /auth/refresh", s.Refresh)
	mux.HandleFunc("POST /auth/logout", s.authenticateEnding(s.Logout))
	mux.HandleFunc("GET /auth/sessions", s.authenticate(s.ListSessions))
	mux.HandleFunc("DELETE /auth/sessions/{id}", s.authenticateEnding(s.RevokeSession))
	mux.HandleFunc("GET /admin/sessions/count", s.authenticate(requireAdmin(s.CountSessions)))

	mux.HandleFunc("POST /orders", s.authenticate(s.idempotent("order", s.CreateOrder)))
	mux.HandleFunc("GET /orders/{id}", s.authenticate(s.GetOrder))
	mux.HandleFunc("PUT /orders/{id}/cancel", s.authenticate(s.CancelOrder))
	mux.HandleFunc("PUT /orders/{id}/ship", s.authenticate(requireAdmin(s.ShipOrder)))
	mux.HandleFunc("PUT /products/{id}/price", s.authenticate(requireAdmin(s.UpdateProductPrice)))

	return logger.HTTPMiddleware(base)(mux)
}

// Wait blocks until background session updates have finished.
func (s *APIServer) Wait() {
	s.background.Wait()
}

// HealthCheck handles GET /health endpoint for service health check.
func (*APIServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// clientIP returns the first X-Forwarded-For hop or the peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")

		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
