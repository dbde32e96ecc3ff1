package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jnst/theshop-core/internal/logger"
	"github.com/jnst/theshop-core/internal/model"
)

const (
	contentTypeHeader = "Content-Type"
	applicationJSON   = "application/json"
	maxBodyBytes      = 1 << 20
)

// errStoreUnavailable is answered with 503 so clients do not treat a store
// outage as an authentication failure.
var errStoreUnavailable = errors.New("session store unavailable")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set(contentTypeHeader, applicationJSON)
	w.WriteHeader(status)

	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContext(r.Context()).Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", slog.String("error", msg))
		msg = http.StatusText(status)
	}

	writeJSON(w, r, status, errorResponse{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidEmail),
		errors.Is(err, model.ErrWeakPassword),
		errors.Is(err, model.ErrInvalidName),
		errors.Is(err, model.ErrEmptyOrder),
		errors.Is(err, model.ErrInvalidQuantity),
		errors.Is(err, model.ErrInvalidAddress),
		errors.Is(err, model.ErrInvalidPrice),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInvalidCredentials),
		errors.Is(err, model.ErrInvalidRefreshToken),
		errors.Is(err, model.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrAccountDisabled),
		errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrOrderNotFound),
		errors.Is(err, model.ErrProductNotFound),
		errors.Is(err, model.ErrSessionNotFound),
		errors.Is(err, model.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrEmailTaken),
		errors.Is(err, model.ErrInvalidOrderTransition),
		errors.Is(err, model.ErrIdempotencyInProgress):
		return http.StatusConflict
	case errors.Is(err, model.ErrProductUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("malformed request")

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, errBadRequest)

		return false
	}

	return true
}
