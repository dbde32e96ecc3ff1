package model

import "errors"

var (
	// ErrInvalidName is returned when a name is empty or invalid.
	ErrInvalidName = errors.New("name is required")
	// ErrInvalidEmail is returned when an email is empty or invalid.
	ErrInvalidEmail = errors.New("a valid email is required")
	// ErrWeakPassword is returned when a password is too short.
	ErrWeakPassword = errors.New("password must be at least 8 characters")
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrAccountNotFound is returned when an account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidCredentials is returned for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountDisabled is returned when a deactivated account logs in.
	ErrAccountDisabled = errors.New("account is deactivated")
	// ErrInvalidRefreshToken is returned when a refresh token is unknown, rotated or expired.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrInvalidToken is returned when an access token fails verification.
	ErrInvalidToken = errors.New("invalid access token")
	// ErrSessionNotFound is returned when no active session matches a jti.
	ErrSessionNotFound = errors.New("session not found")

	// ErrOrderNotFound is returned when an order does not exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound is returned when a product does not exist.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductUnavailable is returned when ordering a product that is not for sale.
	ErrProductUnavailable = errors.New("product not available")
	// ErrEmptyOrder is returned when an order has no lines.
	ErrEmptyOrder = errors.New("order has no lines")
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrInvalidAddress is returned when the shipping address is incomplete.
	ErrInvalidAddress = errors.New("shipping address is incomplete")
	// ErrInvalidPrice is returned for negative prices.
	ErrInvalidPrice = errors.New("price must not be negative")
	// ErrInvalidOrderTransition is returned when an order cannot move to the requested status.
	ErrInvalidOrderTransition = errors.New("order status transition not allowed")
	// ErrForbidden is returned when the caller does not own the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrIdempotencyInProgress is returned when a request with the same idempotency key is still executing.
	ErrIdempotencyInProgress = errors.New("a request with this idempotency key is in progress")

	// ErrNoTransaction is returned when an outbox entry is saved outside a transaction.
	ErrNoTransaction = errors.New("outbox entries must be saved inside a transaction")
	// ErrUnregisteredEvent is returned when an outbox entry names an unknown event type.
	ErrUnregisteredEvent = errors.New("unregistered event type")
	// ErrMalformedEvent is returned when an outbox entry's payload cannot be decoded.
	ErrMalformedEvent = errors.New("malformed event payload")
)
