package model

// IdempotencyRecord is a response captured for an idempotency key. The key is
// built by the caller; the cache never adds its own scoping.
type IdempotencyRecord struct {
	Key          string `json:"key"`
	StatusCode   int    `json:"statusCode"`
	ResponseBody string `json:"responseBody"`
}
