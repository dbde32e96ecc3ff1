// Package apiclient is an HTTP client for the API that keeps its access
// token fresh.
package apiclient

import "sync"

// Tokens is the credential pair held by a client.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// TokenStore persists the client's tokens between requests.
type TokenStore interface {
	Load() Tokens
	Save(t Tokens)
	Clear()
}

// MemoryTokenStore is a TokenStore kept in process memory.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens Tokens
}

// NewMemoryTokenStore returns an empty store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (m *MemoryTokenStore) Load() Tokens {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.tokens
}

func (m *MemoryTokenStore) Save(t Tokens) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens = t
}

func (m *MemoryTokenStore) Clear() {
	m.Save(Tokens{})
}
