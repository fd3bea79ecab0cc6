package tokenstore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store backed by a map. It is useful for
// tests and for single-process deployments that want Store semantics
// without external infrastructure. Expired entries are evicted lazily
// on Load.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*Token
	// now is swappable for tests
	now func() time.Time
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]*Token),
		now:    time.Now,
	}
}

// Load returns the stored token, or ErrTokenNotFound if absent or expired
func (s *MemoryStore) Load(_ context.Context, appID string) (*Token, error) {
	s.mu.RLock()
	token, ok := s.tokens[appID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrTokenNotFound
	}
	if token.Expired(s.now()) {
		s.mu.Lock()
		// Re-check under the write lock; a Save may have raced
		if cur, ok := s.tokens[appID]; ok && cur.Expired(s.now()) {
			delete(s.tokens, appID)
		}
		s.mu.Unlock()
		return nil, ErrTokenNotFound
	}
	copied := *token
	return &copied, nil
}

// Save stores the token, replacing any previous one
func (s *MemoryStore) Save(_ context.Context, appID string, token *Token) error {
	copied := *token
	s.mu.Lock()
	s.tokens[appID] = &copied
	s.mu.Unlock()
	return nil
}

// Delete removes the stored token
func (s *MemoryStore) Delete(_ context.Context, appID string) error {
	s.mu.Lock()
	delete(s.tokens, appID)
	s.mu.Unlock()
	return nil
}

// Len reports how many unexpired tokens are currently stored
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	now := s.now()
	for _, token := range s.tokens {
		if !token.Expired(now) {
			n++
		}
	}
	return n
}
