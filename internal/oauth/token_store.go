package oauth

import (
	"sync"
)

// TokenStore is a process-wide cache of the current token: one slot, one
// mutex. There is no history and no multi-account support; the slot
// mirrors a single interactive user session and is intentionally empty
// after process restart.
type TokenStore struct {
	mu      sync.RWMutex
	current *TokenRecord
}

// NewTokenStore creates an empty token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Get returns the current record, or nil when the slot is empty. The
// returned record is a consistent snapshot; records are immutable once
// built, so readers never observe a partially constructed one.
func (s *TokenStore) Get() *TokenRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set atomically replaces the slot with a new record.
func (s *TokenStore) Set(record *TokenRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = record
}

// Clear atomically empties the slot.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}
