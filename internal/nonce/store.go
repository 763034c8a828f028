// Package nonce is the replay guard: a keyed registry of consumed nonces.
// Signed requests carry a fresh nonce; a nonce reserves exactly once within
// its TTL, so a captured request cannot be replayed.
package nonce

import (
	"sync"
	"time"
)

// DefaultTTL is deliberately wider than the 60s request-acceptance window so
// boundary retries and clock skew stay blocked instead of slipping through.
const DefaultTTL = 120 * time.Second

// Store is the replay-guard contract. Implementations must make Reserve
// atomic: concurrent reserves of one nonce yield exactly one success.
type Store interface {
	// Check reports whether the nonce is already reserved (and unexpired).
	Check(nonce string) bool
	// Reserve claims the nonce; false means someone got there first.
	Reserve(nonce string) bool
}

// MemoryStore is the single-instance implementation. For load-balanced
// deployments use the Redis-backed store so the registry is shared.
type MemoryStore struct {
	mu       sync.Mutex
	reserved map[string]time.Time
	ttl      time.Duration

	now func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		reserved: make(map[string]time.Time),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemoryStore) Check(nonce string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.reserved[nonce]
	if !ok {
		return false
	}
	if s.now().After(expiry) {
		delete(s.reserved, nonce)
		return false
	}
	return true
}

func (s *MemoryStore) Reserve(nonce string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiry, ok := s.reserved[nonce]; ok && now.Before(expiry) {
		return false
	}
	s.reserved[nonce] = now.Add(s.ttl)

	// Lazy cleanup of expired entries while we hold the lock.
	for n, expiry := range s.reserved {
		if now.After(expiry) {
			delete(s.reserved, n)
		}
	}
	return true
}

var _ Store = (*MemoryStore)(nil)
