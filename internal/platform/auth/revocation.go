package auth

import (
	"sync"
	"time"
)

// TokenRevocationStore remembers revoked tokens in memory. Single tokens are
// revoked by JTI on logout; all sessions of a user are revoked by recording a
// cutoff, which rejects every token issued before it.
type TokenRevocationStore struct {
	mu      sync.RWMutex
	jtis    map[string]time.Time // jti -> token expiry
	cutoffs map[string]time.Time // user id -> tokens issued before are revoked
	maxAge  time.Duration
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewTokenRevocationStore creates a store. maxAge is the token lifetime; user
// cutoffs older than that are dropped because every token they covered has
// expired anyway.
func NewTokenRevocationStore(maxAge time.Duration) *TokenRevocationStore {
	s := &TokenRevocationStore{
		jtis:    make(map[string]time.Time),
		cutoffs: make(map[string]time.Time),
		maxAge:  maxAge,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Revoke rejects the token with the given JTI until it expires.
func (s *TokenRevocationStore) Revoke(jti string, expiresAt time.Time) {
	if jti == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jtis[jti] = expiresAt
}

// RevokeUser rejects every token issued to userID up to now.
func (s *TokenRevocationStore) RevokeUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoffs[userID] = s.now()
}

// IsRevoked checks if a token JTI has been revoked.
func (s *TokenRevocationStore) IsRevoked(jti string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jtis[jti]
	return ok
}

// IsRevokedClaims checks both the JTI and the per-user cutoff.
func (s *TokenRevocationStore) IsRevokedClaims(c *Claims) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.jtis[c.ID]; ok {
		return true
	}
	cutoff, ok := s.cutoffs[c.Subject]
	if !ok || c.IssuedAt == nil {
		return false
	}
	// IssuedAt has second precision; tokens from the cutoff second itself
	// stay valid so a login right after a password change works.
	return c.IssuedAt.Time.Before(cutoff.Truncate(time.Second))
}

// Count returns the number of revoked JTIs and user cutoffs.
func (s *TokenRevocationStore) Count() (tokens, users int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jtis), len(s.cutoffs)
}

// Close stops the background cleanup goroutine.
func (s *TokenRevocationStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *TokenRevocationStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *TokenRevocationStore) cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for jti, exp := range s.jtis {
		if now.After(exp) {
			delete(s.jtis, jti)
		}
	}
	for user, cutoff := range s.cutoffs {
		if now.Sub(cutoff) > s.maxAge {
			delete(s.cutoffs, user)
		}
	}
}
