// Package auth holds the signed-in identity's credentials and drives
// the token endpoints.
package auth

import "sync"

// Store holds the access and refresh tokens for the active identity.
// The stream manager and REST transport both read the access token
// through it, so a refresh is picked up by every consumer at once.
type Store struct {
	mu       sync.RWMutex
	access   string
	refresh  string
	identity string
}

// NewStore returns an empty credential store.
func NewStore() *Store {
	return &Store{}
}

// Token returns the current access token. ok is false when signed out.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access, s.access != ""
}

// RefreshToken returns the current refresh token.
func (s *Store) RefreshToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh, s.refresh != ""
}

// Identity returns the signed-in account email, empty when signed out.
func (s *Store) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// SetTokens replaces the token pair.
func (s *Store) SetTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	s.refresh = refresh
}

// SetIdentity records the signed-in account.
func (s *Store) SetIdentity(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = email
}

// Clear wipes all credentials.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
	s.refresh = ""
	s.identity = ""
}
