package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreLifecycle(t *testing.T) {
	s := NewStore()

	_, ok := s.Token()
	assert.False(t, ok, "fresh store should have no access token")
	_, ok = s.RefreshToken()
	assert.False(t, ok)
	assert.Empty(t, s.Identity())

	s.SetTokens("acc-1", "ref-1")
	s.SetIdentity("planner@example.co.uk")

	access, ok := s.Token()
	assert.True(t, ok)
	assert.Equal(t, "acc-1", access)
	refresh, ok := s.RefreshToken()
	assert.True(t, ok)
	assert.Equal(t, "ref-1", refresh)
	assert.Equal(t, "planner@example.co.uk", s.Identity())

	// Rotation replaces the pair without touching the identity.
	s.SetTokens("acc-2", "ref-2")
	access, _ = s.Token()
	assert.Equal(t, "acc-2", access)
	assert.Equal(t, "planner@example.co.uk", s.Identity())

	s.Clear()
	_, ok = s.Token()
	assert.False(t, ok)
	_, ok = s.RefreshToken()
	assert.False(t, ok)
	assert.Empty(t, s.Identity())
}
