package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffSequence(t *testing.T) {
	b := newBackoff(0, 0, 0)

	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
	}

	var got []time.Duration
	for {
		delay, ok := b.next()
		if !ok {
			break
		}
		got = append(got, delay)
	}
	assert.Equal(t, want, got)

	// The schedule stays exhausted until a reset.
	_, ok := b.next()
	assert.False(t, ok)
	assert.Equal(t, len(want), b.current())
}

func TestBackoffResetRestartsSequence(t *testing.T) {
	b := newBackoff(0, 0, 0)

	for i := 0; i < 3; i++ {
		_, ok := b.next()
		require.True(t, ok)
	}
	require.Equal(t, 3, b.current())

	b.reset()
	assert.Equal(t, 0, b.current())

	delay, ok := b.next()
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, delay)
}

func TestBackoffCapAppliesBeyondDoubling(t *testing.T) {
	b := newBackoff(8, time.Second, 30*time.Second)

	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}

	for i, expected := range want {
		delay, ok := b.next()
		require.True(t, ok, "attempt %d", i+1)
		assert.Equal(t, expected, delay, "attempt %d", i+1)
	}

	_, ok := b.next()
	assert.False(t, ok)
}
