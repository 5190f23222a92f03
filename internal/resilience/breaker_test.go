package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream failed")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(clock *fakeClock, settings Settings) *Breaker {
	settings.Clock = clock.Now
	return New("test", settings)
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		requests []bool // true = success, false = failure
		want     State
	}{
		{
			name:     "stays closed on successes",
			settings: Settings{},
			requests: []bool{true, true, true},
			want:     StateClosed,
		},
		{
			name: "opens once ready to trip",
			settings: Settings{
				ReadyToTrip: func(counts Counts) bool {
					return counts.ConsecutiveFailures >= 3
				},
			},
			requests: []bool{false, false, false},
			want:     StateOpen,
		},
		{
			name: "success resets the consecutive failure run",
			settings: Settings{
				ReadyToTrip: func(counts Counts) bool {
					return counts.ConsecutiveFailures >= 3
				},
			},
			requests: []bool{false, false, true, false, false},
			want:     StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := newTestBreaker(newFakeClock(), tt.settings)

			for _, success := range tt.requests {
				_, _ = Do(breaker, func() (string, error) {
					if success {
						return "ok", nil
					}
					return "", errUpstream
				})
			}

			assert.Equal(t, tt.want, breaker.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	breaker := newTestBreaker(newFakeClock(), Settings{})

	_, err := Do(breaker, func() (string, error) { return "ok", nil })
	require.NoError(t, err)

	counts := breaker.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.ConsecutiveSuccesses)
	assert.Equal(t, uint32(0), counts.TotalFailures)

	_, err = Do(breaker, func() (string, error) { return "", errUpstream })
	assert.ErrorIs(t, err, errUpstream)

	counts = breaker.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestBreakerOpenRejectsWithoutCalling(t *testing.T) {
	breaker := newTestBreaker(newFakeClock(), Settings{
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})

	for i := 0; i < 2; i++ {
		_, _ = Do(breaker, func() (string, error) { return "", errUpstream })
	}
	require.Equal(t, StateOpen, breaker.State())

	called := false
	_, err := Do(breaker, func() (string, error) {
		called = true
		return "ok", nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	clock := newFakeClock()
	breaker := newTestBreaker(clock, Settings{
		MaxRequests: 2,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})

	for i := 0; i < 2; i++ {
		_, _ = Do(breaker, func() (string, error) { return "", errUpstream })
	}
	require.Equal(t, StateOpen, breaker.State())

	clock.Advance(16 * time.Second)
	require.Equal(t, StateHalfOpen, breaker.State())

	for i := 0; i < 2; i++ {
		_, err := Do(breaker, func() (string, error) { return "ok", nil })
		require.NoError(t, err)
	}
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	clock := newFakeClock()
	breaker := newTestBreaker(clock, Settings{
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})

	for i := 0; i < 2; i++ {
		_, _ = Do(breaker, func() (string, error) { return "", errUpstream })
	}
	clock.Advance(16 * time.Second)
	require.Equal(t, StateHalfOpen, breaker.State())

	_, err := Do(breaker, func() (string, error) { return "", errUpstream })
	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerHalfOpenProbeLimit(t *testing.T) {
	clock := newFakeClock()
	breaker := newTestBreaker(clock, Settings{
		MaxRequests: 1,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})

	for i := 0; i < 2; i++ {
		_, _ = Do(breaker, func() (string, error) { return "", errUpstream })
	}
	clock.Advance(16 * time.Second)
	require.Equal(t, StateHalfOpen, breaker.State())

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = Do(breaker, func() (string, error) {
			close(entered)
			<-release
			return "ok", nil
		})
	}()

	<-entered
	_, err := Do(breaker, func() (string, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrTooManyRequests)

	close(release)
	<-done
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerIntervalRollsCounts(t *testing.T) {
	clock := newFakeClock()
	breaker := newTestBreaker(clock, Settings{
		Interval: time.Minute,
	})

	for i := 0; i < 3; i++ {
		_, _ = Do(breaker, func() (string, error) { return "", errUpstream })
	}
	require.Equal(t, uint32(3), breaker.Counts().ConsecutiveFailures)

	clock.Advance(61 * time.Second)
	require.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, Counts{}, breaker.Counts())
}

func TestBreakerCallbacks(t *testing.T) {
	clock := newFakeClock()
	var transitions []string

	breaker := newTestBreaker(clock, Settings{
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	for i := 0; i < 2; i++ {
		_, _ = Do(breaker, func() (string, error) { return "", errUpstream })
	}
	clock.Advance(16 * time.Second)
	require.Equal(t, StateHalfOpen, breaker.State())

	assert.Contains(t, transitions, "closed->open")
	assert.Contains(t, transitions, "open->half-open")
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	breaker := newTestBreaker(newFakeClock(), Settings{})

	require.Panics(t, func() {
		_, _ = Do(breaker, func() (string, error) { panic("boom") })
	})

	counts := breaker.Counts()
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
}
