package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for breaker and retry tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(clock Clock) *Breaker {
	return NewBreaker(BreakerConfig{
		Name:             "sequence_authority",
		FailureThreshold: 5,
		OpenTimeout:      60 * time.Second,
	}, clock, nil)
}

var errBoom = errors.New("boom")

func failingCall() (int, error) { return 0, errBoom }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		_, err := Do(b, failingCall)
		assert.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, StateOpen, b.State())

	t.Run("fails fast without invoking the call", func(t *testing.T) {
		invoked := false
		_, err := Do(b, func() (int, error) {
			invoked = true
			return 42, nil
		})
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.False(t, invoked)
	})
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 4; i++ {
		_, _ = Do(b, failingCall)
	}
	assert.Equal(t, 4, b.FailureCount())

	_, err := Do(b, func() (int, error) { return 1, nil })
	require.NoError(t, err)

	assert.Equal(t, 0, b.FailureCount())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	t.Run("successful probe closes the breaker", func(t *testing.T) {
		clock := newFakeClock()
		b := newTestBreaker(clock)
		for i := 0; i < 5; i++ {
			_, _ = Do(b, failingCall)
		}
		require.Equal(t, StateOpen, b.State())

		clock.Advance(61 * time.Second)
		assert.Equal(t, StateHalfOpen, b.State())

		result, err := Do(b, func() (int, error) { return 7, nil })
		require.NoError(t, err)
		assert.Equal(t, 7, result)
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("failed probe reopens and resets the window", func(t *testing.T) {
		clock := newFakeClock()
		b := newTestBreaker(clock)
		for i := 0; i < 5; i++ {
			_, _ = Do(b, failingCall)
		}
		clock.Advance(61 * time.Second)
		require.Equal(t, StateHalfOpen, b.State())

		_, err := Do(b, failingCall)
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, StateOpen, b.State())

		// still open: the window restarted at the probe failure
		clock.Advance(30 * time.Second)
		assert.Equal(t, StateOpen, b.State())

		clock.Advance(31 * time.Second)
		assert.Equal(t, StateHalfOpen, b.State())
	})
}

func TestBreaker_RecordsLastFailure(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	assert.True(t, b.LastFailureAt().IsZero())

	_, _ = Do(b, failingCall)

	assert.Equal(t, clock.Now(), b.LastFailureAt())
}

func TestBreaker_ConcurrentTrips(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Do(b, failingCall)
		}()
	}
	wg.Wait()

	assert.Equal(t, StateOpen, b.State())
	assert.GreaterOrEqual(t, b.FailureCount(), 5)
}
