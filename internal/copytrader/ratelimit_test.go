package copytrader

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock подменяет now/sleep: sleep мгновенно двигает время вперед
type fakeClock struct {
	now    time.Time
	slept  []time.Duration
	ctxErr error
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	if c.ctxErr != nil {
		return c.ctxErr
	}
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func testLimiter(ceiling int) (*Limiter, *fakeClock) {
	clock := newFakeClock()
	l := NewLimiter(ceiling, slog.New(slog.NewTextHandler(io.Discard, nil)))
	l.now = clock.Now
	l.sleep = clock.Sleep
	return l, clock
}

func TestLimiterUnderCeiling(t *testing.T) {
	l, clock := testLimiter(10)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Acquire(ctx))
	}

	assert.Empty(t, clock.slept, "no waiting below the ceiling")
	assert.Equal(t, 10, l.Calls())
}

func TestLimiterBlocksAtCeiling(t *testing.T) {
	l, clock := testLimiter(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx))
	}

	clock.Advance(20 * time.Second)

	// Четвертый вызов ждет остаток окна плюс секунду буфера
	require.NoError(t, l.Acquire(ctx))
	require.Len(t, clock.slept, 1)
	assert.Equal(t, 41*time.Second, clock.slept[0])

	// Окно сброшено, счетчик начат заново
	assert.Equal(t, 1, l.Calls())
}

func TestLimiterWindowRollsOver(t *testing.T) {
	l, clock := testLimiter(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx))
	}

	clock.Advance(61 * time.Second)

	require.NoError(t, l.Acquire(ctx))
	assert.Empty(t, clock.slept, "expired window resets without waiting")
	assert.Equal(t, 1, l.Calls())
}

func TestLimiterAcquireRespectsContext(t *testing.T) {
	l, clock := testLimiter(1)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))

	clock.ctxErr = context.Canceled
	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)
}

func TestLimiterThrottleBackoffProgression(t *testing.T) {
	l, _ := testLimiter(10)

	assert.Equal(t, time.Minute, l.RecordThrottle())
	assert.Equal(t, 2*time.Minute, l.RecordThrottle())
	assert.Equal(t, 4*time.Minute, l.RecordThrottle())
	assert.Equal(t, 5*time.Minute, l.RecordThrottle(), "capped at five minutes")
	assert.Equal(t, 5*time.Minute, l.RecordThrottle())
}

func TestLimiterSuccessResetsBackoff(t *testing.T) {
	l, clock := testLimiter(10)

	l.RecordThrottle()
	l.RecordThrottle()

	inBackoff, remaining := l.InBackoff()
	assert.True(t, inBackoff)
	assert.Equal(t, 2*time.Minute, remaining)

	l.RecordSuccess()

	inBackoff, _ = l.InBackoff()
	assert.False(t, inBackoff)

	// Счетчик подряд идущих throttle тоже обнулился
	assert.Equal(t, time.Minute, l.RecordThrottle())

	clock.Advance(2 * time.Minute)
	inBackoff, _ = l.InBackoff()
	assert.False(t, inBackoff, "backoff expires with time")
}

func TestLimiterThrottleResetsWindow(t *testing.T) {
	l, _ := testLimiter(5)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	assert.Equal(t, 2, l.Calls())

	l.RecordThrottle()
	assert.Equal(t, 0, l.Calls())
}
