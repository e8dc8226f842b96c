package throttle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGate(c *fakeClock, r float64) *Gate {
	return New(Config{}, WithClock(c.Now), WithSleep(c.Sleep), WithRand(func() float64 { return r }))
}

func TestWait_FirstCallDoesNotSleep(t *testing.T) {
	c := &fakeClock{now: time.Unix(1000, 0)}
	g := newTestGate(c, 0)

	require.NoError(t, g.Wait(context.Background()))
	assert.Empty(t, c.slept)
}

func TestWait_SpacesConsecutiveCalls(t *testing.T) {
	tests := []struct {
		name    string
		rand    float64
		elapsed time.Duration
		want    time.Duration
	}{
		{"minimum window", 0, 0, 500 * time.Millisecond},
		{"maximum window", 0.999999, 0, 999999 * time.Microsecond},
		{"midpoint partly elapsed", 0.5, 300 * time.Millisecond, 450 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeClock{now: time.Unix(1000, 0)}
			g := newTestGate(c, tt.rand)
			ctx := context.Background()

			require.NoError(t, g.Wait(ctx))
			c.Advance(tt.elapsed)
			require.NoError(t, g.Wait(ctx))

			require.Len(t, c.slept, 1)
			assert.InDelta(t, float64(tt.want), float64(c.slept[0]), float64(time.Microsecond))
		})
	}
}

func TestWait_NoSleepWhenIntervalAlreadyPassed(t *testing.T) {
	c := &fakeClock{now: time.Unix(1000, 0)}
	g := newTestGate(c, 0.5)
	ctx := context.Background()

	require.NoError(t, g.Wait(ctx))
	c.Advance(2 * time.Second)
	require.NoError(t, g.Wait(ctx))
	assert.Empty(t, c.slept)
}

func TestBackoff_UsesLargerWindowOnSharedState(t *testing.T) {
	c := &fakeClock{now: time.Unix(1000, 0)}
	g := newTestGate(c, 0)
	ctx := context.Background()

	require.NoError(t, g.Wait(ctx))
	require.NoError(t, g.Backoff(ctx))
	require.Len(t, c.slept, 1)
	assert.Equal(t, 30*time.Second, c.slept[0])

	// The next normal call is measured from the end of the backoff.
	require.NoError(t, g.Wait(ctx))
	require.Len(t, c.slept, 2)
	assert.Equal(t, 500*time.Millisecond, c.slept[1])
}

func TestWait_Disabled(t *testing.T) {
	c := &fakeClock{now: time.Unix(1000, 0)}
	g := New(Config{Disabled: true}, WithClock(c.Now), WithSleep(c.Sleep))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Wait(ctx))
	}
	assert.Empty(t, c.slept)
}

func TestWait_SerializesConcurrentCallers(t *testing.T) {
	c := &fakeClock{now: time.Unix(1000, 0)}
	g := newTestGate(c, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Wait(ctx)
		}()
	}
	wg.Wait()

	// First caller passes immediately, the other four each wait a full window.
	assert.Len(t, c.slept, 4)
	for _, d := range c.slept {
		assert.Equal(t, 500*time.Millisecond, d)
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	g := New(Config{MinDelay: time.Hour, MaxDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, g.Wait(ctx))
	cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.Canceled)
}
