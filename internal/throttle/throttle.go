// Package throttle spaces out calls to external providers.
//
// A Gate is shared by every caller that talks to the same provider. Each Wait
// blocks until a randomized minimum interval has passed since the previous
// call through the gate, so no number of concurrent callers can burst past
// the configured rate. Backoff waits on the same state with a larger window
// and is used after the provider rejects a call for rate limiting.
package throttle

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Defaults for the normal spacing window and the backoff window.
const (
	DefaultMinDelay   = 500 * time.Millisecond
	DefaultMaxDelay   = time.Second
	DefaultBackoffMin = 30 * time.Second
	DefaultBackoffMax = 60 * time.Second
)

// Config sets the two delay windows. Zero values take the defaults.
type Config struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	BackoffMin time.Duration
	BackoffMax time.Duration
	Disabled   bool
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces the monotonic clock.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithSleep replaces the sleeper.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gate) { g.sleep = sleep }
}

// WithRand replaces the jitter source. fn must return a value in [0, 1).
func WithRand(fn func() float64) Option {
	return func(g *Gate) { g.rand = fn }
}

// Gate is a mutex-guarded minimum-spacing gate.
type Gate struct {
	mu    sync.Mutex
	cfg   Config
	last  time.Time
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// New creates a Gate.
func New(cfg Config, opts ...Option) *Gate {
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultMinDelay
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = max(DefaultMaxDelay, cfg.MinDelay)
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = DefaultBackoffMin
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = max(DefaultBackoffMax, cfg.BackoffMin)
	}
	g := &Gate{
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepCtx,
		rand:  rand.Float64,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Wait blocks until the normal spacing window has elapsed since the last call.
func (g *Gate) Wait(ctx context.Context) error {
	return g.wait(ctx, g.cfg.MinDelay, g.cfg.MaxDelay)
}

// Backoff blocks for the larger rate-limit window measured from the last call.
func (g *Gate) Backoff(ctx context.Context) error {
	return g.wait(ctx, g.cfg.BackoffMin, g.cfg.BackoffMax)
}

func (g *Gate) wait(ctx context.Context, lo, hi time.Duration) error {
	if g.cfg.Disabled {
		return nil
	}
	delay := lo + time.Duration(g.rand()*float64(hi-lo))

	// The lock is held while sleeping so callers queue behind each other.
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if !g.last.IsZero() {
		if remaining := g.last.Add(delay).Sub(now); remaining > 0 {
			if err := g.sleep(ctx, remaining); err != nil {
				return err
			}
			now = g.now()
		}
	}
	g.last = now
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
