// Package engine implements schedule-group bookkeeping, calendar stream
// allocation and the reconciler that keeps group-to-stream links consistent
// with the current date patterns.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/internal/wastetype"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

// LockKey is the distributed lock taken around reconciliation. The
// background worker takes it while reading stream membership and during the
// deprecation sweep.
const LockKey = "reconcile"

// DefaultGrace is how long a retired stream stays live before deletion.
const DefaultGrace = 96 * time.Hour

const (
	defaultLockTTL  = 10 * time.Minute
	defaultLockWait = 30 * time.Second
	lockPoll        = time.Second
)

// ErrLocked is returned when the reconcile lock could not be acquired in time.
var ErrLocked = errors.New("reconcile lock held by another process")

// Engine owns schedule groups and calendar streams. All writes go through
// the storage provider; no external calendar calls are made here.
type Engine struct {
	provider provider.Provider
	registry *wastetype.Registry
	alertFn  func(types.Alert)
	logger   *slog.Logger

	locker   provider.Locker
	lockTTL  time.Duration
	lockWait time.Duration

	grace    time.Duration
	now      func() time.Time
	newID    func() string
	linkFunc func(calendarID string) string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithLocker serializes reconciliation across processes.
func WithLocker(l provider.Locker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = l
		if ttl > 0 {
			e.lockTTL = ttl
		}
	}
}

// WithLockWait bounds how long reconciliation waits for a held lock.
func WithLockWait(d time.Duration) Option {
	return func(e *Engine) { e.lockWait = d }
}

// WithGrace overrides the pending-clean grace period.
func WithGrace(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.grace = d
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithStreamIDs injects the calendar stream id generator.
func WithStreamIDs(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithSubscriptionLinks sets the function that turns a calendar id into a
// subscriber-facing link.
func WithSubscriptionLinks(fn func(calendarID string) string) Option {
	return func(e *Engine) { e.linkFunc = fn }
}

// New creates a new Engine.
func New(p provider.Provider, reg *wastetype.Registry, alertFn func(types.Alert), opts ...Option) *Engine {
	if reg == nil {
		reg = wastetype.NewRegistry()
	}
	e := &Engine{
		provider: p,
		registry: reg,
		alertFn:  alertFn,
		logger:   slog.Default(),
		lockTTL:  defaultLockTTL,
		lockWait: defaultLockWait,
		grace:    DefaultGrace,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Grace returns the configured pending-clean grace period.
func (e *Engine) Grace() time.Duration { return e.grace }

func (e *Engine) fireAlert(a types.Alert) {
	if e.alertFn == nil {
		return
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = e.now()
	}
	e.alertFn(a)
}

// withLock runs fn while holding LockKey. Without a locker fn runs directly.
func (e *Engine) withLock(ctx context.Context, fn func() error) error {
	if e.locker == nil {
		return fn()
	}
	deadline := time.Now().Add(e.lockWait)
	for {
		ok, err := e.locker.AcquireLock(ctx, LockKey, e.lockTTL)
		if err != nil {
			return fmt.Errorf("acquire %s lock: %w", LockKey, err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return ErrLocked
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPoll):
		}
	}
	defer func() {
		if err := e.locker.ReleaseLock(context.WithoutCancel(ctx), LockKey); err != nil {
			e.logger.Warn("failed to release lock", "key", LockKey, "error", err)
		}
	}()
	return fn()
}

func (e *Engine) wasteTypeOrDefault(wt types.WasteType) types.WasteType {
	if wt == "" {
		return types.WasteGeneral
	}
	return wt
}
