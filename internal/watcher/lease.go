package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultLockTTL is the TTL of the watcher's locks. Held locks are renewed
// every third of it, so a pass may run far longer.
const DefaultLockTTL = 10 * time.Minute

// ErrLockLost is the cause of a pass stopped because its lock expired and
// was taken over before it could be renewed.
var ErrLockLost = errors.New("lock lost")

// hold makes a single acquire attempt for key. While held, the lock's TTL is
// renewed in the background; the returned context is cancelled with
// ErrLockLost if a renewal finds the lock gone. Without a locker it always
// succeeds.
func (w *Watcher) hold(ctx context.Context, key string) (context.Context, func(), bool, error) {
	if w.locker == nil {
		return ctx, func() {}, true, nil
	}
	ok, err := w.locker.AcquireLock(ctx, key, w.lockTTL)
	if err != nil {
		return ctx, nil, false, fmt.Errorf("acquire %s lock: %w", key, err)
	}
	if !ok {
		return ctx, nil, false, nil
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(w.lockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-leaseCtx.Done():
				return
			case <-ticker.C:
			}
			extended, err := w.locker.ExtendLock(leaseCtx, key, w.lockTTL)
			switch {
			case leaseCtx.Err() != nil:
				return
			case err != nil:
				// Retried on the next tick; the TTL covers two more attempts.
				w.logger.Warn("failed to extend lock", "key", key, "error", err)
			case !extended:
				w.logger.Error("lock expired mid-pass, stopping", "key", key)
				cancel(fmt.Errorf("%s: %w", key, ErrLockLost))
				return
			}
		}
	}()

	release := func() {
		cancel(nil)
		<-done
		if err := w.locker.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
			w.logger.Warn("failed to release lock", "key", key, "error", err)
		}
	}
	return leaseCtx, release, true, nil
}
