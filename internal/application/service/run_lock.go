package service

import (
	"context"
	"errors"
)

// ErrLockHeld is returned by RunLock.Acquire when another holder owns the lock.
var ErrLockHeld = errors.New("lock is held by another run")

// RunLock provides cross-process mutual exclusion for named runs. The
// returned release func is safe to call after the lock has expired.
type RunLock interface {
	Acquire(ctx context.Context, name string) (release func(context.Context) error, err error)
}
