package lock

import (
	"context"
)

// Manager creates named locks. Locks are not re-entrant: callers coordinate
// local concurrency themselves and use a DistributedLock to coordinate with
// other processes.
type Manager interface {
	// Create creates an unlocked DistributedLock for a name
	Create(ctx context.Context, name string) (DistributedLock, error)
}

// DistributedLock is a handle to a lock shared across processes
type DistributedLock interface {
	// Acquire blocks until the lock is held or ctx is done.
	//
	// The returned channel is closed when the lock is lost. The lock can be
	// lost when ctx is cancelled, Unlock is called, or the implementation
	// detects the lock might no longer be held.
	Acquire(ctx context.Context) (<-chan struct{}, error)

	// Unlock releases the lock if it is held. Unlock is idempotent.
	Unlock(ctx context.Context) error

	// IsLocked returns whether this handle holds the lock
	IsLocked() bool
}
