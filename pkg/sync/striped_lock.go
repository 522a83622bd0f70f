package sync

import (
	base "sync"
)

const pointsPerStripe = 200

// StripedLock maps a key space onto a fixed number of locks, so per-key
// locking costs bounded memory. Distinct keys may share a lock.
type StripedLock struct {
	locks []base.RWMutex
	ring  *ring
}

func NewStripedLock(stripes uint) *StripedLock {
	return &StripedLock{
		locks: make([]base.RWMutex, stripes),
		ring:  newRing(int(stripes), pointsPerStripe),
	}
}

// Get returns the lock for key
func (l *StripedLock) Get(key []byte) *base.RWMutex {
	return &l.locks[l.ring.shard(key)]
}
