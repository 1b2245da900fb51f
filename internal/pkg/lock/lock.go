// Package lock provides channel-level locking for match commands.
// Every state-mutating command holds its channel's lock for the
// read-modify-write window so two commands against the same channel
// cannot interleave inside one process.
package lock

import (
	"sync"
)

// channelMutex wraps a mutex with reference counting for cleanup.
type channelMutex struct {
	mu       sync.Mutex
	refCount int
}

// ChannelLock provides per-channel locking to prevent race conditions
// between concurrent match commands in the same channel.
type ChannelLock struct {
	locks sync.Map // map[int64]*channelMutex
	pool  sync.Pool
}

// NewChannelLock creates a new ChannelLock instance.
func NewChannelLock() *ChannelLock {
	return &ChannelLock{
		pool: sync.Pool{
			New: func() any {
				return &channelMutex{}
			},
		},
	}
}

// getLock retrieves or creates a mutex for the given channel ID.
func (cl *ChannelLock) getLock(channelID int64) *channelMutex {
	if v, ok := cl.locks.Load(channelID); ok {
		return v.(*channelMutex)
	}

	newLock := cl.pool.Get().(*channelMutex)
	newLock.refCount = 0

	// Store or load existing (handles race condition)
	actual, loaded := cl.locks.LoadOrStore(channelID, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool
		cl.pool.Put(newLock)
	}
	return actual.(*channelMutex)
}

// Lock acquires the lock for a channel.
// This should be called before any match-mutating operation.
func (cl *ChannelLock) Lock(channelID int64) {
	lock := cl.getLock(channelID)
	lock.mu.Lock()
	lock.refCount++
}

// Unlock releases the lock for a channel.
func (cl *ChannelLock) Unlock(channelID int64) {
	if v, ok := cl.locks.Load(channelID); ok {
		lock := v.(*channelMutex)
		lock.refCount--
		lock.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (cl *ChannelLock) TryLock(channelID int64) bool {
	lock := cl.getLock(channelID)
	if lock.mu.TryLock() {
		lock.refCount++
		return true
	}
	return false
}

// WithLock executes a function while holding the channel's lock.
// This is a convenience method that ensures proper lock/unlock.
func (cl *ChannelLock) WithLock(channelID int64, fn func() error) error {
	cl.Lock(channelID)
	defer cl.Unlock(channelID)
	return fn()
}

// IsLocked checks if a channel currently has an active lock.
// Note: this is a point-in-time check and may change immediately after.
func (cl *ChannelLock) IsLocked(channelID int64) bool {
	if v, ok := cl.locks.Load(channelID); ok {
		lock := v.(*channelMutex)
		if lock.mu.TryLock() {
			lock.mu.Unlock()
			return false
		}
		return true
	}
	return false
}
