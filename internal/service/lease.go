package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// errLeaseTimeout marks a lease that could not be acquired in time.
// Callers surface it as a transient conflict.
var errLeaseTimeout = errors.New("lease acquisition timed out")

// lease is one keyed semaphore. waiters counts the holder plus every
// queued acquirer, so an entry with waiters == 0 is safe to evict.
type lease struct {
	sem        chan struct{}
	waiters    int
	createdAt  time.Time
	lastAccess time.Time
}

// LeaseRegistry hands out per-key leases that serialize in-process
// access to a resource (one wallet, one idempotency key). The database
// row lock stays the authority; the lease keeps goroutines of the same
// instance from piling up on it.
//
// Entries are kept after release so monitoring can observe them; the
// cleanup pass and the over-cap eviction reclaim idle ones.
type LeaseRegistry struct {
	mu      sync.Mutex
	leases  map[string]*lease
	idleTTL time.Duration
	maxSize int
	now     func() time.Time
}

// NewLeaseRegistry creates a registry that evicts leases idle longer
// than idleTTL once more than maxSize entries accumulate.
func NewLeaseRegistry(idleTTL time.Duration, maxSize int) *LeaseRegistry {
	return &LeaseRegistry{
		leases:  make(map[string]*lease),
		idleTTL: idleTTL,
		maxSize: maxSize,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Acquire blocks until the key's lease is free, the timeout elapses, or
// ctx is done. The returned release function must be called exactly once.
func (r *LeaseRegistry) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	r.mu.Lock()
	entry, ok := r.leases[key]
	if !ok {
		now := r.now()
		entry = &lease{sem: make(chan struct{}, 1), createdAt: now, lastAccess: now}
		r.leases[key] = entry
	}
	entry.waiters++
	entry.lastAccess = r.now()
	over := r.maxSize > 0 && len(r.leases) > r.maxSize
	r.mu.Unlock()

	if over {
		r.evictIdle()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case entry.sem <- struct{}{}:
		return func() { r.release(entry) }, nil
	case <-timer.C:
		r.abandon(entry)
		return nil, fmt.Errorf("%w: %s after %s", errLeaseTimeout, key, timeout)
	case <-ctx.Done():
		r.abandon(entry)
		return nil, ctx.Err()
	}
}

func (r *LeaseRegistry) release(entry *lease) {
	<-entry.sem
	r.mu.Lock()
	entry.waiters--
	entry.lastAccess = r.now()
	r.mu.Unlock()
}

func (r *LeaseRegistry) abandon(entry *lease) {
	r.mu.Lock()
	entry.waiters--
	entry.lastAccess = r.now()
	r.mu.Unlock()
}

// Len reports how many lease entries live in memory.
func (r *LeaseRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.leases)
}

// Cleanup removes every lease with no holder and no queued acquirer,
// returning the number removed.
func (r *LeaseRegistry) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key, entry := range r.leases {
		if entry.waiters == 0 {
			delete(r.leases, key)
			removed++
		}
	}
	return removed
}

// evictIdle removes unused leases whose last access is older than the
// idle TTL. Runs when the registry outgrows its cap.
func (r *LeaseRegistry) evictIdle() int {
	cutoff := r.now().Add(-r.idleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key, entry := range r.leases {
		if entry.waiters == 0 && entry.lastAccess.Before(cutoff) {
			delete(r.leases, key)
			removed++
		}
	}
	return removed
}
