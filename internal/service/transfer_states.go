package service

import (
	"sync"
	"time"

	"pix-wallet-service/internal/core/domain"
)

// emergencyStateAge is the age above which entries are dropped when the
// state map outgrows its cap.
const emergencyStateAge = 30 * time.Minute

type transferState struct {
	status    domain.PixTransferStatus
	createdAt time.Time
}

func (s *transferState) terminal() bool {
	return s.status == domain.PixTransferStatusConfirmed || s.status == domain.PixTransferStatusRejected
}

// transferStateMap is the in-memory status board for in-flight
// transfers. It is the fast settlement arbiter: the compare-and-swap
// decides which webhook event wins, the database row stays the durable
// authority. Entries expire after the TTL; misses are reloaded from the
// row by the caller.
type transferStateMap struct {
	mu      sync.Mutex
	states  map[string]*transferState
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

func newTransferStateMap(ttl time.Duration, maxSize int) *transferStateMap {
	return &transferStateMap{
		states:  make(map[string]*transferState),
		ttl:     ttl,
		maxSize: maxSize,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *transferStateMap) expired(s *transferState, now time.Time) bool {
	return now.After(s.createdAt.Add(m.ttl))
}

// PutIfAbsent registers endToEndID with status and reports whether this
// call created the entry. An expired entry counts as absent.
func (m *transferStateMap) PutIfAbsent(endToEndID string, status domain.PixTransferStatus) bool {
	m.mu.Lock()
	now := m.now()
	existing, ok := m.states[endToEndID]
	if ok && !m.expired(existing, now) {
		m.mu.Unlock()
		return false
	}
	m.states[endToEndID] = &transferState{status: status, createdAt: now}
	over := m.maxSize > 0 && len(m.states) > m.maxSize
	m.mu.Unlock()

	if over {
		m.evictOlderThan(emergencyStateAge)
	}
	return true
}

// Get returns the tracked status. Expired entries read as absent.
func (m *transferStateMap) Get(endToEndID string) (domain.PixTransferStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.states[endToEndID]
	if !ok || m.expired(entry, m.now()) {
		return "", false
	}
	return entry.status, true
}

// CompareAndSwap moves endToEndID from want to target, reporting whether
// the swap happened. This is the single point that decides a settlement
// race.
func (m *transferStateMap) CompareAndSwap(endToEndID string, want, target domain.PixTransferStatus) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.states[endToEndID]
	if !ok || m.expired(entry, m.now()) || entry.status != want {
		return false
	}
	entry.status = target
	return true
}

// Set forces the tracked status, creating the entry if needed. Used to
// resynchronize with the database row.
func (m *transferStateMap) Set(endToEndID string, status domain.PixTransferStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.states[endToEndID]; ok {
		entry.status = status
		return
	}
	m.states[endToEndID] = &transferState{status: status, createdAt: m.now()}
}

func (m *transferStateMap) Remove(endToEndID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, endToEndID)
}

func (m *transferStateMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

// Cleanup removes expired and terminal entries. Terminal entries are
// safe to drop: a late event reloads the row and sees the final state.
func (m *transferStateMap) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for key, entry := range m.states {
		if m.expired(entry, now) || entry.terminal() {
			delete(m.states, key)
			removed++
		}
	}
	return removed
}

func (m *transferStateMap) evictOlderThan(maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, entry := range m.states {
		if entry.createdAt.Before(cutoff) {
			delete(m.states, key)
			removed++
		}
	}
	return removed
}
