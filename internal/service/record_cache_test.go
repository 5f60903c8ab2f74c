package service

import (
	"testing"
	"time"

	"pix-wallet-service/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecordCache(ttl time.Duration, maxSize int) (*recordCache, *time.Time) {
	c := newRecordCache(ttl, maxSize)
	current := time.Now().UTC()
	c.now = func() time.Time { return current }
	return c, &current
}

func TestRecordCache_PutGet(t *testing.T) {
	c, current := newTestRecordCache(time.Minute, 100)
	rec := domain.NewIdempotencyRecord(domain.IdempotencyScopeTransfer, "key-1", []byte(`{"amount":1}`), []byte(`{"ok":true}`), 201, *current)

	c.Put(domain.IdempotencyScopeTransfer, "key-1", rec)

	got := c.Get(domain.IdempotencyScopeTransfer, "key-1")
	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)

	// Same key in another scope is a different entry.
	assert.Nil(t, c.Get(domain.IdempotencyScopeWebhook, "key-1"))
}

func TestRecordCache_EntryAgesOut(t *testing.T) {
	c, current := newTestRecordCache(time.Minute, 100)
	rec := domain.NewIdempotencyRecord(domain.IdempotencyScopeTransfer, "key-1", nil, nil, 201, *current)
	c.Put(domain.IdempotencyScopeTransfer, "key-1", rec)

	// The record itself is still live, but the cache entry has aged out.
	*current = current.Add(2 * time.Minute)
	assert.Nil(t, c.Get(domain.IdempotencyScopeTransfer, "key-1"))
	assert.Equal(t, 0, c.Len())
}

func TestRecordCache_ExpiredRecordDropped(t *testing.T) {
	c, current := newTestRecordCache(48*time.Hour, 100)
	rec := domain.NewIdempotencyRecord(domain.IdempotencyScopeTransfer, "key-1", nil, nil, 201, *current)
	c.Put(domain.IdempotencyScopeTransfer, "key-1", rec)

	*current = current.Add(domain.IdempotencyRecordTTL + time.Minute)
	assert.Nil(t, c.Get(domain.IdempotencyScopeTransfer, "key-1"))
}

func TestRecordCache_Remove(t *testing.T) {
	c, current := newTestRecordCache(time.Minute, 100)
	rec := domain.NewIdempotencyRecord(domain.IdempotencyScopeTransfer, "key-1", nil, nil, 201, *current)
	c.Put(domain.IdempotencyScopeTransfer, "key-1", rec)

	c.Remove(domain.IdempotencyScopeTransfer, "key-1")
	assert.Nil(t, c.Get(domain.IdempotencyScopeTransfer, "key-1"))
}

func TestRecordCache_CleanupCountsRemovals(t *testing.T) {
	c, current := newTestRecordCache(time.Minute, 100)
	stale := domain.NewIdempotencyRecord(domain.IdempotencyScopeTransfer, "stale", nil, nil, 201, *current)
	c.Put(domain.IdempotencyScopeTransfer, "stale", stale)

	*current = current.Add(2 * time.Minute)
	live := domain.NewIdempotencyRecord(domain.IdempotencyScopeTransfer, "live", nil, nil, 201, *current)
	c.Put(domain.IdempotencyScopeTransfer, "live", live)

	assert.Equal(t, 1, c.Cleanup())
	assert.Equal(t, 1, c.Len())
	assert.NotNil(t, c.Get(domain.IdempotencyScopeTransfer, "live"))
}

func TestRecordCache_OverCapEvictsExpiredFirst(t *testing.T) {
	c, current := newTestRecordCache(time.Minute, 2)

	a := domain.NewIdempotencyRecord(domain.IdempotencyScopeTransfer, "a", nil, nil, 201, *current)
	b := domain.NewIdempotencyRecord(domain.IdempotencyScopeTransfer, "b", nil, nil, 201, *current)
	c.Put(domain.IdempotencyScopeTransfer, "a", a)
	c.Put(domain.IdempotencyScopeTransfer, "b", b)

	*current = current.Add(2 * time.Minute)
	fresh := domain.NewIdempotencyRecord(domain.IdempotencyScopeTransfer, "fresh", nil, nil, 201, *current)
	c.Put(domain.IdempotencyScopeTransfer, "fresh", fresh)

	assert.Equal(t, 1, c.Len())
	assert.NotNil(t, c.Get(domain.IdempotencyScopeTransfer, "fresh"))
}
