package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseRegistry_AcquireRelease(t *testing.T) {
	reg := NewLeaseRegistry(time.Minute, 100)

	release, err := reg.Acquire(context.Background(), "wallet-1", time.Second)
	require.NoError(t, err)
	require.NotNil(t, release)
	release()

	// The entry stays registered after release so monitoring can see it.
	assert.Equal(t, 1, reg.Len())
}

func TestLeaseRegistry_SerializesSameKey(t *testing.T) {
	reg := NewLeaseRegistry(time.Minute, 100)
	ctx := context.Background()

	release1, err := reg.Acquire(ctx, "wallet-1", time.Second)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		release2, err := reg.Acquire(ctx, "wallet-1", 2*time.Second)
		if err != nil {
			t.Errorf("second acquire failed: %v", err)
			return
		}
		close(acquired)
		release2()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while the lease was still held")
	case <-time.After(50 * time.Millisecond):
	}

	release1()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire did not proceed after release")
	}
}

func TestLeaseRegistry_TimeoutWhileHeld(t *testing.T) {
	reg := NewLeaseRegistry(time.Minute, 100)
	ctx := context.Background()

	release, err := reg.Acquire(ctx, "wallet-1", time.Second)
	require.NoError(t, err)
	defer release()

	_, err = reg.Acquire(ctx, "wallet-1", 20*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, errLeaseTimeout)
}

func TestLeaseRegistry_ContextCanceled(t *testing.T) {
	reg := NewLeaseRegistry(time.Minute, 100)

	release, err := reg.Acquire(context.Background(), "wallet-1", time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = reg.Acquire(ctx, "wallet-1", time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLeaseRegistry_CleanupRemovesIdle(t *testing.T) {
	reg := NewLeaseRegistry(time.Minute, 100)
	ctx := context.Background()

	releaseA, err := reg.Acquire(ctx, "wallet-a", time.Second)
	require.NoError(t, err)
	releaseB, err := reg.Acquire(ctx, "wallet-b", time.Second)
	require.NoError(t, err)
	releaseA()
	releaseB()

	releaseC, err := reg.Acquire(ctx, "wallet-c", time.Second)
	require.NoError(t, err)
	defer releaseC()

	assert.Equal(t, 3, reg.Len())
	assert.Equal(t, 2, reg.Cleanup())
	assert.Equal(t, 1, reg.Len())
}

func TestLeaseRegistry_EvictsIdleOverCap(t *testing.T) {
	reg := NewLeaseRegistry(time.Minute, 1)
	current := time.Now().UTC()
	reg.now = func() time.Time { return current }

	release, err := reg.Acquire(context.Background(), "wallet-old", time.Second)
	require.NoError(t, err)
	release()

	current = current.Add(2 * time.Minute)

	release, err = reg.Acquire(context.Background(), "wallet-new", time.Second)
	require.NoError(t, err)
	defer release()

	assert.Equal(t, 1, reg.Len())
	reg.mu.Lock()
	_, oldKept := reg.leases["wallet-old"]
	reg.mu.Unlock()
	assert.False(t, oldKept)
}

func TestLeaseRegistry_MutualExclusion(t *testing.T) {
	reg := NewLeaseRegistry(time.Minute, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := reg.Acquire(ctx, "wallet-1", 5*time.Second)
			if err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}
			counter++
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, counter)
}
