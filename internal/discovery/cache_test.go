package discovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_EnsureDiscoveredMarksOnSuccess(t *testing.T) {
	t.Parallel()

	c := NewCache()
	var calls atomic.Int32

	enumerate := func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}

	require.NoError(t, c.EnsureDiscovered(context.Background(), "dev-1", enumerate))
	require.NoError(t, c.EnsureDiscovered(context.Background(), "dev-1", enumerate))

	assert.True(t, c.IsDiscovered("dev-1"))
	assert.False(t, c.IsDiscovered("dev-2"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_ConcurrentCallersShareOneEnumeration(t *testing.T) {
	t.Parallel()

	c := NewCache()
	var calls atomic.Int32
	release := make(chan struct{})

	enumerate := func(ctx context.Context) error {
		calls.Add(1)
		<-release
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.EnsureDiscovered(context.Background(), "dev-1", enumerate)
		}(i)
	}

	// Both callers must be parked on the same flight before it completes.
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, c.IsDiscovered("dev-1"))
}

func TestCache_FailureLeavesUnmarked(t *testing.T) {
	t.Parallel()

	c := NewCache()
	boom := errors.New("gatt enumeration failed")
	var calls atomic.Int32

	err := c.EnsureDiscovered(context.Background(), "dev-1", func(ctx context.Context) error {
		calls.Add(1)
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, c.IsDiscovered("dev-1"))

	err = c.EnsureDiscovered(context.Background(), "dev-1", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, c.IsDiscovered("dev-1"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_CancelledCallerReturnsEarly(t *testing.T) {
	t.Parallel()

	c := NewCache()
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.EnsureDiscovered(ctx, "dev-1", func(context.Context) error {
			<-release
			return nil
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}
	assert.False(t, c.IsDiscovered("dev-1"))
}

func TestCache_WaiterRetriesAfterLeaderCancellation(t *testing.T) {
	t.Parallel()

	c := NewCache()
	var calls atomic.Int32
	started := make(chan struct{})

	enumerate := func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderDone := make(chan error, 1)
	go func() {
		leaderDone <- c.EnsureDiscovered(leaderCtx, "dev-1", enumerate)
	}()
	<-started

	waiterDone := make(chan error, 1)
	go func() {
		waiterDone <- c.EnsureDiscovered(context.Background(), "dev-1", enumerate)
	}()
	time.Sleep(20 * time.Millisecond)
	cancelLeader()

	assert.ErrorIs(t, <-leaderDone, context.Canceled)
	select {
	case err := <-waiterDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter did not finish")
	}
	assert.True(t, c.IsDiscovered("dev-1"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_ForgetClearsState(t *testing.T) {
	t.Parallel()

	c := NewCache()
	var calls atomic.Int32
	enumerate := func(context.Context) error {
		calls.Add(1)
		return nil
	}

	require.NoError(t, c.EnsureDiscovered(context.Background(), "dev-1", enumerate))
	c.Forget("dev-1")
	assert.False(t, c.IsDiscovered("dev-1"))

	require.NoError(t, c.EnsureDiscovered(context.Background(), "dev-1", enumerate))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_ForgetDuringEnumerationDoesNotMark(t *testing.T) {
	t.Parallel()

	c := NewCache()
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- c.EnsureDiscovered(context.Background(), "dev-1", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	c.Forget("dev-1")
	close(release)

	require.NoError(t, <-done)
	assert.False(t, c.IsDiscovered("dev-1"))
}

func TestCache_ForgetDoesNotOverlapEnumerations(t *testing.T) {
	t.Parallel()

	c := NewCache()
	var calls, inFlight, maxInFlight atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	enumerate := func(context.Context) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return nil
	}

	first := make(chan error, 1)
	go func() { first <- c.EnsureDiscovered(context.Background(), "dev-1", enumerate) }()
	<-started

	c.Forget("dev-1")

	second := make(chan error, 1)
	go func() { second <- c.EnsureDiscovered(context.Background(), "dev-1", enumerate) }()

	assert.Never(t, func() bool { return calls.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	close(release)

	require.NoError(t, <-first)
	require.NoError(t, <-second)
	assert.Equal(t, int32(2), calls.Load(), "caller after Forget must enumerate again")
	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.True(t, c.IsDiscovered("dev-1"))
}
