package reactor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiberQueueWakeOneReleasesOnlyOneWaiter(t *testing.T) {
	r, err := Open(WithMaxFibers(8))
	require.NoError(t, err)

	err = r.Run(context.Background(), func(*Fiber) {
		q := r.NewFiberQueue()
		var woke []int
		for i := 0; i < 3; i++ {
			i := i
			_, spawnErr := r.Spawn(func(*Fiber) {
				require.NoError(t, q.Wait(r))
				woke = append(woke, i)
			})
			require.NoError(t, spawnErr)
			require.NoError(t, r.Yield()) // let each fiber reach Wait before the next is spawned
		}

		assert.Equal(t, 3, q.Len())
		assert.True(t, q.WakeOne(r))
		require.NoError(t, r.Yield())
		assert.Len(t, woke, 1)
		assert.Equal(t, 2, q.Len())

		q.WakeAll(r)
		require.NoError(t, r.Yield())
		assert.Len(t, woke, 3)
		assert.Equal(t, 0, q.Len())

		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)
}

func TestFiberQueueWaitTimeoutExpires(t *testing.T) {
	r, err := Open()
	require.NoError(t, err)

	var waitErr error
	err = r.Run(context.Background(), func(*Fiber) {
		q := r.NewFiberQueue()
		waitErr = q.WaitTimeout(r, r.clk.Now().Add(10*time.Millisecond))
		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)
	assert.ErrorIs(t, waitErr, ErrFiberTimeout)
}

func TestEventSetWakesWaitersAndLatchesOpen(t *testing.T) {
	r, err := Open(WithMaxFibers(4))
	require.NoError(t, err)

	err = r.Run(context.Background(), func(*Fiber) {
		ev := r.NewEvent()
		assert.False(t, ev.IsSet())

		var waited bool
		_, spawnErr := r.Spawn(func(*Fiber) {
			require.NoError(t, ev.Wait(r))
			waited = true
		})
		require.NoError(t, spawnErr)
		require.NoError(t, r.Yield())
		assert.False(t, waited, "must block until Set")

		ev.Set(r)
		require.NoError(t, r.Yield())
		assert.True(t, waited)

		// Set latches open: a Wait issued after Set returns immediately.
		require.NoError(t, ev.Wait(r))

		ev.Reset()
		assert.False(t, ev.IsSet())

		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)
}

func TestSemaphoreBlocksAtZeroAndReleaseWakesOne(t *testing.T) {
	r, err := Open(WithMaxFibers(4))
	require.NoError(t, err)

	err = r.Run(context.Background(), func(*Fiber) {
		sem := r.NewSemaphore(1)
		assert.True(t, sem.TryAcquire())
		assert.False(t, sem.TryAcquire(), "count is now zero")

		var acquired bool
		_, spawnErr := r.Spawn(func(*Fiber) {
			require.NoError(t, sem.Acquire(r))
			acquired = true
		})
		require.NoError(t, spawnErr)
		require.NoError(t, r.Yield())
		assert.False(t, acquired)

		sem.Release(r)
		require.NoError(t, r.Yield())
		assert.True(t, acquired)

		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)
}

func TestBarrierReleasesAllPartiesTogetherAndReusesAcrossGenerations(t *testing.T) {
	r, err := Open(WithMaxFibers(8))
	require.NoError(t, err)

	err = r.Run(context.Background(), func(*Fiber) {
		b := r.NewBarrier(3)
		var arrivedGen1 []int
		for i := 0; i < 2; i++ {
			i := i
			_, spawnErr := r.Spawn(func(*Fiber) {
				require.NoError(t, b.Wait(r))
				arrivedGen1 = append(arrivedGen1, i)
			})
			require.NoError(t, spawnErr)
			require.NoError(t, r.Yield())
		}
		assert.Empty(t, arrivedGen1, "must not release until all 3 parties arrive")

		// The third party is this fiber itself; it never suspends.
		require.NoError(t, b.Wait(r))
		require.NoError(t, r.Yield())
		assert.Len(t, arrivedGen1, 2, "both prior waiters released once the barrier completed")

		// Barrier is reusable: a fresh generation of 3 parties works again.
		var arrivedGen2 []int
		for i := 0; i < 2; i++ {
			i := i
			_, spawnErr := r.Spawn(func(*Fiber) {
				require.NoError(t, b.Wait(r))
				arrivedGen2 = append(arrivedGen2, i)
			})
			require.NoError(t, spawnErr)
			require.NoError(t, r.Yield())
		}
		require.NoError(t, b.Wait(r))
		require.NoError(t, r.Yield())
		assert.Len(t, arrivedGen2, 2)

		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)
}

func TestLockExcludesWhileHeldAndTryAcquireFailsOnContention(t *testing.T) {
	r, err := Open(WithMaxFibers(4))
	require.NoError(t, err)

	err = r.Run(context.Background(), func(*Fiber) {
		lock := r.NewLock()
		guard, ok := lock.TryAcquire(r)
		require.True(t, ok)

		_, failedOk := lock.TryAcquire(r)
		assert.False(t, failedOk, "lock is already held")

		var acquiredSecond bool
		_, spawnErr := r.Spawn(func(*Fiber) {
			g2 := lock.MustAcquire(r)
			acquiredSecond = true
			g2.Release()
		})
		require.NoError(t, spawnErr)
		require.NoError(t, r.Yield())
		assert.False(t, acquiredSecond, "must block until the first guard releases")

		guard.Release()
		require.NoError(t, r.Yield())
		assert.True(t, acquiredSecond)

		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)
}
