package reactor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinAllWaitsForEveryHandle(t *testing.T) {
	r, err := Open(WithMaxFibers(16))
	require.NoError(t, err)

	var order []int
	err = r.Run(context.Background(), func(*Fiber) {
		var handles []Handle
		for i := 0; i < 3; i++ {
			i := i
			h, spawnErr := r.Spawn(func(*Fiber) {
				require.NoError(t, r.Sleep(time.Duration(i+1) * time.Millisecond))
				order = append(order, i)
			})
			require.NoError(t, spawnErr)
			handles = append(handles, h)
		}

		require.NoError(t, r.JoinAll(handles...))
		assert.Len(t, order, 3, "JoinAll must not return until all three fibers have exited")

		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)
}

func TestJoinAllNoOpOnStaleHandle(t *testing.T) {
	r, err := Open()
	require.NoError(t, err)

	err = r.Run(context.Background(), func(*Fiber) {
		h, spawnErr := r.Spawn(func(*Fiber) {})
		require.NoError(t, spawnErr)
		require.NoError(t, r.Join(h)) // let it exit and recycle its slot

		// h is now stale; JoinAll must treat it as already-done, not hang.
		require.NoError(t, r.JoinAll(h))

		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)
}

func TestJoinAnyReturnsFirstWinner(t *testing.T) {
	r, err := Open(WithMaxFibers(16))
	require.NoError(t, err)

	var fast, slow Handle
	err = r.Run(context.Background(), func(*Fiber) {
		var spawnErr error
		fast, spawnErr = r.Spawn(func(*Fiber) {
			require.NoError(t, r.Sleep(time.Millisecond))
		})
		require.NoError(t, spawnErr)
		slow, spawnErr = r.Spawn(func(*Fiber) {
			require.NoError(t, r.Sleep(50*time.Millisecond))
		})
		require.NoError(t, spawnErr)

		winner, joinErr := r.JoinAny(fast, slow)
		require.NoError(t, joinErr)
		assert.Equal(t, fast, winner)

		require.NoError(t, r.Kill(slow))
		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)
}
