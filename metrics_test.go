package reactor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsReflectsPoolOccupancy(t *testing.T) {
	r, err := Open(WithMaxFibers(8), WithMaxTimers(8), WithMaxDeferredTasks(2))
	require.NoError(t, err)

	var before, duringSpawn, after Stats
	err = r.Run(context.Background(), func(*Fiber) {
		before = r.Stats()

		child, spawnErr := r.Spawn(func(*Fiber) {})
		require.NoError(t, spawnErr)
		duringSpawn = r.Stats() // Acquire happens synchronously in Spawn

		require.NoError(t, r.Join(child))
		after = r.Stats()

		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)

	assert.Equal(t, 8, before.FiberPoolCap)
	assert.Equal(t, before.FiberPoolUsed+1, duringSpawn.FiberPoolUsed)
	assert.GreaterOrEqual(t, after.FibersExited, before.FibersExited+1)
	assert.Equal(t, before.FiberPoolUsed, after.FiberPoolUsed, "the exited child's slot should be returned to the pool")
}

func TestStatsTimerLevelOccupancyLength(t *testing.T) {
	r, err := Open(WithTimerWheel(8, 3))
	require.NoError(t, err)

	var stats Stats
	err = r.Run(context.Background(), func(*Fiber) {
		stats = r.Stats()
		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)

	assert.Len(t, stats.TimerLevelOccupancy, 3)
}

func TestStatsTaskPoolCapMatchesDuplexCapacity(t *testing.T) {
	r, err := Open(WithMaxDeferredTasks(4), WithThreadPoolWorkers(1))
	require.NoError(t, err)

	var stats Stats
	err = r.Run(context.Background(), func(*Fiber) {
		stats = r.Stats()
		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)

	assert.Equal(t, nextPow2(4), stats.TaskPoolCap)
}
