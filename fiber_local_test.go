package reactor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCounterSlot = NewFiberLocalSlot[int]("test-counter")

func TestFiberLocalGetSetViaSlot(t *testing.T) {
	r, err := Open()
	require.NoError(t, err)

	var seen int
	err = r.Run(context.Background(), func(f *Fiber) {
		assert.Equal(t, 0, testCounterSlot.Get(f))
		testCounterSlot.Set(f, 5)
		seen = testCounterSlot.Get(f)
		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)
	assert.Equal(t, 5, seen)
}

func TestFiberLocalConvenienceClosures(t *testing.T) {
	r, err := Open()
	require.NoError(t, err)

	var got int
	err = r.Run(context.Background(), func(*Fiber) {
		get, set := FiberLocal(r, testCounterSlot)
		set(11)
		got = get()
		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)
	assert.Equal(t, 11, got)
}

func TestFiberLocalIsolatedPerFiber(t *testing.T) {
	r, err := Open(WithMaxFibers(8))
	require.NoError(t, err)

	var childVal int
	err = r.Run(context.Background(), func(f *Fiber) {
		testCounterSlot.Set(f, 100)

		child, spawnErr := r.Spawn(func(cf *Fiber) {
			childVal = testCounterSlot.Get(cf) // must not see parent's value
			testCounterSlot.Set(cf, 200)
		})
		require.NoError(t, spawnErr)
		require.NoError(t, r.Join(child))

		assert.Equal(t, 100, testCounterSlot.Get(f), "a child's writes must not leak back to the parent")
		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)
	assert.Equal(t, 0, childVal)
}
