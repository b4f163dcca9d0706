package reactor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSPSCRingSingleEndRoundTrip(t *testing.T) {
	r := newSPSCRing(4)

	_, ok := r.popSingle()
	assert.False(t, ok, "empty ring should not pop")

	require.True(t, r.pushSingle(1))
	require.True(t, r.pushSingle(2))
	require.True(t, r.pushSingle(3))
	require.True(t, r.pushSingle(4))
	assert.False(t, r.pushSingle(5), "ring at capacity should reject a push")

	for _, want := range []int32{1, 2, 3, 4} {
		got, ok := r.popSingle()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok = r.popSingle()
	assert.False(t, ok, "drained ring should not pop")
}

func TestSPSCRingWrapsAround(t *testing.T) {
	r := newSPSCRing(2)
	for i := 0; i < 100; i++ {
		require.True(t, r.pushSingle(int32(i)))
		got, ok := r.popSingle()
		require.True(t, ok)
		assert.Equal(t, int32(i), got)
	}
}

func TestSPSCRingMultiConcurrent(t *testing.T) {
	const (
		producers = 8
		perProd   = 200
	)
	r := newSPSCRing(64)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int32) {
			defer wg.Done()
			for i := int32(0); i < perProd; i++ {
				for !r.pushMulti(base + i) {
				}
			}
		}(int32(p * perProd))
	}

	seen := make(map[int32]bool)
	var mu sync.Mutex
	var wg2 sync.WaitGroup
	for c := 0; c < 4; c++ {
		wg2.Add(1)
		go func() {
			defer wg2.Done()
			for {
				v, ok := r.popMulti()
				if !ok {
					mu.Lock()
					n := len(seen)
					mu.Unlock()
					if n >= producers*perProd {
						return
					}
					continue
				}
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	wg2.Wait()
	assert.Len(t, seen, producers*perProd)
}

func TestDuplexQueueSubmitAndDrainAbandoned(t *testing.T) {
	q := newDuplexQueue(4)

	i, err := q.submit(func() (any, error) { return 42, nil }, nil)
	require.NoError(t, err)

	idx, task, ok := q.takeRequest()
	require.True(t, ok)
	assert.Equal(t, i, idx)
	task.result, task.err = task.fn()

	require.True(t, q.postResult(idx))

	usedBefore := q.tasks.Used()
	q.drainResults(nil)
	assert.Equal(t, usedBefore-1, q.tasks.Used(), "abandoned (nil waiter) task should release its slot")
}

func TestDuplexQueueFullReturnsError(t *testing.T) {
	q := newDuplexQueue(2)
	_, err := q.submit(func() (any, error) { return nil, nil }, nil)
	require.NoError(t, err)
	_, err = q.submit(func() (any, error) { return nil, nil }, nil)
	require.NoError(t, err)
	_, err = q.submit(func() (any, error) { return nil, nil }, nil)
	assert.ErrorIs(t, err, ErrDuplexQueueFull)
}
