package reactor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeferToThreadReturnsResult(t *testing.T) {
	r, err := Open(WithThreadPoolWorkers(2), WithMaxDeferredTasks(4))
	require.NoError(t, err)

	var result any
	var callErr error
	err = r.Run(context.Background(), func(*Fiber) {
		result, callErr = r.DeferToThread(func() (any, error) {
			return 7 * 6, nil
		}, 0)
		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)
	require.NoError(t, callErr)
	assert.Equal(t, 42, result)
}

func TestDeferToThreadPropagatesError(t *testing.T) {
	r, err := Open(WithThreadPoolWorkers(1), WithMaxDeferredTasks(2))
	require.NoError(t, err)

	wantErr := errors.New("boom")
	var callErr error
	err = r.Run(context.Background(), func(*Fiber) {
		_, callErr = r.DeferToThread(func() (any, error) {
			return nil, wantErr
		}, 0)
		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)
	assert.ErrorIs(t, callErr, wantErr)
}

func TestDeferToThreadRecoversPanic(t *testing.T) {
	r, err := Open(WithThreadPoolWorkers(1), WithMaxDeferredTasks(2))
	require.NoError(t, err)

	var callErr error
	err = r.Run(context.Background(), func(*Fiber) {
		_, callErr = r.DeferToThread(func() (any, error) {
			panic("worker exploded")
		}, 0)
		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)

	var failed *DeferredTaskFailed
	require.ErrorAs(t, callErr, &failed)
	assert.Equal(t, "worker exploded", failed.Message)
}

func TestDeferToThreadDisabledByDefault(t *testing.T) {
	r, err := Open() // ThreadPoolWorkers defaults to 0
	require.NoError(t, err)

	var callErr error
	err = r.Run(context.Background(), func(*Fiber) {
		_, callErr = r.DeferToThread(func() (any, error) { return nil, nil }, 0)
		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)
	assert.ErrorIs(t, callErr, ErrThreadPoolDisabled)
}

// TestDeferToThreadTimesOut exercises the timeout path the original
// implementation lacked entirely: a worker function that never returns
// within the deadline must surface ErrFiberTimeout to the caller, not
// hang until Kill.
func TestDeferToThreadTimesOut(t *testing.T) {
	r, err := Open(WithThreadPoolWorkers(1), WithMaxDeferredTasks(2))
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)

	var callErr error
	var elapsed time.Duration
	err = r.Run(context.Background(), func(*Fiber) {
		start := time.Now()
		_, callErr = r.DeferToThread(func() (any, error) {
			<-release
			return nil, nil
		}, 20*time.Millisecond)
		elapsed = time.Since(start)
		require.NoError(t, r.Stop())
	})
	require.NoError(t, err)
	assert.ErrorIs(t, callErr, ErrFiberTimeout)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Less(t, elapsed, time.Second, "timeout must fire near its deadline, not wait for an unrelated wake")
}
