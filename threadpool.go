package reactor

import (
	"context"
	"fmt"
	"time"

	"github.com/joeycumines/go-microbatch"
)

// threadPool is the fixed-size worker pool backing DeferToThread (spec
// §4.5's "Thread pool"): on open it spawns N OS-thread-locked workers,
// each pulling request indices off the duplex queue's MCSP ring and
// running them through a [microbatch.Batcher] (grouping whatever
// requests land within the same short window into one BatchProcessor
// call, the way the rest of this dependency's callers in the pack use
// it to cut down on round trips - here, round trips through the result
// ring rather than a network call).
type threadPool struct {
	workers int
	dq      *duplexQueue
	batcher *microbatch.Batcher[index]
	stopCh  chan struct{}
}

func newThreadPool(workers int, dq *duplexQueue) *threadPool {
	tp := &threadPool{workers: workers, dq: dq, stopCh: make(chan struct{})}
	if workers > 0 {
		tp.batcher = microbatch.NewBatcher[index](&microbatch.BatcherConfig{
			MaxSize:        64,
			FlushInterval:  time.Millisecond,
			MaxConcurrency: workers,
		}, tp.runBatch)
	}
	return tp
}

// start launches the pull loops. A no-op if workers == 0
// (Options.ThreadPoolWorkers == 0 disables DeferToThread entirely).
func (tp *threadPool) start() {
	for i := 0; i < tp.workers; i++ {
		go tp.pullLoop()
	}
}

// pullLoop runs on one dedicated worker goroutine: block the signals
// spec §4.5 calls out, then repeatedly pop a request index and hand it
// to the batcher, backing off briefly when the request ring is empty
// rather than spinning the CPU.
func (tp *threadPool) pullLoop() {
	blockReactorSignals()
	for {
		select {
		case <-tp.stopCh:
			return
		default:
		}
		i, _, ok := tp.dq.takeRequest()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		if _, err := tp.batcher.Submit(context.Background(), i); err != nil {
			return
		}
	}
}

// runBatch is the microbatch.BatchProcessor: it runs each task's
// function (recovering a panic into DeferredTaskFailed, same as the
// fiber trampoline's unwind path) and posts the result index back.
func (tp *threadPool) runBatch(_ context.Context, jobs []index) error {
	for _, i := range jobs {
		t := tp.dq.tasks.At(i)
		t.result, t.err = tp.runOne(t)
		for !tp.dq.postResult(i) {
			time.Sleep(time.Millisecond)
		}
	}
	return nil
}

func (tp *threadPool) runOne(t *deferredTask) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &DeferredTaskFailed{
				TypeName: fmt.Sprintf("%T", rec),
				Message:  toString(rec),
				Cause:    panicToError(rec),
			}
		}
	}()
	return t.fn()
}

// stop signals every pull loop to exit and closes the batcher,
// draining whatever batch is currently in flight.
func (tp *threadPool) stop() {
	close(tp.stopCh)
	if tp.batcher != nil {
		_ = tp.batcher.Close()
	}
}

// DeferToThread runs fn on a worker OS thread and suspends the calling
// fiber until it completes or timeout elapses (spec §4.5/§6's
// defer_to_thread(fn, args, timeout)): on normal completion the result
// is returned as-is; a panic inside fn is delivered as
// *DeferredTaskFailed instead of propagating a raw panic across the
// thread boundary; a non-positive timeout means wait indefinitely.
func (r *Reactor) DeferToThread(fn func() (any, error), timeout time.Duration) (any, error) {
	r.checkThread()
	if r.opts.ThreadPoolWorkers == 0 {
		return nil, ErrThreadPoolDisabled
	}

	waiter := r.NewFiberQueue()
	i, err := r.duplex.submit(fn, waiter)
	if err != nil {
		return nil, err
	}

	var waitErr error
	if timeout > 0 {
		waitErr = waiter.WaitTimeout(r, r.clk.Now().Add(timeout))
	} else {
		waitErr = waiter.Wait(r)
	}
	if waitErr != nil {
		// Killed/ThrownIn/timed-out while waiting: the task may still be
		// running on a worker. Either way suspendCurrentOnImpl has
		// already removed this fiber from waiter's wait list (Kill/
		// ThrowIn via the usual resume path, a timeout via
		// wakeForTimeout), so drainResults sees waiter empty once the
		// worker posts and releases the slot itself.
		return nil, waitErr
	}

	t := r.duplex.tasks.At(i)
	result, taskErr := t.result, t.err
	r.duplex.tasks.Release(i)
	return result, taskErr
}
