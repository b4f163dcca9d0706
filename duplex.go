package reactor

import (
	"fmt"
	"sync/atomic"
)

// deferredTask is the fixed-pool record a duplex-queue slot indexes
// into rather than carrying by value (spec §4.5: "Indices are stored
// because pointer-sized atomics suffice and the backing task objects
// live in a fixed pool").
type deferredTask struct {
	fn     func() (any, error)
	result any
	err    error
	waiter *FiberQueue
}

// duplexSlot is one ring-buffer cell. seq is the Vyukov-style sequence
// number used to detect whether the cell currently holds data destined
// for the reader at a given cursor position, or is still waiting for
// its writer - the bounded-queue equivalent of spec §4.5's one-byte
// phase handshake, generalized to a full counter so wraparound can
// never be mistaken for a fresh publish.
type duplexSlot struct {
	seq  atomic.Uint64
	task int32
}

// spscRing is a bounded ring of capacity a power of two, with separate
// single-writer and multi-writer push/pop halves: the "single" side
// needs no CAS (spec §4.5: "the single-end side needs no CAS"), the
// "multi" side CASes its cursor to claim a slot before touching it.
type spscRing struct {
	_     [64]byte // cache-line padding, grounded on the teacher's FastPoller layout
	mask  uint64
	slots []duplexSlot
	_     [56]byte
	head  atomic.Uint64 // next position to read
	_     [56]byte
	tail  atomic.Uint64 // next position to write
	_     [56]byte
}

func newSPSCRing(capacity int) *spscRing {
	r := &spscRing{
		mask:  uint64(capacity - 1),
		slots: make([]duplexSlot, capacity),
	}
	for i := range r.slots {
		r.slots[i].seq.Store(uint64(i))
	}
	return r
}

// pushSingle is the single-producer enqueue path: no CAS needed on
// tail, since this goroutine is its only writer.
func (r *spscRing) pushSingle(task int32) bool {
	pos := r.tail.Load()
	s := &r.slots[pos&r.mask]
	if s.seq.Load() != pos {
		return false // full
	}
	s.task = task
	s.seq.Store(pos + 1)
	r.tail.Store(pos + 1)
	return true
}

// pushMulti is the multi-producer enqueue path: CAS-claims the next
// tail position before writing.
func (r *spscRing) pushMulti(task int32) bool {
	for {
		pos := r.tail.Load()
		s := &r.slots[pos&r.mask]
		seq := s.seq.Load()
		switch {
		case seq == pos:
			if r.tail.CompareAndSwap(pos, pos+1) {
				s.task = task
				s.seq.Store(pos + 1)
				return true
			}
		case seq < pos:
			return false // full
		}
	}
}

// popSingle is the single-consumer dequeue path: no CAS needed on
// head.
func (r *spscRing) popSingle() (int32, bool) {
	pos := r.head.Load()
	s := &r.slots[pos&r.mask]
	if s.seq.Load() != pos+1 {
		return 0, false // empty
	}
	task := s.task
	s.seq.Store(pos + r.mask + 1)
	r.head.Store(pos + 1)
	return task, true
}

// popMulti is the multi-consumer dequeue path: CAS-claims the next
// head position before reading.
func (r *spscRing) popMulti() (int32, bool) {
	for {
		pos := r.head.Load()
		s := &r.slots[pos&r.mask]
		seq := s.seq.Load()
		switch {
		case seq == pos+1:
			if r.head.CompareAndSwap(pos, pos+1) {
				task := s.task
				s.seq.Store(pos + r.mask + 1)
				return task, true
			}
		case seq < pos+1:
			return 0, false // empty
		}
	}
}

// duplexQueue is the two-way lock-free hand-off between the reactor
// and the thread pool's worker OS threads (spec §4.5): requests flow
// reactor -> workers over an MCSP ring (single producer, the reactor;
// multiple consumers, the workers), results flow workers -> reactor
// over an SCMP ring (multiple producers, the workers; single
// consumer, the reactor). Both rings index into the same fixed task
// pool, so no task is ever copied across the boundary - only its slot
// index is.
type duplexQueue struct {
	requests *spscRing // reactor pushSingle, workers popMulti
	results  *spscRing // workers pushMulti, reactor popSingle

	tasks *pool[deferredTask]
}

func newDuplexQueue(capacity int) *duplexQueue {
	return &duplexQueue{
		requests: newSPSCRing(capacity),
		results:  newSPSCRing(capacity),
		tasks:    newPool[deferredTask](capacity),
	}
}

// submit allocates a task slot and enqueues its index onto the
// request ring. Called only from the reactor's own goroutine.
func (q *duplexQueue) submit(fn func() (any, error), waiter *FiberQueue) (index, error) {
	i, t, err := q.tasks.Acquire()
	if err != nil {
		return nilIndex, fmt.Errorf("%w: %w", ErrDuplexQueueFull, err)
	}
	t.fn = fn
	t.waiter = waiter
	t.result = nil
	t.err = nil
	if !q.requests.pushSingle(int32(i)) {
		q.tasks.Release(i)
		return nilIndex, ErrDuplexQueueFull
	}
	return i, nil
}

// takeRequest is a worker thread's half: pop the next request index,
// if any.
func (q *duplexQueue) takeRequest() (index, *deferredTask, bool) {
	raw, ok := q.requests.popMulti()
	if !ok {
		return nilIndex, nil, false
	}
	i := index(raw)
	return i, q.tasks.At(i), true
}

// postResult is a worker thread's other half: publish the now-complete
// task's index onto the result ring.
func (q *duplexQueue) postResult(i index) bool {
	return q.results.pushMulti(int32(i))
}

// drainResults is the reactor's half: pop every completed task off the
// result ring, waking its waiter and releasing its slot. Called only
// from the reactor's own goroutine (stepOnce).
func (q *duplexQueue) drainResults(r *Reactor) {
	for {
		raw, ok := q.results.popSingle()
		if !ok {
			return
		}
		i := index(raw)
		t := q.tasks.At(i)
		// If the requesting fiber was killed or timed out while the
		// worker was still running its task, it already left t.waiter's
		// wait list (Kill/ThrowIn's removeWherever) - nobody will ever
		// read t.result, so this path (not the fiber's own resume)
		// releases the slot instead (spec §4.5: "ownership of slot
		// release transfers to the result-draining path").
		if t.waiter == nil || t.waiter.Len() == 0 {
			q.tasks.Release(i)
			continue
		}
		t.waiter.WakeAll(r)
	}
}
