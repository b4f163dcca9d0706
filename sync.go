package reactor

// This file implements the reactor-thread-scoped synchronization
// primitives of spec §4.6: Event, Lock, Semaphore, Barrier and
// FiberQueue. None of them use a mutex or atomic CAS loop internally -
// there is never more than one goroutine actually running fiber code at
// a time (switch.go's baton), so "blocking" a fiber here just means
// parking its goroutine on the continuation channel after recording it
// in a wait list; waking it means moving it back onto the ready queue
// for the scheduler to resume in its own time. The low-level mechanics
// (suspendCurrentOn / wakeOneFrom / wakeAllFrom) live in scheduler.go
// alongside Suspend/Resume, since they share the same ready-queue and
// CTQ timeout bookkeeping.
//
// fiberQueue is aliased to the exported FiberQueue so fiber.go's
// joinWaiters field and this file's public wait-queue type are one and
// the same: Join is simply "enqueue onto this fiber's own FiberQueue,
// woken by WakeAll when it exits."
type fiberQueue = FiberQueue

// FiberQueue is a wait set of suspended fibers (spec §4.6). It is the
// primitive every other synchronization type in this file is built
// from, and is also usable directly as a simple rendezvous point.
type FiberQueue struct {
	waiters *intrusiveList
}

// NewFiberQueue allocates a FiberQueue bound to r's fiber pool. A
// FiberQueue must only ever be used with the Reactor it was created
// from.
func (r *Reactor) NewFiberQueue() *FiberQueue {
	return &FiberQueue{waiters: newIntrusiveList(r.fibers.Links())}
}

// Wait suspends the calling fiber (must be the reactor's current
// fiber) until a matching Wake call, ThrowIn, or Kill. Must be called
// on the reactor's own goroutine.
func (q *FiberQueue) Wait(r *Reactor) error {
	return r.suspendCurrentOn(q.waiters, 0, false)
}

// WaitTimeout is Wait with a deadline; returns ErrFiberTimeout if the
// deadline elapses first.
func (q *FiberQueue) WaitTimeout(r *Reactor, deadline Cycles) error {
	return r.suspendCurrentOn(q.waiters, deadline, true)
}

// WakeOne moves the longest-waiting fiber, if any, onto the ready
// queue. Returns false if the queue was empty.
func (q *FiberQueue) WakeOne(r *Reactor) bool {
	return r.wakeOneFrom(q.waiters)
}

// WakeAll moves every waiting fiber onto the ready queue.
func (q *FiberQueue) WakeAll(r *Reactor) {
	r.wakeAllFrom(q.waiters)
}

// Len reports the number of fibers currently parked on q.
func (q *FiberQueue) Len() int { return q.waiters.Len() }

// Event is a manual-reset event (spec §4.6): once Set, every current
// and future Wait returns immediately until the next Reset.
type Event struct {
	signaled bool
	waiters  *intrusiveList
}

func (r *Reactor) NewEvent() *Event {
	return &Event{waiters: newIntrusiveList(r.fibers.Links())}
}

// Wait blocks the calling fiber until the event is signaled.
func (e *Event) Wait(r *Reactor) error {
	if e.signaled {
		return nil
	}
	return r.suspendCurrentOn(e.waiters, 0, false)
}

// Set marks the event signaled and wakes every waiter.
func (e *Event) Set(r *Reactor) {
	e.signaled = true
	r.wakeAllFrom(e.waiters)
}

// Reset clears the signaled flag; it does not affect fibers already
// woken by a prior Set.
func (e *Event) Reset() { e.signaled = false }

func (e *Event) IsSet() bool { return e.signaled }

// Semaphore is a counting semaphore scoped to the reactor thread (spec
// §4.6). Acquire/Release never touch an OS futex - they are plain
// field reads/writes guarded only by the fact that exactly one fiber
// runs at a time.
type Semaphore struct {
	count   int
	waiters *intrusiveList
}

func (r *Reactor) NewSemaphore(initial int) *Semaphore {
	if initial < 0 {
		initial = 0
	}
	return &Semaphore{count: initial, waiters: newIntrusiveList(r.fibers.Links())}
}

// Acquire blocks until count > 0, then decrements it.
func (s *Semaphore) Acquire(r *Reactor) error {
	for s.count == 0 {
		if err := r.suspendCurrentOn(s.waiters, 0, false); err != nil {
			return err
		}
	}
	s.count--
	return nil
}

// TryAcquire decrements count without blocking if it is already
// positive.
func (s *Semaphore) TryAcquire() bool {
	if s.count == 0 {
		return false
	}
	s.count--
	return true
}

// Release increments count and wakes one waiter, if any.
func (s *Semaphore) Release(r *Reactor) {
	s.count++
	r.wakeOneFrom(s.waiters)
}

// Barrier blocks parties fibers until all have arrived, then releases
// them together (spec §4.6). Reusable across generations: once the Nth
// fiber arrives, the generation rolls over so a new wave of parties can
// reuse the same Barrier value.
type Barrier struct {
	parties    int
	arrived    int
	generation uint64
	waiters    *intrusiveList
}

func (r *Reactor) NewBarrier(parties int) *Barrier {
	if parties < 1 {
		parties = 1
	}
	return &Barrier{parties: parties, waiters: newIntrusiveList(r.fibers.Links())}
}

// Wait blocks until parties fibers have called Wait for the current
// generation, then releases all of them. The fiber that completes the
// barrier returns first (it never itself suspends).
func (b *Barrier) Wait(r *Reactor) error {
	b.arrived++
	if b.arrived < b.parties {
		gen := b.generation
		for b.generation == gen {
			if err := r.suspendCurrentOn(b.waiters, 0, false); err != nil {
				return err
			}
		}
		return nil
	}
	b.arrived = 0
	b.generation++
	r.wakeAllFrom(b.waiters)
	return nil
}

// Lock is a mutual-exclusion primitive scoped to the reactor thread
// (spec §4.6). Because only one fiber ever runs at a time, contention
// only arises when the holder suspends (Sleep, I/O wait, an explicit
// Yield) while still holding the lock - Lock exists for exactly that
// case, not for true parallel access.
type Lock struct {
	held    bool
	waiters *intrusiveList
}

func (r *Reactor) NewLock() *Lock {
	return &Lock{waiters: newIntrusiveList(r.fibers.Links())}
}

// LockGuard is the RAII-style handle returned by [Lock.Acquire];
// Release must be called exactly once, typically via defer.
type LockGuard struct {
	lock *Lock
	r    *Reactor
}

// Release unlocks the guarded Lock and wakes one waiter, if any.
func (g LockGuard) Release() {
	g.lock.held = false
	g.r.wakeOneFrom(g.lock.waiters)
}

// Acquire blocks until the lock is free, then takes it, returning a
// guard whose Release call gives it back up. Idiomatic use:
//
//	defer lock.MustAcquire(r).Release()
func (l *Lock) Acquire(r *Reactor) (LockGuard, error) {
	for l.held {
		if err := r.suspendCurrentOn(l.waiters, 0, false); err != nil {
			return LockGuard{}, err
		}
	}
	l.held = true
	return LockGuard{lock: l, r: r}, nil
}

// TryAcquire takes the lock without blocking if it is currently free.
func (l *Lock) TryAcquire(r *Reactor) (LockGuard, bool) {
	if l.held {
		return LockGuard{}, false
	}
	l.held = true
	return LockGuard{lock: l, r: r}, true
}

// MustAcquire is Acquire for callers that treat a suspension error
// (timeout never applies here; only ThrowIn/Kill can fail it) as a
// programmer error worth panicking on, enabling the one-line
// defer lock.MustAcquire(r).Release() idiom.
func (l *Lock) MustAcquire(r *Reactor) LockGuard {
	g, err := l.Acquire(r)
	if err != nil {
		panic(err)
	}
	return g
}
