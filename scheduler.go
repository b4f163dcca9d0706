package reactor

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Reactor is the single-threaded cooperative scheduler (spec §4.2): it
// owns the fiber pool, the ready queue, the cascading time queue, the
// epoll bridge and the thread-pool duplex queue, and multiplexes
// fibers onto one driver goroutine via the baton handoff in switch.go.
//
// A Reactor is created with [Open] and driven with [Reactor.Run], which
// must be called from the goroutine that is to become its permanent
// driver - every other exported method (other than [Reactor.Close] and
// [Reactor.Stop], see doc.go) must be called from whichever goroutine
// currently holds the baton.
type Reactor struct {
	opts  Options
	state reactorState

	clk *clock

	fibers  *pool[Fiber]
	ready   *intrusiveList
	current *Fiber

	driverGoroutine atomic.Uint64
	activeGoroutine atomic.Uint64

	critDepth int // reentrant critical-section counter (spec §4.2)

	timers    *ctq
	timerWake *FiberQueue
	timerH    Handle

	poller *fdPoller
	duplex *duplexQueue
	pool   *threadPool

	logger *logiface.Logger[*stumpy.Event]
	hang   *hangDetector

	closeOnce sync.Once
	doneCh    chan struct{}
	forceStop bool

	stats Stats
}

// Open allocates every fixed-size resource a Reactor needs (fiber pool,
// timer pool, epoll fd, thread pool) but does not start driving it -
// call [Reactor.Run] from the goroutine that should own the loop.
func Open(opts ...ReactorOption) (*Reactor, error) {
	o := resolveOptions(opts)

	r := &Reactor{
		opts:   o,
		clk:    newClock(),
		fibers: newPool[Fiber](o.MaxFibers),
		doneCh: make(chan struct{}),
	}
	r.ready = newIntrusiveList(r.fibers.Links())
	r.timers = newCTQ(o.TimerWheelBins, o.TimerWheelLevels, o.TimerResolution, o.MaxTimers)
	r.timerWake = r.NewFiberQueue()

	poller, err := newFDPoller()
	if err != nil {
		return nil, WrapError("reactor: open epoll", err)
	}
	r.poller = poller

	r.duplex = newDuplexQueue(o.DuplexQueueCapacity)
	r.pool = newThreadPool(o.ThreadPoolWorkers, r.duplex)

	if o.Logger != nil {
		r.logger = o.Logger
	} else {
		r.logger = disabledLogger()
	}

	r.hang = newHangDetector(o.HangDetectorGrace)

	if o.SetupSegfaultHandler {
		if err := selfCheckGuardPage(o.FiberStackSize); err != nil {
			_ = r.poller.close()
			return nil, WrapError("reactor: guard-page self-check", err)
		}
	}

	r.state.Store(ReactorRunning)
	return r, nil
}

// checkThread aborts the process if called by a goroutine other than
// whichever one currently holds the baton (spec §7's "wrong-thread
// call" programmer error; see doc.go).
func (r *Reactor) checkThread() {
	if getGoroutineID() != r.activeGoroutine.Load() {
		rawAbort("reactor method called from the wrong goroutine")
	}
}

func (r *Reactor) checkOpen() error {
	if r.state.Load() != ReactorRunning {
		return ErrReactorClosed
	}
	return nil
}

// Run spawns main as the first fiber and drives the loop until the
// reactor is closed or ctx is cancelled. It must be called exactly
// once, from the goroutine that is to become the reactor's driver.
func (r *Reactor) Run(ctx context.Context, main FiberEntry) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	r.driverGoroutine.Store(getGoroutineID())
	r.activeGoroutine.Store(r.driverGoroutine.Load())

	r.pool.start()
	go r.hang.run()

	if _, err := r.spawn(main, false); err != nil {
		return err
	}
	if _, err := r.spawnSpecial(r.timerCallbacksLoop); err != nil {
		return err
	}

	ctxDone := make(chan struct{})
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				_ = r.Close()
			case <-ctxDone:
			}
		}()
	}
	defer close(ctxDone)

	for {
		switch r.state.Load() {
		case ReactorClosed:
			return nil
		case ReactorClosing:
			r.teardown()
			return nil
		}
		r.stepOnce()
	}
}

// teardown runs once, on the driver goroutine, after the reactor has
// transitioned to ReactorClosing: it drains the ready queue and any
// already-due timers (unless Stop requested an immediate stop), then
// force-kills whatever fibers remain in pool-index order, then
// releases every resource (spec §12).
func (r *Reactor) teardown() {
	if !r.forceStop {
		r.drainForClose()
	}
	r.forceKillRemaining()
	r.finishClose()
}

// stepOnce runs one iteration of the main loop (spec §4.2): drain the
// ready queue, pop due timers onto it, poll for I/O readiness (bounded
// by the nearer of the next timer deadline or idleness), and drain the
// thread-pool's result queue.
func (r *Reactor) stepOnce() {
	r.hang.markAlive()

	for {
		i, ok := r.ready.PopFront()
		if !ok {
			break
		}
		r.runFiber(i)
	}

	r.duplex.drainResults(r)

	now := r.clk.Now()
	timeout := r.timers.TimeToNext(now)
	if r.timers.Pending() == 0 && r.ready.Empty() {
		timeout = FromDuration(r.opts.IdlePollInterval)
	}

	ready, err := r.poller.wait(timeout)
	if err == nil {
		for _, ev := range ready {
			r.dispatchIOEvent(ev)
		}
	}

	if r.timers.TimeToNext(r.clk.Now()) <= 0 {
		r.wakeAllFrom(r.timerWake.waiters)
	}
}

// runFiber transitions fiber i from READY to RUNNING, switches to it,
// and on return processes whatever resumeKind/state it left with.
func (r *Reactor) runFiber(i index) {
	f := r.fibers.At(i)
	f.state = FiberRunning
	prev := r.current
	r.current = f

	f.cont.ensureStarted(r, f)
	f.cont.switchTo()

	r.current = prev
	r.activeGoroutine.Store(r.driverGoroutine.Load())

	if f.state == FiberDone {
		r.finishFiber(i, f)
	}
}

// finishFiber releases a fiber slot once its goroutine has returned,
// waking any Join waiters first (spec §4.2/§4.6).
func (r *Reactor) finishFiber(i index, f *Fiber) {
	if f.hasTimer {
		r.timers.Cancel(f.wakeTimer)
		f.hasTimer = false
	}
	if f.joinWaiters != nil {
		f.joinWaiters.WakeAll(r)
	}
	if f.flags&FlagSpecial != 0 && f.pendingException != ErrFiberInterrupted {
		// Special fibers (timer-callbacks) loop forever; reaching here
		// any other way means their entry returned on its own, which is
		// a programmer error in this codebase, not a user-facing
		// condition. A deliberate Kill (reactor shutdown) is the one
		// sanctioned way a special fiber's goroutine unwinds.
		rawAbort("special fiber exited its loop")
		return
	}
	f.entry = nil
	f.pendingException = nil
	f.local = fiberLocalSlots{}
	f.incarnation++
	f.state = FiberFree
	r.fibers.Release(i)
	r.stats.FibersExited++
}

// wakeDriver interrupts a blocked epoll_wait from another goroutine
// (used by [Reactor.Close]/[Reactor.Stop], the one other deliberate
// cross-goroutine entry point besides the duplex queue; see doc.go).
func (r *Reactor) wakeDriver() {
	r.poller.wake()
}

// Spawn creates a new fiber running entry and places it on the ready
// queue (spec §3/§4.2). Must be called from the current baton holder.
func (r *Reactor) Spawn(entry FiberEntry) (Handle, error) {
	r.checkThread()
	return r.spawn(entry, false)
}

// SpawnPrioritized is Spawn, but places the new fiber at the head of
// the ready queue rather than the tail (spec's FlagPrioritized).
func (r *Reactor) SpawnPrioritized(entry FiberEntry) (Handle, error) {
	r.checkThread()
	return r.spawn(entry, true)
}

func (r *Reactor) spawn(entry FiberEntry, prioritized bool) (Handle, error) {
	if err := r.checkOpen(); err != nil {
		return Handle{}, err
	}
	i, f, err := r.fibers.Acquire()
	if err != nil {
		return Handle{}, &SpawnFailed{Cause: err}
	}
	f.permanentID = i
	f.incarnation++
	f.state = FiberReady
	f.flags = 0
	f.entry = entry
	f.pendingException = nil
	f.hasTimer = false
	f.joinWaiters = nil
	f.local = fiberLocalSlots{}
	if f.cont == nil {
		f.cont = newFiberContinuation()
	}
	if prioritized {
		f.flags |= FlagPrioritized
		r.ready.PushFront(i)
	} else {
		r.ready.PushBack(i)
	}
	r.stats.FibersSpawned++
	r.logEvent(SeverityDebug, "fiber spawned", "id", int(i), "incarnation", f.incarnation, "prioritized", prioritized)
	return Handle{id: i, incarnation: f.incarnation, owner: r}, nil
}

// spawnSpecial spawns a fiber flagged FlagSpecial (spec §3): one that
// is expected to loop forever for the life of the reactor (the
// timer-callbacks fiber) rather than exit and be recycled.
func (r *Reactor) spawnSpecial(entry FiberEntry) (Handle, error) {
	h, err := r.spawn(entry, false)
	if err != nil {
		return Handle{}, err
	}
	h.fiber().flags |= FlagSpecial
	return h, nil
}

// Current returns the fiber currently RUNNING, or nil if called from
// the driver's own context between switches.
func (r *Reactor) Current() *Fiber {
	r.checkThread()
	return r.current
}

// Yield suspends the current fiber and places it at the tail of the
// ready queue, resuming only once every other currently-ready fiber
// has had a turn (spec's cooperative yield point).
func (r *Reactor) Yield() error {
	r.checkThread()
	return r.suspendCurrentOnImpl(nil, 0, false, true)
}

// Sleep suspends the current fiber for d, resuming via the CTQ.
func (r *Reactor) Sleep(d time.Duration) error {
	r.checkThread()
	deadline := r.clk.Now().Add(d)
	err := r.suspendCurrentOn(nil, deadline, true)
	if err == ErrFiberTimeout {
		return nil
	}
	return err
}

// WaitForFD suspends the current fiber until fd becomes ready for dir,
// or timeout elapses (a non-positive timeout waits forever), per spec
// §4.4's wait(fd, dir, timeout) contract. Installing a second waiter on
// the same direction of the same fd before the first resolves is a
// logic error (ErrFDWaiterConflict).
func (r *Reactor) WaitForFD(fd int, dir IODirection, timeout time.Duration) error {
	r.checkThread()
	f := r.current
	if f == nil {
		panic(&programmerError{"reactor: WaitForFD called with no current fiber"})
	}
	h := Handle{id: f.permanentID, incarnation: f.incarnation, owner: r}
	if err := r.poller.setWaiter(fd, dir, fdWaiter{kind: waiterFiber, handle: h}); err != nil {
		return err
	}

	var (
		deadline    Cycles
		hasDeadline bool
	)
	if timeout > 0 {
		deadline = r.clk.Now().Add(timeout)
		hasDeadline = true
	}

	err := r.suspendCurrentOn(nil, deadline, hasDeadline)
	if err == ErrFiberTimeout {
		r.poller.clearWaiter(fd, dir)
	}
	return err
}

// dispatchIOEvent resolves one readiness notification into a fiber
// resume or callback invocation (spec §4.4's "translate each ready
// event into a resume of the waiting fiber (or callback)").
func (r *Reactor) dispatchIOEvent(ev ioEvent) {
	if ev.readable || ev.errored || ev.hungUp {
		r.fireWaiter(ev.fd, IORead)
	}
	if ev.writable || ev.errored || ev.hungUp {
		r.fireWaiter(ev.fd, IOWrite)
	}
}

func (r *Reactor) fireWaiter(fd int, dir IODirection) {
	w, ok := r.poller.takeWaiter(fd, dir)
	if !ok {
		return
	}
	switch w.kind {
	case waiterFiber, waiterOneShot:
		_ = r.Resume(w.handle)
	case waiterCallback:
		w.callback(dir)
	}
}

// Suspend parks the current fiber on q (or, if q is nil, simply off
// the ready queue with no wait list) until a matching wake call,
// ThrowIn, Kill, or (if hasDeadline) the deadline elapses.
func (r *Reactor) Suspend(q *FiberQueue, deadline Cycles, hasDeadline bool) error {
	r.checkThread()
	var list *intrusiveList
	if q != nil {
		list = q.waiters
	}
	return r.suspendCurrentOn(list, deadline, hasDeadline)
}

// suspendCurrentOn is the shared suspension path used by Sleep, Suspend,
// WaitForFD and every primitive in sync.go: the fiber is parked on list
// (or, if list is nil, on no list at all - woken solely by its timer,
// by [Reactor.Resume]/[Reactor.ThrowIn], or by the I/O bridge) until
// some other call moves it back onto the ready queue.
func (r *Reactor) suspendCurrentOn(list *intrusiveList, deadline Cycles, hasDeadline bool) error {
	return r.suspendCurrentOnImpl(list, deadline, hasDeadline, false)
}

// suspendCurrentOnImpl is suspendCurrentOn plus Yield's special case:
// requeueNow places the fiber straight back on the ready queue instead
// of parking it on list (which must be nil in that case), reproducing
// a cooperative round-robin reschedule rather than a real block.
func (r *Reactor) suspendCurrentOnImpl(list *intrusiveList, deadline Cycles, hasDeadline, requeueNow bool) error {
	f := r.current
	if f == nil {
		panic(&programmerError{"reactor: suspend called with no current fiber"})
	}
	if r.critDepth > 0 {
		panic(&programmerError{"reactor: suspension inside a critical section"})
	}

	f.state = FiberBlocked
	f.resumeKind = resumeNormal

	switch {
	case requeueNow:
		f.state = FiberReady
		r.ready.PushBack(f.permanentID)
	case list != nil:
		list.PushBack(f.permanentID)
	}

	if hasDeadline {
		id := f.permanentID
		cookie, err := r.timers.Insert(deadline, func() { r.wakeForTimeout(id) })
		if err != nil {
			removeWherever(r.fibers.Links(), f.permanentID)
			f.state = FiberRunning
			return err
		}
		f.wakeTimer = cookie
		f.hasTimer = true
	}

	f.cont.parkAndWait()
	r.activeGoroutine.Store(getGoroutineID())

	if f.hasTimer {
		r.timers.Cancel(f.wakeTimer)
		f.hasTimer = false
	}

	if f.killRequested {
		f.killRequested = false
		panic(ErrFiberInterrupted)
	}

	switch f.resumeKind {
	case resumeTimeout:
		return ErrFiberTimeout
	case resumeThrow:
		err := f.pendingException
		f.pendingException = nil
		return err
	default:
		return nil
	}
}

// wakeForTimeout is the CTQ callback installed by suspendCurrentOn: it
// runs on the timer-callbacks fiber (see timerCallbacksLoop) and moves
// the timed-out fiber back onto the ready queue with resumeKind set so
// it observes ErrFiberTimeout.
func (r *Reactor) wakeForTimeout(id index) {
	f := r.fibers.At(id)
	if f.state != FiberBlocked {
		return
	}
	f.hasTimer = false
	f.resumeKind = resumeTimeout
	f.state = FiberReady
	removeWherever(r.fibers.Links(), id)
	r.ready.PushBack(id)
}

// wakeOneFrom moves the longest-waiting fiber on list, if any, onto the
// ready queue with a normal resume. Returns false if list was empty.
func (r *Reactor) wakeOneFrom(list *intrusiveList) bool {
	i, ok := list.PopFront()
	if !ok {
		return false
	}
	f := r.fibers.At(i)
	f.resumeKind = resumeNormal
	f.state = FiberReady
	r.ready.PushBack(i)
	return true
}

// wakeAllFrom moves every fiber on list onto the ready queue.
func (r *Reactor) wakeAllFrom(list *intrusiveList) {
	for r.wakeOneFrom(list) {
	}
}

// Resume moves a specific suspended fiber back onto the ready queue
// (spec §4.2's explicit Resume operation, as opposed to a synchronization
// primitive's internal wake). No-op if h is stale or the fiber is not
// currently BLOCKED.
func (r *Reactor) Resume(h Handle) error {
	r.checkThread()
	f := h.fiber()
	if f == nil {
		return nil
	}
	if f.state != FiberBlocked {
		return nil
	}
	removeWherever(r.fibers.Links(), h.id)
	if f.hasTimer {
		r.timers.Cancel(f.wakeTimer)
		f.hasTimer = false
	}
	f.resumeKind = resumeNormal
	f.state = FiberReady
	r.ready.PushBack(h.id)
	return nil
}

// ThrowIn delivers err to a suspended fiber as the return value of its
// current suspension point (spec §7's generic exception path): the
// fiber resumes and the pending call (Sleep/Suspend/a sync-primitive
// wait) returns err instead of nil.
func (r *Reactor) ThrowIn(h Handle, err error) error {
	r.checkThread()
	if err == nil {
		panic(&programmerError{"reactor: ThrowIn requires a non-nil error"})
	}
	f := h.fiber()
	if f == nil {
		return nil
	}
	if f.state != FiberBlocked {
		return nil
	}
	removeWherever(r.fibers.Links(), h.id)
	if f.hasTimer {
		r.timers.Cancel(f.wakeTimer)
		f.hasTimer = false
	}
	f.resumeKind = resumeThrow
	f.pendingException = err
	f.state = FiberReady
	r.ready.PushBack(h.id)
	return nil
}

// Kill forcibly terminates a fiber: ErrFiberInterrupted is delivered by
// panicking through the fiber's goroutine rather than returning
// normally, so it force-unwinds through real Go defers no matter where
// the fiber currently is (spec §7) - caught only by the trampoline in
// switch.go, never escaping to the driver.
func (r *Reactor) Kill(h Handle) error {
	r.checkThread()
	f := h.fiber()
	if f == nil {
		return nil
	}
	r.logEvent(SeverityMeta, "fiber kill requested", "id", int(h.id), "state", f.state.String())
	switch f.state {
	case FiberDone, FiberFree:
		return nil
	case FiberRunning:
		// A fiber can only Kill itself while RUNNING (only one fiber
		// ever runs at a time) - unwind it right here, synchronously,
		// rather than scheduling a future panic.
		f.pendingException = ErrFiberInterrupted
		panic(ErrFiberInterrupted)
	case FiberBlocked:
		removeWherever(r.fibers.Links(), h.id)
		if f.hasTimer {
			r.timers.Cancel(f.wakeTimer)
			f.hasTimer = false
		}
		f.resumeKind = resumeThrow
		f.pendingException = ErrFiberInterrupted
		f.killRequested = true
		f.state = FiberReady
		r.ready.PushBack(h.id)
	case FiberReady:
		// Already on the ready queue (never started, or just woken);
		// the trampoline/suspendCurrentOn's kill check picks this up
		// the next time it actually runs.
		f.killRequested = true
	}
	return nil
}

// Join suspends the caller until h's fiber exits. Returns immediately
// if h is already stale (the fiber already exited and was recycled).
func (r *Reactor) Join(h Handle) error {
	r.checkThread()
	f := h.fiber()
	if f == nil {
		return nil
	}
	if f.joinWaiters == nil {
		f.joinWaiters = r.NewFiberQueue()
	}
	return f.joinWaiters.Wait(r)
}

// JoinAll suspends the caller until every handle's fiber has exited
// (SPEC_FULL's "wait for all" convenience, built from Join - not a new
// primitive). Handles are joined in order; a stale handle is a no-op,
// same as Join. Returns the first non-nil error, but still joins every
// remaining handle before returning so none are left dangling.
func (r *Reactor) JoinAll(handles ...Handle) error {
	r.checkThread()
	var first error
	for _, h := range handles {
		if err := r.Join(h); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// JoinAny suspends the caller until the first of handles' fibers exits,
// returning that handle. Built by spawning one short-lived monitor
// fiber per handle, each racing to report back through a shared
// FiberQueue - the same "thin composition over FiberQueue" idiom as
// JoinAll, not a new wait primitive. Monitor fibers for handles that
// haven't finished yet are left to exit naturally on their own Join
// return; they do no further work once the race is decided.
func (r *Reactor) JoinAny(handles ...Handle) (Handle, error) {
	r.checkThread()
	if len(handles) == 0 {
		return Handle{}, nil
	}
	done := r.NewFiberQueue()
	var (
		winner  Handle
		decided bool
		joinErr error
	)
	for _, h := range handles {
		h := h
		if _, err := r.Spawn(func(*Fiber) {
			err := r.Join(h)
			if !decided {
				decided = true
				winner = h
				joinErr = err
				done.WakeAll(r)
			}
		}); err != nil {
			return Handle{}, err
		}
	}
	if err := done.Wait(r); err != nil {
		return Handle{}, err
	}
	return winner, joinErr
}

// EnterCritical increments the reentrant critical-section counter
// (spec §4.2): while non-zero, any suspension call from this fiber is a
// programmer error, since critical sections exist specifically to
// bound stretches of code that must not interleave with any other
// fiber.
func (r *Reactor) EnterCritical() {
	r.checkThread()
	r.critDepth++
}

// LeaveCritical decrements the counter.
func (r *Reactor) LeaveCritical() {
	r.checkThread()
	if r.critDepth == 0 {
		panic(&programmerError{"reactor: LeaveCritical without matching EnterCritical"})
	}
	r.critDepth--
}

// InCriticalSection reports whether the current fiber is inside a
// critical section.
func (r *Reactor) InCriticalSection() bool { return r.critDepth > 0 }

// timerCallbacksLoop is the entry point of the special "timer
// callbacks" fiber (spec §3): it drains due CTQ entries and invokes
// their closures in ordinary fiber context, so a callback that itself
// needs to suspend (chain a timer, spawn more work) can use the normal
// suspension machinery instead of running on the bare driver goroutine.
func (r *Reactor) timerCallbacksLoop(f *Fiber) {
	for {
		for {
			cb, ok := r.timers.Pop(r.clk.Now())
			if !ok {
				break
			}
			cb()
		}
		_ = r.timerWake.Wait(r)
	}
}

// Stop requests the loop exit at the next opportunity, skipping the
// graceful drain step (every live fiber is force-killed immediately
// instead); safe to call from any goroutine, like [Reactor.Close] (the
// second deliberate cross-goroutine entry point alongside the duplex
// queue - see doc.go). [Reactor.Run]'s own goroutine performs the
// actual teardown once it next observes the state change; Stop only
// blocks the caller if called from a different goroutine.
func (r *Reactor) Stop() error {
	return r.requestClose(true)
}

// Close requests a graceful shutdown: stop accepting new Spawn calls,
// drain the ready queue and any already-expired timers until both are
// empty (or CloseDrainTimeout elapses), then force-kill whatever
// fibers remain (in pool-index order) before releasing epoll and pool
// resources (spec §12's close semantics). Safe to call from any
// goroutine.
//
// Calling Close from inside a fiber running on this very Reactor only
// requests the shutdown and returns immediately, rather than blocking
// (which would deadlock: the driver cannot tear anything down until
// this fiber yields control back to it) - the fiber, like every other
// live fiber, is force-killed shortly afterward once the driver
// regains control.
func (r *Reactor) Close() error {
	return r.requestClose(false)
}

func (r *Reactor) requestClose(force bool) error {
	if !r.state.CAS(ReactorRunning, ReactorClosing) {
		if getGoroutineID() != r.activeGoroutine.Load() && r.state.Load() == ReactorClosing {
			<-r.doneCh
		}
		return nil
	}
	r.forceStop = force
	r.wakeDriver()
	if getGoroutineID() != r.activeGoroutine.Load() {
		<-r.doneCh
	}
	return nil
}

// drainForClose runs on the driver goroutine once Run notices
// ReactorClosing: it keeps stepping the loop until the ready queue is
// empty and no pending timer is due, or CloseDrainTimeout elapses.
// Timers whose deadline is still in the future do not hold it open.
func (r *Reactor) drainForClose() {
	deadline := time.Now().Add(r.opts.CloseDrainTimeout)
	for (!r.ready.Empty() || (r.timers.Pending() > 0 && r.timers.TimeToNext(r.clk.Now()) <= 0)) && time.Now().Before(deadline) {
		r.stepOnce()
	}
}

// forceKillRemaining marks every still-live fiber slot, in pool-index
// order, for a kill and keeps stepping the loop until they have all
// unwound (or CloseDrainTimeout elapses a second time), so their Go
// defers still run and release whatever they hold.
func (r *Reactor) forceKillRemaining() {
	for i := 0; i < r.fibers.Cap(); i++ {
		idx := index(i)
		f := r.fibers.At(idx)
		switch f.state {
		case FiberFree, FiberDone:
			continue
		case FiberBlocked:
			removeWherever(r.fibers.Links(), idx)
			if f.hasTimer {
				r.timers.Cancel(f.wakeTimer)
				f.hasTimer = false
			}
			f.resumeKind = resumeThrow
			f.pendingException = ErrFiberInterrupted
			f.killRequested = true
			f.state = FiberReady
			r.ready.PushBack(idx)
		case FiberReady:
			f.killRequested = true
		}
	}
	deadline := time.Now().Add(r.opts.CloseDrainTimeout)
	for !r.ready.Empty() && time.Now().Before(deadline) {
		r.stepOnce()
	}
}

func (r *Reactor) finishClose() {
	r.closeOnce.Do(func() {
		r.logEvent(SeverityMeta, "reactor closed", "fibers_spawned", r.stats.FibersSpawned, "fibers_exited", r.stats.FibersExited)
		r.hang.stop()
		r.pool.stop()
		_ = r.poller.close()
		r.state.Store(ReactorClosed)
		close(r.doneCh)
	})
}

func disabledLogger() *logiface.Logger[*stumpy.Event] {
	return logiface.New[*stumpy.Event]()
}
