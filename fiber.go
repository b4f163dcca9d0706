package reactor

import (
	"fmt"
)

// FiberState is the lifecycle state of a fiber record (spec §3).
type FiberState int32

const (
	FiberFree FiberState = iota
	FiberReady
	FiberRunning
	FiberBlocked
	FiberDone
)

func (s FiberState) String() string {
	switch s {
	case FiberFree:
		return "FREE"
	case FiberReady:
		return "READY"
	case FiberRunning:
		return "RUNNING"
	case FiberBlocked:
		return "BLOCKED"
	case FiberDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// FiberFlags are the per-fiber boolean attributes of spec §3.
type FiberFlags uint8

const (
	// FlagPrioritized is set by SpawnPrioritized, which queues the new
	// fiber at the head of the ready queue. Later wake-ups (Resume,
	// ThrowIn, Kill, timeouts, sync primitives) queue the fiber at the
	// tail whether or not the flag is set.
	FlagPrioritized FiberFlags = 1 << iota
	// FlagSpecial marks one of the three built-in fibers (main, idle,
	// timer-callbacks), which are rescheduled rather than freed on exit.
	FlagSpecial
	// FlagRequestBacktrace is a reserved flag bit; nothing in this
	// package sets or reads it, and the wrapper captures no backtrace.
	FlagRequestBacktrace
	// FlagHasPendingException is a reserved flag bit; nothing in this
	// package sets or reads it (a pending error is carried in the
	// record's pendingException field and resumeKind instead).
	FlagHasPendingException
)

// FiberEntry is the user-provided entry point for a spawned fiber. It
// receives the fiber it is running as, so it can call Yield/Sleep/etc.
// on itself without a separate "current fiber" lookup inside hot
// application code (the reactor still exposes [Reactor.Current] for
// code that doesn't have the value in scope).
type FiberEntry func(f *Fiber)

// fiberLocalSlots is the fixed-size fiber-local storage block mentioned
// in spec §3. Rather than a raw byte array indexed by unsafe offsets
// (which the retrieved corpus never does - it always prefers typed
// fields, e.g. the teacher's fixed fdInfo array in poller_linux.go), it
// is a small typed map, reset at spawn and created on the first Set;
// see [FiberLocalSlot].
type fiberLocalSlots struct {
	values map[*fiberLocalKey]any
}

// fiberLocalKey is the identity of a fiber-local slot; a *fiberLocalKey
// is comparable and unique per [NewFiberLocalSlot] call, standing in
// for the "slot index" spec §3 describes.
type fiberLocalKey struct{ name string }

// FiberLocalSlot is a typed accessor into a fiber's local storage block,
// supplementing spec §3's fiber_local_block with the get/set operations
// the distilled spec names the field but never exposes (see SPEC_FULL.md §12).
type FiberLocalSlot[T any] struct {
	key *fiberLocalKey
}

// NewFiberLocalSlot allocates a new fiber-local slot identity. name is
// only used for diagnostics.
func NewFiberLocalSlot[T any](name string) *FiberLocalSlot[T] {
	return &FiberLocalSlot[T]{key: &fiberLocalKey{name: name}}
}

// Get returns the current value of the slot for fiber f, or the zero
// value of T if unset.
func (s *FiberLocalSlot[T]) Get(f *Fiber) T {
	if f.local.values == nil {
		var zero T
		return zero
	}
	v, ok := f.local.values[s.key]
	if !ok {
		var zero T
		return zero
	}
	return v.(T)
}

// Set stores val into the slot for fiber f.
func (s *FiberLocalSlot[T]) Set(f *Fiber, val T) {
	if f.local.values == nil {
		f.local.values = make(map[*fiberLocalKey]any, 4)
	}
	f.local.values[s.key] = val
}

// FiberLocal returns a get/set pair bound to r's currently running
// fiber, sparing call sites the "slot.Get(r.Current())" boilerplate
// (SPEC_FULL §12's fiber-local convenience). Must be called from the
// reactor's own goroutine while a fiber is running.
func FiberLocal[T any](r *Reactor, slot *FiberLocalSlot[T]) (get func() T, set func(T)) {
	f := r.Current()
	return func() T { return slot.Get(f) },
		func(val T) { slot.Set(f, val) }
}

// Fiber is the fixed-size control block per fiber (spec §3). Instances
// live inside a [pool] and are recycled; external code never holds a
// *Fiber across a suspension safely - it holds a [Handle] instead.
type Fiber struct {
	// permanentID is the stable pool index; it never changes across
	// recycles. incarnation is bumped by exactly one on Acquire and one
	// on Release (spec's testable property: spawn->kill->spawn bumps
	// incarnation by exactly two), invalidating stale Handles.
	permanentID index
	incarnation uint64

	state FiberState
	flags FiberFlags

	entry FiberEntry
	name  string

	pendingException error

	local fiberLocalSlots

	stack *fiberStack

	// wakeTimer is the cookie of the one-shot timeout timer registered by
	// Suspend, if any; cancelled on normal resume.
	wakeTimer Cookie
	hasTimer  bool

	// killRequested is set by Kill and checked at the next point the
	// fiber's goroutine actually regains the baton (trampoline's
	// pre-entry check for a never-started fiber, suspendCurrentOn's
	// post-park check otherwise), where it is converted into a panic
	// that unwinds the fiber through real Go defers (spec §7).
	killRequested bool

	// resumeKind records why the last Suspend call returned, so Resume/
	// ThrowIn/the timer callback can all funnel through one unblock path
	// without racing to decide what error (if any) to deliver.
	resumeKind resumeKind

	// joinWaiters is threaded through the fiberQueue machinery so Join
	// can be implemented as "enqueue and suspend" against fiber exit.
	joinWaiters *fiberQueue

	// cont is the goroutine-side continuation used by the switch
	// primitive (switch.go); see that file for the baton-passing
	// rationale.
	cont *fiberContinuation
}

type resumeKind int

const (
	resumeNormal resumeKind = iota
	resumeTimeout
	resumeThrow
)

// Handle is a weak, incarnation-tagged reference to a fiber (spec §3).
// A Handle is Valid iff the pointed-to record's incarnation still
// matches the incarnation captured at handle-creation time.
type Handle struct {
	id          index
	incarnation uint64
	owner       *Reactor
}

// Valid reports whether h still refers to the fiber it was created for.
func (h Handle) Valid() bool {
	if h.owner == nil || h.id == nilIndex {
		return false
	}
	f := h.owner.fibers.At(h.id)
	return f.incarnation == h.incarnation && f.state != FiberFree
}

func (h Handle) String() string {
	return fmt.Sprintf("Handle(%d@%d)", h.id, h.incarnation)
}

// fiber returns the live *Fiber for h, or nil if invalid.
func (h Handle) fiber() *Fiber {
	if !h.Valid() {
		return nil
	}
	return h.owner.fibers.At(h.id)
}
