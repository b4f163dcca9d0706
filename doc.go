// Package reactor implements a single-threaded cooperative multitasking
// core: a reactor that multiplexes many lightweight fibers on one OS
// thread, coordinates them with wall-clock time through a cascading
// time queue (a hierarchical timer wheel), and integrates with epoll so
// fibers can block on file descriptors without blocking the thread. A
// small thread pool lets fibers defer genuinely blocking calls to
// worker OS threads and await the result as if it were local.
//
// # Architecture
//
// The reactor ([Reactor]) runs its main loop on one goroutine pinned to
// an OS thread (via runtime.LockOSThread), and exactly one fiber is
// ever RUNNING at a time. Each fiber slot gets its own dedicated
// goroutine (switch.go), but control is handed back and forth through
// an unbuffered "baton" channel pair so that, despite the extra
// goroutines, only the goroutine currently holding the baton - the
// driver loop between switches, or whichever fiber is RUNNING - ever
// touches reactor state; every other fiber goroutine is parked
// unconditionally on a channel receive. Fibers ([Fiber], referenced
// externally via [Handle]) are switched cooperatively at explicit
// suspension points: [Reactor.Suspend], [Reactor.Sleep],
// [Reactor.Yield], a wait on one of the synchronization primitives in
// sync.go, [Reactor.DeferToThread], or fiber return. There is no
// preemption.
//
// Fiber records, timer entries, and deferred-task records are each
// allocated once from a bounded, fixed-slot pool ([pool]) and recycled;
// handles are (index, incarnation) pairs rather than raw pointers, so a
// stale handle is detectable in O(1) (see [Handle.Valid]).
//
// Time is driven by a cascading time queue ([ctq]), an O(1) amortized
// insert/pop timer wheel with multi-level cascading. I/O readiness is
// bridged through epoll ([fdPoller]). Blocking work crosses to a pool of
// worker OS threads through a pair of lock-free ring buffers ([duplexQueue]).
//
// # Thread safety
//
// Everything that belongs to the reactor (fiber pool, timer pool, ready
// set, CTQ) is touched only by whichever goroutine currently holds the
// baton, and every [Reactor] method other than [Reactor.Close] and
// [Reactor.Stop] is a "wrong-thread call" programmer error (it aborts,
// see diagnostic.go) if invoked by a goroutine that doesn't. Concretely
// that means: the driver loop's own goroutine
// between switches, and the goroutine of whichever fiber is currently
// RUNNING - never an idle fiber goroutine parked on its baton channel,
// and never an unrelated goroutine. Spawning a fiber and calling
// [Reactor.Resume]/[Reactor.ThrowIn]/[Reactor.Kill] from inside another
// fiber is the normal, supported usage; calling them from a goroutine
// that never received the baton is not. There are two deliberate
// crossing points. [Reactor.Close] and [Reactor.Stop] may be called from
// any goroutine: they flip the lifecycle state, wake the driver, and
// wait for it to finish the teardown. The thread pool's worker OS
// threads touch only the duplex queue's slots, under the
// phase-handshake protocol documented in duplex.go, and never
// reactor-owned memory directly.
package reactor
