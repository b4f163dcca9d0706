package reactor

// fiberStack is a guard-paged stack region of the shape a fiber stack
// has (fibers themselves run on goroutine stacks, see below; only the
// Open-time guard-page self-check allocates one): a contiguous mapping
// sized max(userRequested, pageSize) rounded up to a whole number of
// pages, plus one low guard page made inaccessible at creation (spec
// §4.1). The guard page sits at the low address; the stack (by
// convention) grows toward it.
//
// Platform note: this module targets POSIX + x86-64 only (spec §1's
// Non-goals explicitly exclude broader portability), so the mapping and
// protection primitives are Linux-only (stack_linux.go), matching the
// I/O bridge's epoll-only scope.
//
// Go cannot run arbitrary goroutine code on a caller-managed stack
// without per-platform assembly the source corpus does not provide (no
// retrieved example implements a raw register-level context switch in
// Go). Rather than fabricate unsafe assembly, the fiber engine here
// keeps the guard-paged mapping as a first-class, independently
// testable resource (DESIGN.md documents the tradeoff): it is mmap'd
// and mprotect'd exactly as spec'd, and [fiberStack.touchGuard] lets
// tests and diagnostics demonstrate the deterministic-fault property
// (spec invariant I6) directly against the mapping, while the actual
// fiber body executes on a dedicated goroutine synchronized through the
// baton in switch.go. See switch.go's doc comment for the execution
// model this implies.
type fiberStack struct {
	region    []byte // the whole mapping, including the guard page
	guardLen  int    // bytes of region[0:guardLen] that are PROT_NONE
	usableLen int     // bytes of region[guardLen:] available to the fiber
}

// defaultFiberStackSize is used when Options.FiberStackSize is zero.
const defaultFiberStackSize = 256 * 1024

// usable returns the writable portion of the stack, above the guard
// page.
func (s *fiberStack) usable() []byte {
	return s.region[s.guardLen:]
}
