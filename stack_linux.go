//go:build linux

package reactor

import (
	"fmt"
	"os"
	"runtime/debug"

	"golang.org/x/sys/unix"
)

var pageSize = os.Getpagesize()

// newFiberStack mmaps a fresh stack region of at least size bytes
// (rounded up to a whole number of pages) plus one low guard page, and
// mprotects the guard page to PROT_NONE.
func newFiberStack(size int) (*fiberStack, error) {
	if size <= 0 {
		size = defaultFiberStackSize
	}
	usable := roundUpPage(size)
	total := usable + pageSize

	region, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("reactor: mmap fiber stack: %w", err)
	}

	if err := unix.Mprotect(region[:pageSize], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(region)
		return nil, fmt.Errorf("reactor: mprotect guard page: %w", err)
	}

	return &fiberStack{region: region, guardLen: pageSize, usableLen: usable}, nil
}

// release unmaps the stack region. The guard page's protection is
// irrelevant once unmapped.
func (s *fiberStack) release() error {
	if s.region == nil {
		return nil
	}
	err := unix.Munmap(s.region)
	s.region = nil
	return err
}

// touchGuard deliberately reads byte offset off (0 <= off < guardLen)
// of the guard page and returns it. It does not recover: Go's runtime
// converts the resulting SIGSEGV into a runtime.Error panic only on a
// goroutine that has called debug.SetPanicOnFault(true); on any other
// goroutine the fault terminates the process. This demonstrates
// invariant I6 (spec §8): "any store below the stack top of a fiber
// faults deterministically." Callers (the Open-time guard-page
// self-check below) must enable SetPanicOnFault and recover it
// themselves. It is kept out of line so the read cannot be optimized
// away when the caller discards the result. Never called from fiber
// dispatch.
//
//go:noinline
func (s *fiberStack) touchGuard(off int) byte {
	return s.region[off]
}

// selfCheckGuardPage is Options.SetupSegfaultHandler's Open-time
// diagnostic: it allocates a throwaway stack of the configured size and
// confirms that reading its guard page actually faults (and that Go's
// runtime turns that fault into a recoverable panic rather than
// silently succeeding or killing the process), so a misconfigured
// kernel or a platform where guard pages don't behave as expected is
// caught at startup instead of producing a baffling corruption report
// from inside some fiber's stack overflow, much later.
func selfCheckGuardPage(stackSize int) (err error) {
	stack, allocErr := newFiberStack(stackSize)
	if allocErr != nil {
		return fmt.Errorf("reactor: guard-page self-check: %w", allocErr)
	}
	defer func() { _ = stack.release() }()

	faulted := make(chan bool, 1)
	go func() {
		defer func() {
			faulted <- recover() != nil
		}()
		debug.SetPanicOnFault(true)
		_ = stack.touchGuard(0)
	}()

	if !<-faulted {
		return fmt.Errorf("reactor: guard-page self-check: read of guard page did not fault")
	}
	return nil
}

func roundUpPage(n int) int {
	if n%pageSize == 0 {
		return n
	}
	return (n/pageSize + 1) * pageSize
}
