//go:build linux

package reactor

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// reactorSignals is every signal spec §4.5 names as "typically
// reactor-relevant": the ones a worker OS thread must never field,
// since only the reactor's own thread (epoll_wait) should observe
// them. Real-time signals (SIGRTMIN..SIGRTMAX) are added in
// blockReactorSignals itself, since their range is libc-defined rather
// than a fixed constant in this package's syscall bindings.
var reactorSignals = []int{
	int(unix.SIGHUP),
	int(unix.SIGINT),
	int(unix.SIGTERM),
	int(unix.SIGALRM),
	int(unix.SIGCHLD),
	int(unix.SIGPIPE),
}

// blockReactorSignals locks the calling goroutine to its current OS
// thread (so the Go runtime never migrates it to an unmasked thread
// mid-task) and masks reactorSignals plus the whole real-time range on
// that thread. Must be called once, at the top of a worker's pull
// loop, before it does any other work.
func blockReactorSignals() {
	runtime.LockOSThread()
	var set unix.Sigset_t
	for _, sig := range reactorSignals {
		addSignal(&set, sig)
	}
	const rtmin, rtmax = 34, 64 // SIGRTMIN..SIGRTMAX on Linux/x86-64
	for sig := rtmin; sig <= rtmax; sig++ {
		addSignal(&set, sig)
	}
	_ = unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil)
}

func addSignal(set *unix.Sigset_t, sig int) {
	if sig <= 0 {
		return
	}
	bit := uint(sig - 1)
	set.Val[bit/64] |= 1 << (bit % 64)
}
