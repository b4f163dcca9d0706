//go:build linux

package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// maxPolledFDs bounds direct-array indexing of fd contexts, mirroring
// the teacher's fixed fds[maxFDs]fdInfo array rather than a map - a
// descriptor above this is rejected at registration time.
const maxPolledFDs = 65536

// fdContext holds both direction slots for one registered descriptor
// (spec §4.4's per-FD context).
type fdContext struct {
	waiters [2]fdWaiter
	active  bool
}

// fdPoller is the epoll-backed I/O readiness bridge (spec §4.4). It
// owns one epoll descriptor plus a self-pipe (here, an eventfd) used to
// interrupt a blocked wait from another goroutine - the one mechanism
// [Reactor.Close]/[Reactor.Stop] use to unblock the driver (see
// doc.go's thread-safety notes and wakeDriver in scheduler.go).
type fdPoller struct {
	epfd    int
	wakeFd  int
	eventBuf [256]unix.EpollEvent

	mu  sync.RWMutex
	fds [maxPolledFDs]fdContext

	closed bool
}

// newFDPoller creates the epoll instance and registers the wake
// eventfd, grounded on the teacher's FastPoller.Init plus its
// wakeup_linux.go createWakeFd/RegisterFD sequence.
func newFDPoller() (*fdPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}

	p := &fdPoller{epfd: epfd, wakeFd: wakeFd}

	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, ev); err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(epfd)
		return nil, err
	}

	return p, nil
}

// setWaiter installs w into fd's slot for dir. Installing a second
// fiber or callback waiter onto an already-occupied slot is the logic
// error spec §4.4 calls out ("asserted") - reported here as an error
// rather than a process abort, since it is reachable from ordinary
// misuse of the public API, not only an internal invariant violation.
func (p *fdPoller) setWaiter(fd int, dir IODirection, w fdWaiter) error {
	if fd < 0 || fd >= maxPolledFDs {
		return ErrFDOutOfRange
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx := &p.fds[fd]
	if !ctx.waiters[dir].empty() {
		return ErrFDWaiterConflict
	}

	wasActive := ctx.active
	ctx.waiters[dir] = w
	ctx.active = true

	events := p.interestMask(ctx)
	ev := &unix.EpollEvent{Events: events, Fd: int32(fd)}
	op := unix.EPOLL_CTL_MOD
	if !wasActive {
		op = unix.EPOLL_CTL_ADD
	}
	if err := unix.EpollCtl(p.epfd, op, fd, ev); err != nil {
		ctx.waiters[dir] = fdWaiter{}
		if !wasActive {
			ctx.active = false
		}
		return err
	}
	return nil
}

// clearWaiter empties fd's slot for dir, e.g. after a timeout cancels
// a pending wait or the caller explicitly unregisters.
func (p *fdPoller) clearWaiter(fd int, dir IODirection) {
	if fd < 0 || fd >= maxPolledFDs {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ctx := &p.fds[fd]
	ctx.waiters[dir] = fdWaiter{}
	if ctx.waiters[0].empty() && ctx.waiters[1].empty() {
		ctx.active = false
	}
}

// interestMask computes edge-triggered epoll interest for whichever
// directions currently have a waiter installed.
func (p *fdPoller) interestMask(ctx *fdContext) uint32 {
	var mask uint32 = unix.EPOLLET
	if !ctx.waiters[IORead].empty() {
		mask |= unix.EPOLLIN
	}
	if !ctx.waiters[IOWrite].empty() {
		mask |= unix.EPOLLOUT
	}
	return mask
}

// wait blocks in epoll_wait for up to timeout (negative means forever,
// zero returns immediately), translating whatever becomes ready into
// ioEvents. EINTR is treated as success with zero events (spec §4.4).
func (p *fdPoller) wait(timeout Cycles) ([]ioEvent, error) {
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], pollTimeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	events := make([]ioEvent, 0, n)
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		if fd == p.wakeFd {
			p.drainWake()
			continue
		}
		raw := p.eventBuf[i].Events
		events = append(events, ioEvent{
			fd:       fd,
			readable: raw&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			writable: raw&unix.EPOLLOUT != 0,
			errored:  raw&unix.EPOLLERR != 0,
			hungUp:   raw&unix.EPOLLHUP != 0,
		})
	}
	return events, nil
}

func (p *fdPoller) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wakeFd, buf[:])
		if err != nil {
			break
		}
	}
}

// wake interrupts a blocked wait from another goroutine.
func (p *fdPoller) wake() {
	buf := make([]byte, 8)
	buf[7] = 1
	_, _ = unix.Write(p.wakeFd, buf)
}

// takeWaiter removes and returns fd's waiter for dir, if any, clearing
// the slot (and de-registering from epoll entirely if both directions
// are now empty) - called by dispatchIOEvent once a direction fires,
// since the bridge's registration model is one-shot per spec §4.4's
// wait contract ("on epoll wake the bridge resumes the stored handle
// and clears the slot").
func (p *fdPoller) takeWaiter(fd int, dir IODirection) (fdWaiter, bool) {
	if fd < 0 || fd >= maxPolledFDs {
		return fdWaiter{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ctx := &p.fds[fd]
	w := ctx.waiters[dir]
	if w.empty() {
		return fdWaiter{}, false
	}
	ctx.waiters[dir] = fdWaiter{}
	if ctx.waiters[0].empty() && ctx.waiters[1].empty() {
		ctx.active = false
		_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	} else {
		ev := &unix.EpollEvent{Events: p.interestMask(ctx), Fd: int32(fd)}
		_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev)
	}
	return w, true
}

// close releases the epoll descriptor and the wake eventfd. Per spec
// §4.4, registered FDs are not individually EPOLL_CTL_DEL'd first -
// closing the epoll fd discards them all at once.
func (p *fdPoller) close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	_ = unix.Close(p.wakeFd)
	return unix.Close(p.epfd)
}
