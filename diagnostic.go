package reactor

import (
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/floater"
)

// abortOnce guards rawAbort so a crash triggered while already crashing
// (e.g. the hang detector firing during unwind of an earlier abort)
// doesn't recurse or interleave writes.
var abortOnce sync.Once

// rawAbort is the process-termination path for programmer errors the
// spec treats as unrecoverable (wrong-thread calls, a programmerError
// panic inside a fiber, a special fiber leaving its loop, a hung main
// loop past HangDetectorGrace): it bypasses logiface
// entirely and writes straight to fd 2, because by the time one of these
// fires the reactor's own state - and therefore anything logiface's
// formatting might touch - can no longer be trusted. See spec §7's
// "fatal diagnostics" carve-out.
func rawAbort(msg string) {
	abortOnce.Do(func() {
		line := "reactor: fatal: " + msg + "\n"
		_, _ = os.Stderr.WriteString(line)
		var buf [16384]byte
		n := runtime.Stack(buf[:], true)
		_, _ = os.Stderr.Write(buf[:n])
	})
	os.Exit(2)
}

// getGoroutineID returns the current goroutine's numeric ID, parsed out
// of runtime.Stack's "goroutine N [...]" header - the same trick the
// teacher's event loop uses to detect off-loop calls, since Go exposes
// no public API for it.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// hangDetector watches the main loop's iteration counter from a
// dedicated goroutine and aborts the process if it stalls for longer
// than Options.HangDetectorGrace - a fiber that never suspends violates
// the cooperative-scheduling contract (spec §1 Non-goals: no
// preemption), and the reactor has no way to interrupt it, so the only
// recourse is to fail loudly rather than hang forever. Firing is
// rate-limited through go-catrate so a detector flapping near the grace
// boundary doesn't flood stderr.
type hangDetector struct {
	grace    time.Duration
	tick     *atomicCounter
	limiter  *catrate.Limiter
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newHangDetector(grace time.Duration) *hangDetector {
	return &hangDetector{
		grace:   grace,
		tick:    &atomicCounter{},
		limiter: catrate.NewLimiter(map[time.Duration]int{time.Minute: 1}),
		stopCh:  make(chan struct{}),
	}
}

func (h *hangDetector) markAlive() { h.tick.incr() }

func (h *hangDetector) run() {
	if h.grace <= 0 {
		return
	}
	ticker := time.NewTicker(h.grace / 4)
	defer ticker.Stop()
	var lastSeen uint64
	var lastChange time.Time
	for {
		select {
		case <-h.stopCh:
			return
		case now := <-ticker.C:
			seen := h.tick.load()
			if seen != lastSeen {
				lastSeen = seen
				lastChange = now
				continue
			}
			if lastChange.IsZero() {
				lastChange = now
				continue
			}
			if now.Sub(lastChange) < h.grace {
				continue
			}
			if _, ok := h.limiter.Allow("hang"); !ok {
				continue
			}
			rawAbort("main loop made no progress for " + formatDuration(now.Sub(lastChange)))
		}
	}
}

func (h *hangDetector) stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// atomicCounter is a tiny incrementing counter over sync/atomic.Uint64:
// the driver goroutine increments it and the hang detector's goroutine
// reads it.
type atomicCounter struct {
	n atomic.Uint64
}

func (c *atomicCounter) incr()        { c.n.Add(1) }
func (c *atomicCounter) load() uint64 { return c.n.Load() }

// formatDuration renders a duration as decimal seconds using floater's
// exact-rational formatting rather than fmt's float path, consistent
// with this codebase's avoidance of float64 rounding error in anything
// that ends up in a diagnostic or log line.
func formatDuration(d time.Duration) string {
	secs := d / time.Second
	nanos := d % time.Second
	rat, ok := floater.UnitsNanosToRat(int64(secs), int32(nanos))
	if !ok {
		return strconv.FormatFloat(d.Seconds(), 'f', 3, 64) + "s"
	}
	return floater.FormatDecimalRat(rat, 3, 0) + "s"
}
