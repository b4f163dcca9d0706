package reactor

import (
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Options configures a [Reactor] at [Open] time (spec §6). The zero
// value is usable - every field has a documented default - following
// this codebase's functional-options idiom (see ReactorOption below,
// modeled on the teacher's LoopOption/loopOptionImpl pair).
type Options struct {
	// MaxFibers bounds the fiber pool. Defaults to 4096.
	MaxFibers int
	// FiberStackSize is the size, in bytes, of the guard-paged stack
	// region the Open-time guard-page self-check allocates. Fibers run
	// on goroutine stacks; no per-fiber region is allocated, so this
	// does not bound a fiber's stack. Defaults to 256KiB.
	FiberStackSize int
	// TimerResolution is the CTQ's level-0 granularity. Defaults to 1ms.
	TimerResolution time.Duration
	// ThreadPoolWorkers is the number of worker OS threads backing
	// DeferToThread. Zero disables DeferToThread entirely.
	ThreadPoolWorkers int
	// HangDetectorGrace is the maximum time the main loop may go without
	// an iteration before the hang detector aborts the process. Zero
	// disables the hang detector. Defaults to 60s.
	HangDetectorGrace time.Duration
	// SetupSegfaultHandler requests the guard-page self-check be run at
	// Open (a cheap diagnostic that the platform's SIGSEGV-to-panic path
	// behaves as expected); see stack_linux.go.
	SetupSegfaultHandler bool
	// Logger receives structured diagnostics (spec §7/§10.1). A nil
	// Logger installs a disabled logiface.Logger (calls are free).
	Logger *logiface.Logger[*stumpy.Event]
	// MaxTimers bounds the CTQ's timer-entry pool. Defaults to 4096.
	MaxTimers int
	// MaxDeferredTasks bounds the thread-pool's task pool and the
	// duplex-queue capacity (rounded up to a power of two). Defaults to
	// 1024.
	MaxDeferredTasks int
	// DuplexQueueCapacity overrides the duplex queue ring capacity
	// directly (power of two); if zero, derived from MaxDeferredTasks.
	DuplexQueueCapacity int
	// TimerWheelBins is the cascading time queue's per-level bin count.
	// Defaults to 64.
	TimerWheelBins int
	// TimerWheelLevels is the cascading time queue's level count.
	// Defaults to 4 (enough to represent roughly resolution*64^4 ahead).
	TimerWheelLevels int
	// IdlePollInterval bounds how long epoll_wait may block when
	// neither the ready queue nor the CTQ has any work pending, so the
	// loop periodically revisits Stop/Close requests even with nothing
	// else scheduled. Defaults to 1s.
	IdlePollInterval time.Duration
	// CloseDrainTimeout bounds how long Close's graceful-drain and
	// force-kill phases may each run before giving up and releasing
	// resources regardless (spec §12). Defaults to 5s.
	CloseDrainTimeout time.Duration
}

// ReactorOption configures Options; see the With* constructors below.
// The indirection (rather than exposing Options fields directly as
// variadic struct literals) matches the teacher's LoopOption pattern,
// letting future options be added without breaking callers.
type ReactorOption interface {
	apply(*Options)
}

type reactorOptionFunc func(*Options)

func (f reactorOptionFunc) apply(o *Options) { f(o) }

func WithMaxFibers(n int) ReactorOption {
	return reactorOptionFunc(func(o *Options) { o.MaxFibers = n })
}

func WithFiberStackSize(n int) ReactorOption {
	return reactorOptionFunc(func(o *Options) { o.FiberStackSize = n })
}

func WithTimerResolution(d time.Duration) ReactorOption {
	return reactorOptionFunc(func(o *Options) { o.TimerResolution = d })
}

func WithThreadPoolWorkers(n int) ReactorOption {
	return reactorOptionFunc(func(o *Options) { o.ThreadPoolWorkers = n })
}

func WithHangDetectorGrace(d time.Duration) ReactorOption {
	return reactorOptionFunc(func(o *Options) { o.HangDetectorGrace = d })
}

func WithSegfaultHandler(enabled bool) ReactorOption {
	return reactorOptionFunc(func(o *Options) { o.SetupSegfaultHandler = enabled })
}

func WithLogger(l *logiface.Logger[*stumpy.Event]) ReactorOption {
	return reactorOptionFunc(func(o *Options) { o.Logger = l })
}

func WithMaxTimers(n int) ReactorOption {
	return reactorOptionFunc(func(o *Options) { o.MaxTimers = n })
}

func WithMaxDeferredTasks(n int) ReactorOption {
	return reactorOptionFunc(func(o *Options) { o.MaxDeferredTasks = n })
}

func WithTimerWheel(bins, levels int) ReactorOption {
	return reactorOptionFunc(func(o *Options) { o.TimerWheelBins = bins; o.TimerWheelLevels = levels })
}

func WithIdlePollInterval(d time.Duration) ReactorOption {
	return reactorOptionFunc(func(o *Options) { o.IdlePollInterval = d })
}

func WithCloseDrainTimeout(d time.Duration) ReactorOption {
	return reactorOptionFunc(func(o *Options) { o.CloseDrainTimeout = d })
}

// resolveOptions applies defaults, then opts in order, mirroring the
// teacher's resolveLoopOptions.
func resolveOptions(opts []ReactorOption) Options {
	o := Options{
		MaxFibers:         4096,
		FiberStackSize:    defaultFiberStackSize,
		TimerResolution:   time.Millisecond,
		ThreadPoolWorkers: 0,
		HangDetectorGrace: 60 * time.Second,
		MaxTimers:         4096,
		MaxDeferredTasks:  1024,
		TimerWheelBins:    64,
		TimerWheelLevels:  4,
		IdlePollInterval:  time.Second,
		CloseDrainTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(&o)
	}
	if o.DuplexQueueCapacity == 0 {
		o.DuplexQueueCapacity = nextPow2(o.MaxDeferredTasks)
	}
	return o
}

func nextPow2(n int) int {
	if n <= 1 {
		return 2
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
