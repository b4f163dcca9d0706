package reactor

import (
	"sync/atomic"
	"time"
)

// Cycles is a monotonic high-resolution timestamp, in nanoseconds since
// an arbitrary epoch fixed at reactor open. The CTQ and timer code use
// Cycles throughout (spec §6); only external call sites see
// [time.Duration].
//
// Using nanoseconds-since-anchor (rather than a raw TSC read) keeps the
// core portable to any POSIX platform with a monotonic clock, at the
// cost of one subtraction per read; this mirrors the teacher's
// tickAnchor/tickElapsedTime split in its own event loop, which exists
// for exactly the same reason (a stable, testable monotonic basis).
type Cycles int64

// clock is a monotonic clock anchored once at creation. It is read on
// the reactor's goroutine (every main-loop iteration, Sleep and other
// timeouts, and the timer-callbacks fiber); the CTQ itself never reads
// it and takes now as a parameter. It is never reset.
type clock struct {
	anchor  time.Time
	elapsed atomic.Int64 // nanoseconds since anchor, updated by Now
	fixed   func() time.Time
}

func newClock() *clock {
	return &clock{anchor: time.Now(), fixed: time.Now}
}

// Now returns the current monotonic timestamp as Cycles.
func (c *clock) Now() Cycles {
	d := c.fixed().Sub(c.anchor)
	n := d.Nanoseconds()
	c.elapsed.Store(n)
	return Cycles(n)
}

// ToDuration converts a Cycles delta into a time.Duration.
func (c Cycles) ToDuration() time.Duration { return time.Duration(c) }

// FromDuration converts a time.Duration into a Cycles delta.
func FromDuration(d time.Duration) Cycles { return Cycles(d.Nanoseconds()) }

// Add returns c advanced by d.
func (c Cycles) Add(d time.Duration) Cycles { return c + FromDuration(d) }

// Sub returns the duration between two Cycles values (c - other).
func (c Cycles) Sub(other Cycles) time.Duration { return time.Duration(c - other) }
