package reactor

// fiberContinuation is this module's context-switch primitive (spec
// §4.1's switch(from, to)), adapted to idiomatic Go.
//
// The spec describes switch as a hand-rolled assembly routine that
// saves/restores callee-saved registers across two private stacks. No
// retrieved example in this module's lineage implements that (Go's
// compiler and runtime own the goroutine stack; nothing in the corpus
// reaches for cgo or platform assembly to bypass it), so instead every
// fiber gets its own goroutine and a pair of unbuffered, one-shot
// rendezvous channels acting as a baton: at any instant only the
// goroutine currently holding the baton is unblocked, which reproduces
// the "exactly one fiber RUNNING" invariant (spec §4.2) without a
// second OS thread ever being scheduled concurrently with the reactor's.
//
// Each pool slot gets exactly one continuation, started once and
// reused across recycles (spec §4.1: "a recycled fiber slot reuses the
// same trampoline without a second set"): the goroutine loops, waiting
// for a resume signal, running whatever FiberEntry is currently
// installed on the record, and reporting back whether it suspended
// mid-run or exited.
type fiberContinuation struct {
	resume  chan struct{} // reactor -> fiber goroutine: run now
	suspend chan struct{} // fiber goroutine -> reactor: control returned
	started bool
}

func newFiberContinuation() *fiberContinuation {
	return &fiberContinuation{resume: make(chan struct{}), suspend: make(chan struct{})}
}

// ensureStarted launches the persistent goroutine for this slot, the
// first time the slot is used. r is needed so the wrapper can report
// exit back to the scheduler (§4.1's trampoline step (b)/(c)).
func (c *fiberContinuation) ensureStarted(r *Reactor, f *Fiber) {
	if c.started {
		return
	}
	c.started = true
	go c.trampoline(r, f)
}

// trampoline is the goroutine body: spec §4.1's "wrapper" that invokes
// the closure, and on normal return or unwound exception notifies the
// scheduler with the exit reason - except here it loops forever
// (rather than exiting) so the same goroutine can serve the slot's next
// incarnation.
func (c *fiberContinuation) trampoline(r *Reactor, f *Fiber) {
	for {
		<-c.resume
		r.activeGoroutine.Store(getGoroutineID())

		func() {
			defer func() {
				if rec := recover(); rec != nil {
					if pe, ok := rec.(*programmerError); ok {
						rawAbort(pe.msg)
					}
					f.pendingException = panicToError(rec)
				}
			}()
			if f.killRequested {
				f.killRequested = false
				panic(ErrFiberInterrupted)
			}
			entry := f.entry
			if entry != nil {
				entry(f)
			}
		}()

		f.state = FiberDone
		c.suspend <- struct{}{}
	}
}

// switchTo is the reactor-side half of switch(from, to): it hands the
// baton to the fiber's goroutine and blocks until that fiber suspends
// (at a suspension point) or exits. Must only be called from the
// reactor's own goroutine.
func (c *fiberContinuation) switchTo() {
	c.resume <- struct{}{}
	<-c.suspend
}

// parkAndWait is the fiber-side half: called from inside FiberEntry (or
// deeper) at a suspension point. It hands control back to the reactor
// and blocks until the reactor resumes this exact fiber again.
func (c *fiberContinuation) parkAndWait() {
	c.suspend <- struct{}{}
	<-c.resume
}

// panicToError normalizes a recovered panic value into an error, for
// the fiber's pendingException.
func panicToError(rec any) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return &programmerError{msg: "reactor: fiber panicked: " + toString(rec)}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if st, ok := v.(interface{ Error() string }); ok {
		return st.Error()
	}
	return "(unprintable panic value)"
}
