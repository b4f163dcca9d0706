package reactor

import "sync/atomic"

// ReactorState is the lifecycle state of a Reactor, modeled on the
// teacher's FastState: a lock-free atomic state machine rather than a
// mutex-guarded field, since it is read from Handle.Valid and similar
// hot paths that must not block the reactor thread.
type ReactorState uint32

const (
	ReactorUnopened ReactorState = iota
	ReactorRunning
	ReactorClosing
	ReactorClosed
)

func (s ReactorState) String() string {
	switch s {
	case ReactorUnopened:
		return "Unopened"
	case ReactorRunning:
		return "Running"
	case ReactorClosing:
		return "Closing"
	case ReactorClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

type reactorState struct {
	v atomic.Uint32
}

func (s *reactorState) Load() ReactorState { return ReactorState(s.v.Load()) }
func (s *reactorState) Store(v ReactorState) { s.v.Store(uint32(v)) }

func (s *reactorState) CAS(from, to ReactorState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
