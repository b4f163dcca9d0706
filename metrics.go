package reactor

// Stats is a point-in-time snapshot of reactor occupancy. Stats() builds
// it at call time from the live pools and queues (plus the lifetime
// spawn/exit counters kept on the Reactor). There is no locking: it is
// subject to the same wrong-goroutine check as every other Reactor
// method, so only the baton holder can take a snapshot.
//
// Unlike the teacher's equivalent (eventloop.Metrics), this carries no
// latency percentile estimator - see DESIGN.md for why P-Square has no
// home here.
type Stats struct {
	// FibersSpawned and FibersExited are lifetime (not in-flight)
	// counters, incremented by Spawn and the fiber exit path.
	FibersSpawned uint64
	FibersExited  uint64

	// FiberPoolUsed/FiberPoolCap describe the fixed fiber arena.
	FiberPoolUsed int
	FiberPoolCap  int

	// ReadyLen is the number of fibers currently on the ready queue.
	ReadyLen int

	// TimerPoolUsed/TimerPoolCap describe the CTQ's fixed entry arena.
	TimerPoolUsed int
	TimerPoolCap  int

	// TimerLevelOccupancy[k] is the number of timer entries currently
	// binned at wheel level k (index 0 is the finest-resolution level).
	TimerLevelOccupancy []int

	// TaskPoolUsed/TaskPoolCap describe the duplex queue's fixed task
	// arena (DeferToThread in flight + awaiting drain).
	TaskPoolUsed int
	TaskPoolCap  int
}

// Stats returns a snapshot of current reactor occupancy. Must be called
// from the reactor's own goroutine, same as every other Reactor method
// (spec §9: "only the reactor goroutine touches these fields").
func (r *Reactor) Stats() Stats {
	r.checkThread()
	return Stats{
		FibersSpawned:       r.stats.FibersSpawned,
		FibersExited:        r.stats.FibersExited,
		FiberPoolUsed:       r.fibers.Used(),
		FiberPoolCap:        r.fibers.Cap(),
		ReadyLen:            r.ready.Len(),
		TimerPoolUsed:       r.timers.Pending(),
		TimerPoolCap:        r.timers.entries.Cap(),
		TimerLevelOccupancy: r.timers.LevelOccupancy(),
		TaskPoolUsed:        r.duplex.tasks.Used(),
		TaskPoolCap:         r.duplex.tasks.Cap(),
	}
}
