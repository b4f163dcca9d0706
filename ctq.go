package reactor

import "time"

// Cookie identifies a live timer registration in the cascading time
// queue, the same (index, incarnation) shape as [Handle] uses for
// fibers: a weak reference that Cancel can check for staleness without
// the caller needing to track whether the timer already fired.
type Cookie struct {
	id          index
	incarnation uint64
}

// Valid reports whether c was ever set (its id is not nil). It does not
// check the incarnation or whether the timer is still pending; Cancel
// does that.
func (c Cookie) Valid() bool { return c.id != nilIndex }

// timerEntry is the fixed-size record backing one CTQ registration
// (spec §4.3). Every entry is one-shot: there is no period field, and
// neither the CTQ nor scheduler.go's timer-callback fiber re-arms an
// entry after it fires.
type timerEntry struct {
	incarnation  uint64
	deadlineTick uint64 // deadline, in resolution-sized ticks since the clock anchor
	callback     func()
	active       bool
}

// ctq is the cascading time queue: numLevels rings of numBins bins
// each, granularity multiplying by numBins per level (spec §4.3). Every
// bin is an intrusiveList sharing one linkStore with the timer-entry
// pool's own free list, so moving an entry between bins, or cancelling
// it outright, is O(1) and allocation-free.
//
// Internally, everything is tracked in integer "ticks" of resolution
// rather than separately maintained base_time/end_time fields: phase is
// the tick number of the next bin due to be popped at level 0, and
// base_time[k]/end_time[k] (spec's terms) are always recoverable as
// derived quantities from phase and levelSpan rather than stored
// state that could drift out of sync with phase.
type ctq struct {
	numBins   int
	numLevels int
	resCycles Cycles // resolution, in Cycles (nanoseconds)

	phase uint64 // ticks already popped; level-0's current bin is phase itself

	entries *pool[timerEntry]
	bins    [][]*intrusiveList // bins[level][bin]

	// levelSpan[k] = numBins^k for k in [0, numLevels], precomputed since
	// it is read on every Insert/Pop/cascade. The one extra sentinel
	// entry at levelSpan[numLevels] is the top level's own span, used by
	// placeLevel to bound-check the highest level as a catch-all.
	levelSpan []uint64
}

func newCTQ(numBins, numLevels int, resolution time.Duration, maxTimers int) *ctq {
	if numBins < 2 {
		numBins = 2
	}
	if numLevels < 1 {
		numLevels = 1
	}
	if resolution <= 0 {
		resolution = time.Millisecond
	}

	q := &ctq{
		numBins:   numBins,
		numLevels: numLevels,
		resCycles: FromDuration(resolution),
		entries:   newPool[timerEntry](maxTimers),
		levelSpan: make([]uint64, numLevels+1),
	}

	span := uint64(1)
	for k := 0; k <= numLevels; k++ {
		q.levelSpan[k] = span
		span *= uint64(numBins)
	}

	links := q.entries.Links()
	q.bins = make([][]*intrusiveList, numLevels)
	for k := 0; k < numLevels; k++ {
		q.bins[k] = make([]*intrusiveList, numBins)
		for b := 0; b < numBins; b++ {
			q.bins[k][b] = newIntrusiveList(links)
		}
	}
	return q
}

// tickOf converts an absolute deadline into a tick count, rounding up,
// so an entry's tick boundary is never before its deadline. Together
// with Pop only advancing phase once now has reached the tick's full
// boundary, an entry fires no earlier than its deadline and at most one
// resolution unit after it (I3's jitter bound).
func (q *ctq) tickOf(deadline Cycles) uint64 {
	if deadline <= 0 {
		return 0
	}
	return (uint64(deadline) + uint64(q.resCycles) - 1) / uint64(q.resCycles)
}

// superTick returns floor(tick / levelSpan[k]), the index of the
// "super-bin" a tick falls into at level k.
func (q *ctq) superTick(tick uint64, level int) uint64 {
	return tick / q.levelSpan[level]
}

func (q *ctq) binIndex(tick uint64, level int) int {
	return int(q.superTick(tick, level) % uint64(q.numBins))
}

// placeLevel picks the lowest level whose end_time exceeds dtick (spec
// §4.3's Insert rule): level k covers every tick up to the end of its
// own numBins-bin ring, i.e. all dtick sharing phase's current level-
// (k+1) super-bin (the next span up). Checking superTick at k+1 - not
// at k itself - is what makes this "does it still fit once this level
// rolls over", rather than "is it in the exact same narrow window",
// which is what a level-k-vs-k comparison would test (and would place
// every future timer one level too high, since a level-0 comparison of
// that form can never be true for dtick > phase). The top level acts as
// an in-span catch-all via levelSpan's extra sentinel entry. Already-due
// ticks (dtick <= phase) always place at level 0's current bin.
func (q *ctq) placeLevel(dtick uint64) (level int, ok bool) {
	if dtick <= q.phase {
		return 0, true
	}
	for k := 0; k < q.numLevels; k++ {
		if q.superTick(dtick, k+1) == q.superTick(q.phase, k+1) {
			return k, true
		}
	}
	return 0, false
}

// Insert registers callback to fire at deadline (spec §4.3's Insert).
// Returns ErrTooFarAhead if deadline exceeds the queue's total
// representable span, i.e. does not fit in any level.
func (q *ctq) Insert(deadline Cycles, callback func()) (Cookie, error) {
	dtick := q.tickOf(deadline)
	level, ok := q.placeLevel(dtick)
	if !ok {
		return Cookie{}, ErrTooFarAhead
	}

	i, e, err := q.entries.Acquire()
	if err != nil {
		return Cookie{}, &TimerFull{Cause: err}
	}
	e.incarnation++
	e.deadlineTick = dtick
	e.callback = callback
	e.active = true

	b := q.binIndex(dtick, level)
	if dtick <= q.phase {
		b = q.binIndex(q.phase, 0)
	}
	q.bins[level][b].PushBack(i)

	return Cookie{id: i, incarnation: e.incarnation}, nil
}

// Cancel removes a pending timer. Returns false if c is stale (already
// fired, already cancelled, or from a different incarnation of the
// slot) - a no-op, not an error, matching the teacher's ClearTimeout
// tolerating a late/unknown id.
func (q *ctq) Cancel(c Cookie) bool {
	if !c.Valid() {
		return false
	}
	e := q.entries.At(c.id)
	if e.incarnation != c.incarnation || !e.active {
		return false
	}
	removeWherever(q.entries.Links(), c.id)
	e.active = false
	e.callback = nil
	q.entries.Release(c.id)
	return true
}

// Pop returns and removes one due timer's callback if now has reached
// its deadline, advancing the queue's internal clock (and cascading
// any levels that roll over) as a side effect. Returns ok=false if
// nothing is due yet; callers drain a queue's readiness by calling Pop
// repeatedly until it returns false (spec §4.2 step 2).
func (q *ctq) Pop(now Cycles) (callback func(), ok bool) {
	for {
		cur := q.bins[0][int(q.phase%uint64(q.numBins))]
		if i, has := cur.PopFront(); has {
			e := q.entries.At(i)
			cb := e.callback
			e.active = false
			e.callback = nil
			q.entries.Release(i)
			return cb, true
		}

		nextTickTime := Cycles((q.phase + 1) * uint64(q.resCycles))
		if now < nextTickTime {
			return nil, false
		}
		q.advanceOneTick()
	}
}

// TimeToNext returns the Cycles delay until the earliest pending timer's
// deadline (spec §4.3's time_to_next: "scan phases forward across
// levels, skipping empty bins"), for the reactor's epoll_wait timeout
// computation. If nothing is pending, it falls back to the next tick
// boundary. scheduler.go substitutes its own idle-poll interval only
// when nothing is pending and the ready queue is also empty; otherwise
// this fallback value is the poll timeout it uses.
func (q *ctq) TimeToNext(now Cycles) Cycles {
	tick, ok := q.nextDueTick()
	if !ok {
		next := Cycles((q.phase + 1) * uint64(q.resCycles))
		if next <= now {
			return 0
		}
		return next - now
	}
	deadline := Cycles(tick * uint64(q.resCycles))
	if deadline <= now {
		return 0
	}
	return deadline - now
}

// nextDueTick scans forward from the current phase, level by level and
// bin by bin, for the nearest non-empty bin, skipping empty ones (spec
// §4.3). A level-0 bin's offset from phase IS its exact due tick (each
// level-0 bin maps to exactly one dtick within the current window), but
// a bin at level k > 0 spans levelSpan[k] possible ticks, so its exact
// minimum deadlineTick has to be read off the entries actually sitting
// in it. Lower levels are scanned to exhaustion before any higher level
// is consulted, since placeLevel guarantees nothing in a higher level
// can have an earlier deadline than something already found lower down.
func (q *ctq) nextDueTick() (tick uint64, ok bool) {
	for k := 0; k < q.numLevels; k++ {
		base := q.superTick(q.phase, k)
		for o := 0; o < q.numBins; o++ {
			b := int((base + uint64(o)) % uint64(q.numBins))
			bin := q.bins[k][b]
			if bin.Empty() {
				continue
			}
			min, found := uint64(0), false
			bin.Each(func(i index) {
				dt := q.entries.At(i).deadlineTick
				if !found || dt < min {
					min, found = dt, true
				}
			})
			if found {
				return min, true
			}
		}
	}
	return 0, false
}

// advanceOneTick bumps phase by one resolution unit, cascading every
// level whose current super-bin just rolled over. Cascades are
// processed from the highest rolling-over level down to the lowest, so
// entries redistributed out of a high level land in bins that haven't
// been finalized for this tick yet (the classic hierarchical-wheel
// cascade order).
func (q *ctq) advanceOneTick() {
	newPhase := q.phase + 1

	maxLevel := 0
	for k := 1; k < q.numLevels; k++ {
		if newPhase%q.levelSpan[k] == 0 {
			maxLevel = k
		} else {
			break
		}
	}

	q.phase = newPhase

	for k := maxLevel; k >= 1; k-- {
		curSuper := newPhase / q.levelSpan[k]
		curBin := int(curSuper % uint64(q.numBins))
		bin := q.bins[k][curBin]
		for {
			i, has := bin.PopFront()
			if !has {
				break
			}
			e := q.entries.At(i)
			level, ok := q.placeLevel(e.deadlineTick)
			if !ok {
				// Should be unreachable: an entry already accepted at
				// level k must fit somewhere < k once phase enters its
				// level-k super-bin. Fall back to the current bin
				// rather than lose the timer.
				level = 0
			}
			q.bins[level][q.binIndex(e.deadlineTick, level)].PushBack(i)
		}
	}
}

// Pending reports the number of live (not yet fired, not cancelled)
// timers across every level.
func (q *ctq) Pending() int { return q.entries.Used() }

// LevelOccupancy returns, for each wheel level, the number of timer
// entries currently binned there - a snapshot for Reactor.Stats(), not
// something read on any hot path.
func (q *ctq) LevelOccupancy() []int {
	occ := make([]int, q.numLevels)
	for k := 0; k < q.numLevels; k++ {
		n := 0
		for b := 0; b < q.numBins; b++ {
			n += q.bins[k][b].Len()
		}
		occ[k] = n
	}
	return occ
}
