package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPlaceLevelChoosesLowestLevelThatFits is the direct regression
// test for the level-selection bug: a level-k comparison must check
// against phase's super-tick at k+1 (the span level k's own ring
// covers), not at k itself - the latter can never be true for any
// future tick at level 0, forcing every future timer one level too
// high. numBins=4 here, so level 0 covers ticks [0,4), level 1 covers
// [0,16), level 2 (the top, catch-all) covers [0,64).
func TestPlaceLevelChoosesLowestLevelThatFits(t *testing.T) {
	q := newCTQ(4, 3, 10*time.Nanosecond, 64)

	cases := []struct {
		dtick     uint64
		wantLevel int
	}{
		{0, 0},
		{1, 0},
		{3, 0},  // last tick still inside level 0's own span
		{4, 1},  // first tick that overflows level 0
		{15, 1}, // last tick still inside level 1's span
		{16, 2}, // first tick that overflows level 1, caught by the top level
		{63, 2}, // last tick the queue can represent at all
	}
	for _, c := range cases {
		level, ok := q.placeLevel(c.dtick)
		require.True(t, ok, "dtick=%d", c.dtick)
		assert.Equal(t, c.wantLevel, level, "dtick=%d", c.dtick)
	}
}

// TestPlaceLevelRejectsBeyondTopLevelSpan matches spec §8's boundary
// rule in spirit: the queue accepts a deadline up to the top level's
// own span and rejects the first tick beyond it.
func TestPlaceLevelRejectsBeyondTopLevelSpan(t *testing.T) {
	q := newCTQ(4, 3, 10*time.Nanosecond, 64)

	level, ok := q.placeLevel(63)
	require.True(t, ok)
	assert.Equal(t, 2, level)

	_, ok = q.placeLevel(64)
	assert.False(t, ok, "one tick beyond the top level's span must be rejected")
}

func TestInsertRejectsDeadlineBeyondCapacityWithErrTooFarAhead(t *testing.T) {
	q := newCTQ(4, 3, 10*time.Nanosecond, 64)

	_, err := q.Insert(Cycles(63*10), func() {})
	require.NoError(t, err)

	_, err = q.Insert(Cycles(64*10), func() {})
	assert.ErrorIs(t, err, ErrTooFarAhead)
}

// TestCTQCascadeFiresInDeadlineOrderWithinOneResolutionUnit mirrors the
// timer-cascade end-to-end scenario's deadline list (resolution=10,
// numBins=4). numLevels is widened from the scenario's stated 3 to 4:
// with 3 levels the top level's own span tops out at tick 63 (see
// TestPlaceLevelRejectsBeyondTopLevelSpan), which the scenario's own
// deadline list exceeds (830/10 = tick 83) regardless of which of
// spec.md's two stated deepest-level-capacity formulas is used - an
// inconsistency between spec.md's boundary rule and its own scenario
// data, not something this test should paper over by guessing. 4
// levels (capacity up to tick 255) keeps every listed deadline
// representable while preserving the scenario's cascade structure and
// its "insert out of order, then drain by repeated time_to_next" shape.
func TestCTQCascadeFiresInDeadlineOrderWithinOneResolutionUnit(t *testing.T) {
	const resolution = 10 * time.Nanosecond
	q := newCTQ(4, 4, resolution, 64)

	deadlines := []int64{0, 30, 41, 70, 71, 110, 111, 150, 151, 190, 191, 350, 351, 510, 511, 643, 670, 671, 830}
	insertOrder := []int{9, 0, 15, 3, 18, 6, 1, 12, 4, 17, 8, 2, 14, 5, 11, 7, 16, 10, 13}
	require.Len(t, insertOrder, len(deadlines))

	type firedEntry struct {
		deadline int64
		at       Cycles
	}
	var fired []firedEntry
	var now Cycles

	for _, idx := range insertOrder {
		d := deadlines[idx]
		_, err := q.Insert(Cycles(d), func() {
			fired = append(fired, firedEntry{deadline: d, at: now})
		})
		require.NoError(t, err, "deadline %d", d)
	}

	for iterations := 0; len(fired) < len(deadlines); iterations++ {
		require.Less(t, iterations, 10_000, "CTQ drain did not terminate")
		if cb, ok := q.Pop(now); ok {
			cb()
			continue
		}
		delay := q.TimeToNext(now)
		require.Greater(t, delay, Cycles(0), "TimeToNext must advance past an empty tick, not stall on it")
		now += delay
	}

	require.Len(t, fired, len(deadlines))
	for i := 1; i < len(fired); i++ {
		prevTick := fired[i-1].deadline / 10
		curTick := fired[i].deadline / 10
		assert.LessOrEqual(t, prevTick, curTick, "fired out of deadline-tick order at position %d", i)
	}
	for _, f := range fired {
		jitter := f.at - Cycles(f.deadline)
		assert.GreaterOrEqual(t, jitter, Cycles(0), "deadline %d fired before it was due", f.deadline)
		assert.Less(t, jitter, Cycles(resolution), "deadline %d missed the one-resolution-unit jitter bound", f.deadline)
	}
}

func TestTimeToNextSkipsEmptyBinsInsteadOfWakingEveryTick(t *testing.T) {
	q := newCTQ(4, 3, time.Millisecond, 8)

	// Nothing at ticks 0..4; the only pending timer is far out at tick 20
	// (needs to cascade through level 1). A correct TimeToNext must
	// report the delay straight to that tick, not to "the next tick
	// boundary" (which would be 1ms regardless of what's pending).
	_, err := q.Insert(Cycles(20*time.Millisecond), func() {})
	require.NoError(t, err)

	delay := q.TimeToNext(0)
	assert.Equal(t, Cycles(20*time.Millisecond), delay)
}
