package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPollTimeoutMillis(t *testing.T) {
	cases := []struct {
		name string
		d    Cycles
		want int
	}{
		{"negative blocks forever", -1, -1},
		{"zero returns immediately", 0, 0},
		{"sub-millisecond rounds up", FromDuration(200 * time.Microsecond), 1},
		{"exact millisecond", FromDuration(time.Millisecond), 1},
		{"just over a millisecond rounds up", FromDuration(time.Millisecond + time.Nanosecond), 2},
		{"whole seconds", FromDuration(2 * time.Second), 2000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, pollTimeoutMillis(tc.d))
		})
	}
}

func TestIODirectionString(t *testing.T) {
	assert.Equal(t, "read", IORead.String())
	assert.Equal(t, "write", IOWrite.String())
}

func TestFdWaiterEmpty(t *testing.T) {
	var w fdWaiter
	assert.True(t, w.empty())
	w.kind = waiterFiber
	assert.False(t, w.empty())
}
