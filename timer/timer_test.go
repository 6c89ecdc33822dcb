package timer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func advanceN(c *Clock, n int) {
	for i := 0; i < n; i++ {
		c.Advance()
		Fire(c.Expired())
	}
}

func TestStartFiresAtExpiry(t *testing.T) {
	c := NewClock()
	var fired int
	var tm Timer
	c.Start(&tm, 5, func(any) { fired++ }, nil)

	advanceN(c, 4)
	require.Equal(t, 0, fired)

	c.Advance()
	Fire(c.Expired())
	require.Equal(t, 1, fired)
	require.False(t, tm.Scheduled())
}

func TestStopPreventsFire(t *testing.T) {
	c := NewClock()
	var fired int
	var tm Timer
	c.Start(&tm, 5, func(any) { fired++ }, nil)
	c.Stop(&tm)
	advanceN(c, 10)
	require.Equal(t, 0, fired)
}

func TestIdempotentRestart(t *testing.T) {
	// start; stop; start with an unchanged period schedules exactly one
	// expiry (spec.md §8 timer-idempotence law).
	c := NewClock()
	var fired int
	var tm Timer
	c.Start(&tm, 5, func(any) { fired++ }, nil)
	c.Stop(&tm)
	c.Start(&tm, 5, func(any) { fired++ }, nil)
	advanceN(c, 5)
	require.Equal(t, 1, fired)
}

func TestAscendingOrderFiring(t *testing.T) {
	c := NewClock()
	var order []int
	var t1, t2, t3 Timer
	c.Start(&t3, 3, func(any) { order = append(order, 3) }, nil)
	c.Start(&t1, 1, func(any) { order = append(order, 1) }, nil)
	c.Start(&t2, 2, func(any) { order = append(order, 2) }, nil)

	advanceN(c, 3)
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestTickWrapUsesOverflowList(t *testing.T) {
	c := NewClock()
	c.now = Tick(0xFFFFFFFE) // two ticks from wrap

	var fired bool
	var tm Timer
	// expiry = now + 5 wraps past max, must land in overflow list.
	c.Start(&tm, 5, func(any) { fired = true }, nil)
	require.True(t, tm.Scheduled())

	// Advance past the wrap boundary.
	c.Advance() // now = 0xFFFFFFFF
	Fire(c.Expired())
	require.False(t, fired)

	wrapped := c.Advance() // now = 0, wrap occurs, lists swap
	require.True(t, wrapped)
	Fire(c.Expired())
	require.False(t, fired)

	advanceN(c, 2) // now = 2, tm.expiry = 3
	require.False(t, fired)

	c.Advance() // now = 3
	Fire(c.Expired())
	require.True(t, fired)
}

func TestRestartReusesPeriod(t *testing.T) {
	c := NewClock()
	var fired int
	var tm Timer
	c.Start(&tm, 4, func(any) { fired++ }, nil)
	advanceN(c, 2)
	c.Restart(&tm)
	advanceN(c, 3)
	require.Equal(t, 0, fired)
	c.Advance()
	Fire(c.Expired())
	require.Equal(t, 1, fired)
}
