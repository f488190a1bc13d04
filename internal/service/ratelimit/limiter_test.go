package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestLimiterRefills(t *testing.T) {
	clk := &clock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	l := NewWithClock(clk.now)

	assert.True(t, l.Allow("BTCUSDT", 2, 1))
	assert.True(t, l.Allow("BTCUSDT", 2, 1))
	assert.False(t, l.Allow("BTCUSDT", 2, 1), "bucket empty")
	assert.True(t, l.Allow("ETHUSDT", 2, 1), "keys are independent")

	clk.t = clk.t.Add(time.Second)
	assert.True(t, l.Allow("BTCUSDT", 2, 1))
	assert.False(t, l.Allow("BTCUSDT", 2, 1))
}

func TestLimiterZeroCapacityStillAllowsOne(t *testing.T) {
	clk := &clock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	l := NewWithClock(clk.now)
	assert.True(t, l.Allow("k", 0, 0))
	assert.False(t, l.Allow("k", 0, 0))
}

func TestLimiterSweepsIdleKeys(t *testing.T) {
	clk := &clock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	l := NewWithClock(clk.now)
	l.Allow("a", 5, 1)
	l.Allow("b", 5, 1)
	assert.Equal(t, 2, l.Len())

	clk.t = clk.t.Add(11 * time.Minute)
	l.Allow("a", 5, 1)
	assert.Equal(t, 1, l.Len())

	l.Forget("a")
	assert.Zero(t, l.Len())
}
