package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptOutCache_UnknownByDefault(t *testing.T) {
	c := NewOptOutCache("comp-1", 1000, 1000, 0.01)
	assert.Equal(t, StatusUnknown, c.CheckOptOutStatus("5511999990000"))
}

func TestOptOutCache_MarkOptedOut(t *testing.T) {
	c := NewOptOutCache("comp-1", 1000, 1000, 0.01)
	c.MarkOptedOut("5511999990000")

	assert.Equal(t, StatusMaybeOptedOut, c.CheckOptOutStatus("5511999990000"))
	assert.Equal(t, StatusUnknown, c.CheckOptOutStatus("5511999990001"))
}

func TestOptOutCache_MarkActive(t *testing.T) {
	c := NewOptOutCache("comp-1", 1000, 1000, 0.01)
	c.MarkActive("5511999990000")

	assert.Equal(t, StatusMaybeActive, c.CheckOptOutStatus("5511999990000"))
}

func TestOptOutCache_OptedOutWinsOverActive(t *testing.T) {
	c := NewOptOutCache("comp-1", 1000, 1000, 0.01)
	c.MarkActive("5511999990000")
	c.MarkOptedOut("5511999990000")

	// Opted-out filter is consulted first so suppression errs on the safe side.
	assert.Equal(t, StatusMaybeOptedOut, c.CheckOptOutStatus("5511999990000"))
}

func TestOptOutCache_TenantIsolation(t *testing.T) {
	c1 := NewOptOutCache("comp-1", 1000, 1000, 0.01)
	c2 := NewOptOutCache("comp-2", 1000, 1000, 0.01)

	c1.MarkOptedOut("5511999990000")
	assert.Equal(t, StatusUnknown, c2.CheckOptOutStatus("5511999990000"))
}

func TestOptOutCache_Stats(t *testing.T) {
	c := NewOptOutCache("comp-1", 1000, 1000, 0.01)

	for i := 0; i < 5; i++ {
		c.MarkOptedOut(fmt.Sprintf("551199999%04d", i))
	}
	for i := 0; i < 5; i++ {
		c.CheckOptOutStatus(fmt.Sprintf("551199999%04d", i))
	}
	c.CheckOptOutStatus("5500000000000")
	c.RecordFalsePositive("optedout")

	stats := c.GetStats()
	assert.Equal(t, int64(5), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.FalsePositives)
	assert.InDelta(t, 5.0/6.0, stats.HitRate, 0.001)
	assert.GreaterOrEqual(t, stats.OptedOutSize, uint32(1))
}
