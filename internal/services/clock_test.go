package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonotonicClock_StrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2024, 2, 14, 9, 0, 0, 123456789, time.UTC)
	c := &MonotonicClock{now: func() time.Time { return fixed }}

	first := c.Now()
	assert.Equal(t, fixed.Truncate(time.Microsecond), first)

	prev := first
	for i := 0; i < 100; i++ {
		next := c.Now()
		assert.True(t, next.After(prev))
		prev = next
	}
}

func TestMonotonicClock_NeverGoesBack(t *testing.T) {
	now := time.Date(2024, 2, 14, 9, 0, 0, 0, time.UTC)
	c := &MonotonicClock{now: func() time.Time { return now }}

	a := c.Now()
	now = now.Add(-time.Hour)
	b := c.Now()

	assert.True(t, b.After(a))
	assert.Equal(t, time.UTC, b.Location())
}
