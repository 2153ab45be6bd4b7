package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_StaysWithinBounds(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 400*time.Millisecond, 2.0)

	for i := 0; i < 20; i++ {
		wait := b.Next()
		// Floor is the minimum delay; ceiling is the max plus 20%
		// jitter headroom.
		assert.GreaterOrEqual(t, wait, 100*time.Millisecond)
		assert.LessOrEqual(t, wait, 480*time.Millisecond)
	}
	assert.Equal(t, 20, b.Attempts())
}

func TestBackoff_GrowsTowardCeiling(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 10*time.Second, 2.0)

	b.Next() // current: 100ms -> 200ms
	b.Next() // current: 200ms -> 400ms
	third := b.Next()

	// Third wait draws from a 400ms base; even with -20% jitter it
	// lands well above the floor.
	assert.GreaterOrEqual(t, third, 320*time.Millisecond)
}

func TestBackoff_Reset(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 10*time.Second, 2.0)

	for i := 0; i < 5; i++ {
		b.Next()
	}
	b.Reset()

	assert.Equal(t, 0, b.Attempts())

	wait := b.Next()
	// Back at the floor: 100ms base with at most +20% jitter.
	assert.LessOrEqual(t, wait, 120*time.Millisecond)
}
