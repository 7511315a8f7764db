package httpapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindowLimiter(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewSlidingWindowLimiter(time.Minute, 2, func() time.Time { return now })

	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow(), "third call inside the window")

	now = now.Add(30 * time.Second)
	assert.False(t, limiter.Allow(), "still inside the window")

	now = now.Add(31 * time.Second)
	assert.True(t, limiter.Allow(), "window has passed")
}

func TestSlidingWindowLimiterDisabled(t *testing.T) {
	assert.True(t, NewSlidingWindowLimiter(0, 0, nil).Allow())
	var nilLimiter *SlidingWindowLimiter
	assert.True(t, nilLimiter.Allow())
}

func TestKeyedLimiterSeparatesClients(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewKeyedLimiter(time.Minute, 1, func() time.Time { return now })

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"), "another client has its own window")
	assert.Equal(t, 2, limiter.Len())
}

func TestKeyedLimiterEvictsIdleClients(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewKeyedLimiter(time.Minute, 1, func() time.Time { return now })

	assert.True(t, limiter.Allow("a"))
	now = now.Add(30 * time.Second)
	assert.True(t, limiter.Allow("b"))
	assert.Equal(t, 2, limiter.Len())

	//1.- Only "a" has an empty window when the next sweep runs.
	now = now.Add(45 * time.Second)
	assert.True(t, limiter.Allow("c"))
	assert.Equal(t, 2, limiter.Len())
	assert.False(t, limiter.Allow("b"), "b keeps its window until it expires")
}

func TestKeyedLimiterDisabled(t *testing.T) {
	limiter := NewKeyedLimiter(0, 0, nil)
	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow("x"))
	}
	assert.Zero(t, limiter.Len())
}
