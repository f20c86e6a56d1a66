package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetSetInvalidate(t *testing.T) {
	c := New[string](time.Minute, nil)

	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Set("k", "v")
	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)

	c.Invalidate("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestExpiryUsesInjectedClock(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := New[int](5*time.Minute, func() time.Time { return now })

	c.Set("k", 42)
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(5*time.Minute + time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry must expire once the clock passes the TTL")
}
