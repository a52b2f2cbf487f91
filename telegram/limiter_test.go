package telegram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserLimiter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := newUserLimiter(1, 2)
	require.NotNil(t, l)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow(1))
	assert.True(t, l.allow(1))
	assert.False(t, l.allow(1), "burst exhausted")
	assert.True(t, l.allow(2), "users are limited independently")

	now = now.Add(time.Second)
	assert.True(t, l.allow(1), "tokens refill over time")
}

func TestUserLimiter_PrunesIdleUsers(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := newUserLimiter(5, 5)
	l.now = func() time.Time { return now }

	l.allow(1)
	l.allow(2)
	assert.Equal(t, 2, l.size())

	now = now.Add(limiterIdle + time.Minute)
	l.allow(3)
	assert.Equal(t, 1, l.size())
}

func TestUserLimiter_Disabled(t *testing.T) {
	l := newUserLimiter(0, 10)
	assert.Nil(t, l)
	for i := 0; i < 100; i++ {
		assert.True(t, l.allow(1))
	}
}
