package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(2, time.Minute)
	l.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	res, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, time.Minute, res.ResetIn)

	res, _ = l.Allow(ctx, "1.2.3.4")
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	res, _ = l.Allow(ctx, "1.2.3.4")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	// other keys have their own counter
	res, _ = l.Allow(ctx, "5.6.7.8")
	assert.True(t, res.Allowed)

	// next window
	now = now.Add(time.Minute)
	res, _ = l.Allow(ctx, "1.2.3.4")
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
}

func TestWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 45, 0, time.UTC)
	idx, resetIn := window(now, time.Minute)
	assert.Equal(t, 15*time.Second, resetIn)

	next, _ := window(now.Add(15*time.Second), time.Minute)
	assert.Equal(t, idx+1, next)
}
