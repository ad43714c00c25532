package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucket(t *testing.T) {
	clock := time.Unix(0, 0)
	tb := NewTokenBucket(2, 3)
	tb.now = func() time.Time { return clock }
	tb.last = clock

	// 突发: 初始容量 3
	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow(), i)
	}
	assert.False(t, tb.Allow())

	// 0.5 秒补充 1 个令牌
	clock = clock.Add(500 * time.Millisecond)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	// 补充量不超过容量
	clock = clock.Add(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow(), i)
	}
	assert.False(t, tb.Allow())
}
