// Package ratelimiter 提供令牌桶限流器。
package ratelimiter

import (
	"sync"
	"time"
)

// RateLimiter 是限流器接口。
type RateLimiter interface {
	// Allow 在允许本次请求时返回 true。
	Allow() bool
}

// TokenBucket 使用令牌桶算法限流，允许最多 capacity 次的突发请求。
type TokenBucket struct {
	rate     float64 // 每秒生成的令牌数
	capacity float64
	tokens   float64
	last     time.Time
	mu       sync.Mutex

	now func() time.Time
}

// NewTokenBucket 创建一个初始装满的令牌桶。
func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	tb := &TokenBucket{
		rate:     rate,
		capacity: float64(capacity),
		tokens:   float64(capacity),
		now:      time.Now,
	}
	tb.last = tb.now()
	return tb
}

// Allow 按经过的时间补充令牌，有至少一个令牌时消耗它并返回 true。
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	if elapsed := now.Sub(tb.last); elapsed > 0 {
		tb.tokens += elapsed.Seconds() * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.last = now
	}
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}
