package api

import (
	"net/http"

	"digital_rf/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// RateLimit 在限流器拒绝请求时返回 429。
func RateLimit(limiter ratelimiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁"})
			return
		}
		c.Next()
	}
}
