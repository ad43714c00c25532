package api

import "github.com/gin-gonic/gin"

// SetupRouter 配置并返回状态服务的 Gin 引擎。
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", h.Health)
	r.GET("/metrics", h.Metrics)

	apiV1 := r.Group("/api/v1")
	if h.limiter != nil {
		apiV1.Use(RateLimit(h.limiter))
	}
	{
		apiV1.GET("/version", h.Version)
		apiV1.GET("/capabilities", h.Capabilities)
		apiV1.GET("/files", h.Files)

		channels := apiV1.Group("/channels")
		{
			channels.GET("", h.Channels)
			// 通道名可能包含 '/'，因此通过查询参数传递，例如: /api/v1/channels/bounds?channel=site/ch0
			channels.GET("/bounds", h.ChannelBounds)
			channels.GET("/properties", h.ChannelProperties)
			channels.GET("/blocks", h.ChannelBlocks)
		}
	}
	return r
}
