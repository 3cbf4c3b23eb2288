package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/go-collab/internal/config"
	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/gogotex/gogotex/backend/go-collab/internal/ws"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var startTime = time.Now()

// newRouter registers the websocket endpoint and the operational routes.
func newRouter(cfg *config.Config, store document.Pinger, wsHandler *ws.Handler, redisClient *redis.Client) *gin.Engine {
	r := gin.New()
	// Global middlewares: logging + recovery
	r.Use(gin.Logger(), gin.Recovery())

	// Optional upgrade rate limiter (per client IP)
	var limit []gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			limit = append(limit, middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			limit = append(limit, middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}
	wsHandler.Register(r, limit...)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness endpoint: 200 only when the document store answers
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		deps := gin.H{"store": cfg.Store.Backend}
		status, code := "ready", http.StatusOK
		if err := store.Ping(ctx); err != nil {
			deps["error"] = err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":      status,
			"deps":        deps,
			"connections": wsHandler.Connections(),
			"uptime":      time.Since(startTime).String(),
		})
	})

	// Expose Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}
