package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/oshokin/silent-alarm/internal/domain/alarm"
	"github.com/oshokin/silent-alarm/internal/logger"
	storage "github.com/oshokin/silent-alarm/internal/store"
)

// Service abstracts the store operations the HTTP layer depends on.
type Service interface {
	storage.AlarmStore
	storage.TriggerStore
	storage.TriggerWatcher

	TriggerState(ctx context.Context, deviceID string) (*alarm.TriggerState, error)
}

// Options configures the router.
type Options struct {
	// RateLimitPerSec is the per-IP request rate allowed under /v1.
	RateLimitPerSec float64
	// RateLimitBurst is the per-IP burst allowed under /v1.
	RateLimitBurst int
}

// NewRouter creates and configures the gin engine serving the store.
func NewRouter(ctx context.Context, service Service, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(ctx))

	handler := NewHandler(ctx, service)
	limiter := NewIPRateLimiter(rate.Limit(opts.RateLimitPerSec), opts.RateLimitBurst)

	r.GET("/healthz", handler.Health)

	v1 := r.Group("/v1")
	v1.Use(RateLimiter(limiter))
	{
		v1.GET("/alarms", handler.ListAlarms)
		v1.GET("/alarms/:device", handler.GetAlarms)
		v1.PUT("/alarms/:device", handler.PutAlarms)
		v1.DELETE("/alarms/:device", handler.DeleteAlarms)

		v1.GET("/triggers", handler.ListTriggers)
		v1.GET("/triggers/:device", handler.GetTrigger)
		v1.PUT("/triggers/:device", handler.PutTrigger)
		v1.GET("/triggers/:device/watch", handler.WatchTrigger)
	}

	return r
}

// requestLogger logs every request at DEBUG through the context logger.
func requestLogger(ctx context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()

		c.Next()

		logger.DebugKV(ctx, "HTTP request finished",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"duration", time.Since(started))
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
