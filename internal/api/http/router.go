package http

import (
	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/station/internal/api/middleware"
	"github.com/GriffinCanCode/station/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/station/internal/infrastructure/tracing"
)

// RouterConfig holds the middleware settings of the diagnostics router
type RouterConfig struct {
	Development bool
	CORS        middleware.CORSConfig
	RateLimit   middleware.RateLimitConfig
	// Tracer is optional; nil still stamps X-Trace-ID on responses
	Tracer *tracing.Tracer
}

// DefaultRouterConfig returns the production router configuration
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CORS:      middleware.DefaultCORSConfig(),
		RateLimit: middleware.DefaultRateLimitConfig(),
	}
}

// NewRouter builds the diagnostics engine
func NewRouter(cfg RouterConfig, h *Handlers, metrics *monitoring.Metrics) *gin.Engine {
	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(cfg.Tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(cfg.CORS))
	router.Use(middleware.RateLimit(cfg.RateLimit))

	router.GET("/health", h.Health)
	router.GET("/state", h.State)
	router.GET("/devices", h.Devices)
	router.GET("/experiences", h.Experiences)
	router.GET("/metrics", h.Metrics())
	router.GET("/events", h.Events)

	return router
}
