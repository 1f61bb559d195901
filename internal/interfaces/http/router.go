package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/mapsync/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/mapsync/internal/interfaces/http/handlers"
	"github.com/turtacn/mapsync/internal/interfaces/http/middleware"
	"github.com/turtacn/mapsync/pkg/errors"
)

// RouterConfig aggregates the handler and middleware dependencies of the
// route tree.  Nil handlers leave their routes unregistered.
type RouterConfig struct {
	MapHandler    *handlers.MapHandler
	HealthHandler *handlers.HealthHandler

	// MetricsHandler serves the scrape endpoint at MetricsPath.
	MetricsHandler http.Handler
	MetricsPath    string
	HTTPMetrics    middleware.HTTPMetrics

	CORS    *middleware.CORSConfig
	Logging middleware.LoggingConfig
	Logger  logging.Logger
}

// NewRouter builds the gin engine.  Middleware order is recovery, request
// id, metrics, CORS, logging.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithContext(c.Request.Context()).Error("handler panicked",
			logging.String("path", c.Request.URL.Path),
			logging.String("panic", fmt.Sprint(recovered)))
		c.AbortWithStatusJSON(http.StatusInternalServerError, handlers.ErrorResponse{
			Code:    errors.ErrCodeInternal.String(),
			Message: errors.DefaultMessageForCode(errors.ErrCodeInternal),
		})
	}))
	r.Use(middleware.RequestID())
	if cfg.HTTPMetrics != nil {
		r.Use(middleware.Metrics(cfg.HTTPMetrics))
	}
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}
	r.Use(middleware.RequestLogging(logger, cfg.Logging))

	if h := cfg.HealthHandler; h != nil {
		r.GET("/healthz", h.Liveness)
		r.GET("/readyz", h.Readiness)
	}
	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsHandler))
	}

	api := r.Group("/api/v1")
	registerMapRoutes(api, cfg.MapHandler)
	return r
}

// registerMapRoutes mounts the camera, selection and visible-set endpoints.
func registerMapRoutes(api *gin.RouterGroup, h *handlers.MapHandler) {
	if h == nil {
		return
	}
	api.POST("/camera", h.Camera)
	api.POST("/camera/center", h.Center)

	api.POST("/gestures/start", h.GestureStart)
	api.POST("/gestures/end", h.GestureEnd)

	api.PUT("/filters", h.SetFilters)

	api.PUT("/selection", h.Select)
	api.DELETE("/selection", h.ClearSelection)

	api.GET("/visible-set", h.VisibleSet)
	api.GET("/visible-set/stream", h.Stream)
	api.GET("/markers", h.Markers)
}

//Personal.AI order the ending
