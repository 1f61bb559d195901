// Package middleware holds the gin middleware shared by every mapsync route:
// request ids, access logging, HTTP metrics and CORS.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/mapsync/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/mapsync/pkg/errors"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// LoggingConfig holds configuration for the request logging middleware.
type LoggingConfig struct {
	// SkipPaths are not logged.  Probes and the metrics scrape are noisy.
	SkipPaths []string

	// SlowThreshold is the duration above which a request is logged at warn.
	SlowThreshold time.Duration
}

// DefaultLoggingConfig returns the default logging configuration.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:     []string{"/healthz", "/readyz", "/metrics"},
		SlowThreshold: 3 * time.Second,
	}
}

// RequestID reuses the caller's X-Request-ID or generates one, echoes it on
// the response and stores it in the request context for logging.WithContext.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// RequestLogging logs each completed request.  5xx responses log at error,
// 4xx and slow requests at warn, everything else at info.
func RequestLogging(logger logging.Logger, config LoggingConfig) gin.HandlerFunc {
	skipSet := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skipSet[p] = true
	}

	return func(c *gin.Context) {
		if skipSet[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		fields := []logging.Field{
			logging.String("method", c.Request.Method),
			logging.String("path", path),
			logging.Int("status", status),
			logging.Duration("duration", duration),
			logging.Int("bytes", c.Writer.Size()),
			logging.String("remote_addr", c.ClientIP()),
		}
		if ua := c.Request.UserAgent(); ua != "" {
			fields = append(fields, logging.String("user_agent", ua))
		}
		if last := c.Errors.Last(); last != nil {
			code := errors.GetCode(last.Err)
			fields = append(fields,
				logging.String("errors", c.Errors.String()),
				logging.String("error_code", code.String()),
				logging.String("error_module", errors.ModuleForCode(code)))
		}

		l := logger.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			l.Error("HTTP request completed with server error", fields...)
		case status >= 400:
			l.Warn("HTTP request completed with client error", fields...)
		case config.SlowThreshold > 0 && duration >= config.SlowThreshold:
			l.Warn("HTTP request completed (slow)", fields...)
		default:
			l.Info("HTTP request completed", fields...)
		}
	}
}

//Personal.AI order the ending
