package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPMetrics records served requests.
type HTTPMetrics interface {
	RecordHTTPRequest(method, path string, status int, elapsed time.Duration)
}

// Metrics records one sample per request, labelled by route template so
// that path parameters do not explode cardinality.  Unmatched routes are
// recorded as "unmatched".
func Metrics(m HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

//Personal.AI order the ending
