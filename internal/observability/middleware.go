package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RequestLogger logs one line per exchange served by an lpio endpoint. node
// names the endpoint; the bearer header is reported as present or not, never
// its value.
func RequestLogger(logger zerolog.Logger, node string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Debug()
		switch {
		case status >= 500:
			event = logger.Error()
		case status == 401 || status == 408:
			event = logger.Warn()
		case status >= 400:
			event = logger.Info()
		}

		event.
			Str("node", node).
			Str("method", c.Request.Method).
			Str("path", routePath(c)).
			Int("status", status).
			Bool("bearer", c.GetHeader("Authorization") != "").
			Int64("request_bytes", c.Request.ContentLength).
			Int("response_bytes", c.Writer.Size()).
			Dur("held", time.Since(start)).
			Msg("lpio_exchange")
	}
}

func RequestMetricsMiddleware(node string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(node, c.Request.Method, routePath(c), c.Writer.Status(), time.Since(start))
	}
}

func routePath(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return c.Request.URL.Path
}
