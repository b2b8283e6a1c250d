package middleware

import (
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fraudwallet-api/internal/monitoring"
)

type LoggingMiddleware struct {
	logger  *logrus.Logger
	metrics monitoring.MetricsService

	slowThreshold time.Duration
	excludePaths  map[string]bool
}

func NewLoggingMiddleware(logger *logrus.Logger, metrics monitoring.MetricsService) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger:        logger,
		metrics:       metrics,
		slowThreshold: 2 * time.Second,
		excludePaths: map[string]bool{
			"/health":  true,
			"/metrics": true,
		},
	}
}

// RequestLogging logs each request with its request id, latency and outcome,
// and feeds the HTTP metrics.
func (m *LoggingMiddleware) RequestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.excludePaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.metrics.RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), duration)

		fields := logrus.Fields{
			"request_id":  requestid.Get(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": duration.Milliseconds(),
			"client_ip":   c.ClientIP(),
		}
		if accountID, ok := c.Get("account_id"); ok {
			fields["account_id"] = accountID
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		entry := m.logger.WithFields(fields)
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("Request failed")
		case duration > m.slowThreshold:
			entry.Warn("Slow request")
		case c.Writer.Status() >= 400:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request completed")
		}
	}
}
