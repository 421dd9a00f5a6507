package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/phillip/cobudget-go/services"
)

const (
	EventHeader     = "X-Event-Slug"
	RequestIDHeader = "X-Request-ID"
)

// EventContext selects the event that event-scoped operations act on, from the
// X-Event-Slug header or the ?event= query parameter.
func EventContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		slug := strings.TrimSpace(c.GetHeader(EventHeader))
		if slug == "" {
			slug = strings.TrimSpace(c.Query("event"))
		}
		if slug != "" {
			c.Request = c.Request.WithContext(services.WithEventSlug(c.Request.Context(), slug))
		}
		c.Next()
	}
}

// RequestTime pins "now" for the whole request so every temporal flag computed
// while serving it agrees.
func RequestTime(clock func() time.Time) gin.HandlerFunc {
	if clock == nil {
		clock = time.Now
	}
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(services.WithNow(c.Request.Context(), clock()))
		c.Next()
	}
}

func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		entry := logrus.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		if uid := c.GetString("user_id"); uid != "" {
			entry = entry.WithField("user_id", uid)
		}
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("request failed")
		case len(c.Errors) > 0:
			entry.WithField("errors", c.Errors.String()).Warn("request completed with errors")
		default:
			entry.Info("request completed")
		}
	}
}
