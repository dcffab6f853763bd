package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vantler/adcomply-backend/internal/platform/logger"
	"github.com/vantler/adcomply-backend/internal/requestdata"
)

// RequestAttribution assigns every request a correlation id, captures the
// caller's claimed identity from X-Actor, and logs the completed request.
// Downstream audit entries read the actor through requestdata.
func RequestAttribution(log *logger.Logger) gin.HandlerFunc {
	reqLog := log.With("Middleware", "RequestAttribution")
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		rd := &requestdata.RequestData{
			RequestID: requestID,
			Actor:     c.GetHeader("X-Actor"),
		}
		c.Request = c.Request.WithContext(requestdata.WithRequestData(c.Request.Context(), rd))
		c.Writer.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		reqLog.Info("Request complete",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
