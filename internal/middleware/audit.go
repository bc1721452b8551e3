package middleware

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-enrollment-api/internal/models"
)

// AuditResourceIDKey lets a handler name the record it touched.
const AuditResourceIDKey = "audit_resource_id"

// AuditRecorder accepts audit entries without blocking the request.
type AuditRecorder interface {
	Record(entry models.AuditLog)
}

// Audit records an entry for every successful request on the route.
func Audit(recorder AuditRecorder, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if recorder == nil || c.Writer.Status() >= 400 {
			return
		}

		entry := models.AuditLog{
			Action:    action,
			Resource:  resource,
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
			CreatedAt: start,
		}
		if id := c.GetString(AuditResourceIDKey); id != "" {
			entry.ResourceID = &id
		}
		if claims, ok := c.Get(ContextUserKey); ok {
			if user, ok := claims.(*models.JWTClaims); ok {
				userID := user.UserID
				entry.UserID = &userID
			}
		}

		entry.NewValues, _ = json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})
		recorder.Record(entry)
	}
}
