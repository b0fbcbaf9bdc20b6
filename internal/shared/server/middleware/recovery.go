package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"classroom-backend/internal/shared/server/respond"
	"classroom-backend/internal/shared/telemetry"
)

// Recovery converts panics into standardized 500 responses.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				telemetry.Error("http.panic", map[string]any{
					"request_id": RequestIDFromContext(c),
					"path":       c.Request.URL.Path,
					"panic":      fmt.Sprintf("%v", r),
				})
				respond.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", nil)
			}
		}()
		c.Next()
	}
}
