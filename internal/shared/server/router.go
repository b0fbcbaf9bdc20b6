package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classroom-backend/internal/lessons"
	"classroom-backend/internal/prompts"
	"classroom-backend/internal/shared/metrics"
	"classroom-backend/internal/shared/server/middleware"
	"classroom-backend/internal/shared/server/respond"
)

// RouterDeps carries the handlers the router mounts.
type RouterDeps struct {
	LessonHandler *lessons.Handler
	PromptHandler *prompts.Handler
}

// NewRouter builds the gin engine with middleware and routes attached.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
	)

	r.GET("/healthz", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	if deps.LessonHandler != nil {
		deps.LessonHandler.RegisterRoutes(api)
	}
	if deps.PromptHandler != nil {
		deps.PromptHandler.RegisterRoutes(api)
	}

	return r
}

// Addr normalizes a port value into a listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
