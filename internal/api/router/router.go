package router

import (
	"github.com/gin-gonic/gin"

	"github.com/rcss-tournament/team-builder/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	statusHandler := handler.NewStatusHandler(deps)

	r.GET("/health-check", statusHandler.HealthCheck)
	r.GET("/status", statusHandler.Status)

	return r
}
