package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/examrag/internal/middleware"
)

type RouterDeps struct {
	Ask          *AskHandler
	Health       *HealthHandler
	AskRateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/health", deps.Health.Get)
	api.POST("/ask", middleware.RateLimit(deps.AskRateLimit), deps.Ask.Ask)
}
