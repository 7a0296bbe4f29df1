package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/examrag/internal/model"
	"github.com/xxxsen/examrag/internal/pkg/response"
)

type HealthChecker interface {
	Health(ctx context.Context) model.Health
}

type HealthHandler struct {
	checker HealthChecker
}

func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Get always replies 200; readiness is carried in the body.
func (h *HealthHandler) Get(c *gin.Context) {
	response.Success(c, h.checker.Health(c.Request.Context()))
}
