package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/examrag/internal/model"
	"github.com/xxxsen/examrag/internal/pkg/errcode"
	"github.com/xxxsen/examrag/internal/pkg/response"
)

type Asker interface {
	Ask(ctx context.Context, question string, customIntro string) (model.Answer, error)
}

type AskHandler struct {
	asker Asker
}

func NewAskHandler(asker Asker) *AskHandler {
	return &AskHandler{asker: asker}
}

type askRequest struct {
	Question    string `json:"question"`
	CustomIntro string `json:"custom_intro"`
}

func (h *AskHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, errcode.ErrInvalid, "question is required")
		return
	}
	answer, err := h.asker.Ask(c.Request.Context(), req.Question, req.CustomIntro)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, answer)
}
