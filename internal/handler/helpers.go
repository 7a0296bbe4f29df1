package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/examrag/internal/middleware"
	"github.com/xxxsen/examrag/internal/pkg/errcode"
	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
	"github.com/xxxsen/examrag/internal/pkg/response"
)

// handleError logs the full error and replies with a fixed message, so
// connection strings and other internals never reach the client.
func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get(middleware.ContextRequestIDKey)
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	switch {
	case errors.Is(err, appErr.ErrInvalid):
		response.ErrorWithStatus(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrTooMany):
		response.ErrorWithStatus(c, http.StatusTooManyRequests, errcode.ErrTooMany, "too many requests")
	case errors.Is(err, appErr.ErrNotReady), errors.Is(err, appErr.ErrStoreUnavailable):
		response.ErrorWithStatus(c, http.StatusServiceUnavailable, errcode.ErrNotReady, "assistant not ready, please try again later")
	case errors.Is(err, appErr.ErrSynthesis):
		response.ErrorWithStatus(c, http.StatusBadGateway, errcode.ErrSynthesis, "failed to generate an answer")
	case errors.Is(err, appErr.ErrDependencyUnavailable), errors.Is(err, context.DeadlineExceeded):
		response.ErrorWithStatus(c, http.StatusServiceUnavailable, errcode.ErrUnavailable, "service temporarily unavailable, please try again")
	default:
		response.ErrorWithStatus(c, http.StatusInternalServerError, errcode.ErrInternal, "internal error")
	}
}
