package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mlibrary/internal/middleware"
	"github.com/xxxsen/mlibrary/internal/pkg/errcode"
	appErr "github.com/xxxsen/mlibrary/internal/pkg/errors"
	"github.com/xxxsen/mlibrary/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	code := errcode.FromError(err)
	logger := logutil.GetLogger(c.Request.Context()).With(
		zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("code", code),
		zap.Error(err),
	)
	if code == errcode.ErrInternal {
		logger.Error("request failed")
	} else {
		logger.Debug("request rejected")
	}
	response.Error(c, code, errcode.Message(err))
}

func invalidParam(c *gin.Context, err error) {
	handleError(c, fmt.Errorf("%w: %v", appErr.ErrInvalid, err))
}
