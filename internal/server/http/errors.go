package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation"
)

const internalErrorMessage = "internal server error"

// writeError renders err as {"error", "request_id"} with the status of its
// kind. Unclassified errors become a generic 500 and are logged in full.
func writeError(c *gin.Context, logger logging.Logger, err error) {
	ctx := c.Request.Context()

	var e *common.Error
	if !errors.As(err, &e) {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn(ctx, "request timed out", "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{
				Error:     "request timed out",
				RequestID: logging.RequestID(ctx),
			})
			return
		}
		logger.Error(ctx, "request failed", "path", c.FullPath(), "error", err.Error())
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
			Error:     internalErrorMessage,
			RequestID: logging.RequestID(ctx),
		})
		return
	}

	if e.Kind == common.KindUnauthorized {
		c.Header("WWW-Authenticate", common.BearerScheme)
	}
	c.AbortWithStatusJSON(common.StatusCode(e.Kind), errorResponse{
		Error:     e.Error(),
		RequestID: logging.RequestID(ctx),
		Fields:    e.Fields,
	})
}

// validationError turns ozzo validation errors into a KindValidation error
// with one message per JSON field. Anything else passes through unchanged.
func validationError(err error) error {
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return err
	}

	fields := make(map[string]string, len(errs))
	for field, fe := range errs {
		fields[field] = fe.Error()
	}
	return common.Validation("invalid request", fields)
}
