package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"orderflow/internal/core/apperror"
	appctx "orderflow/internal/core/context"
	"orderflow/internal/domain/idempotency"
	"orderflow/pkg/logger"
)

// ErrorHandler is the only place that writes error bodies. Handlers call
// c.Error and abort. Internal causes are logged, never returned.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		status := http.StatusInternalServerError
		body := gin.H{
			"code":    apperror.CodeInternal,
			"message": "Internal server error",
			"details": map[string]any{"request_id": appctx.GetRequestID(c.Request.Context())},
		}

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}
			status = apperror.GetHTTPStatus(appErr)
			if appErr.Code != apperror.CodeInternal {
				body = gin.H{
					"code":    appErr.Code,
					"message": appErr.Message,
					"details": appErr.Details,
				}
			}
		} else {
			logger.Error(c.Request.Context(), "unhandled error", "error", err)
		}

		CompleteIdempotency(c, idempotency.StatusFailed, status, body)
		c.JSON(status, body)
	}
}
