package middleware

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jgirmay/slack-activity/internal/common/errors"
)

// ErrorHandler recovers panics in handlers and answers with a JSON 500.
func ErrorHandler(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic in handler",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path))
				appErr := errors.Internal("internal server error", "")
				c.AbortWithStatusJSON(appErr.Status, gin.H{"ok": false, "error": appErr})
			}
		}()
		c.Next()
	}
}

// JSONErrorResponse wraps errors in consistent JSON format
func JSONErrorResponse(c *gin.Context, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.Internal("internal server error", err.Error())
	}

	status := appErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"ok": false, "error": appErr})
}
