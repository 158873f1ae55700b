package middleware

import (
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/gin-gonic/gin"
)

// ErrorResponse represents the standard error response structure
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Display string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorHandler renders the last error a handler attached with c.Error. Only
// hints and reportable details reach the client.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		status := ierr.HTTPStatusFromErr(err)
		requestID := types.GetRequestID(c.Request.Context())

		if status >= http.StatusInternalServerError {
			log.Errorw("request failed",
				"path", c.FullPath(),
				"status", status,
				"request_id", requestID,
				"error", err,
			)
		}

		c.JSON(status, ErrorResponse{
			Success: false,
			Error: ErrorDetail{
				Display: getDisplayMessage(err),
				Details: ierr.ReportableDetails(err),
			},
			RequestID: requestID,
		})
	}
}

func getDisplayMessage(err error) string {
	// GetAllHints is post-order, the first non-empty hint is the innermost
	for _, hint := range errors.GetAllHints(err) {
		if hint = strings.TrimSpace(hint); hint != "" {
			return hint
		}
	}
	return "An unexpected error occurred"
}
