package router

import (
	"net"

	"github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/httpclient"
	"github.com/flexprice/pullpay/internal/logger"
)

// ShouldRetry decides whether a failed delivery deserves another attempt.
// Handlers swallow errors for which it returns false.
func ShouldRetry(logger *logger.Logger, err error) bool {
	if httpErr, ok := httpclient.IsHTTPError(err); ok {
		logger.Debugw("delivery failed with HTTP error",
			"status_code", httpErr.StatusCode,
			"retryable", httpErr.IsRetryable(),
		)
		return httpErr.IsRetryable()
	}

	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		logger.Debugw("retrying due to network timeout", "error", netErr)
		return true
	}

	if errors.IsValidation(err) ||
		errors.IsNotFound(err) ||
		errors.IsPermissionDenied(err) {
		return false
	}

	return true
}
