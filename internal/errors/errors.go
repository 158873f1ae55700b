package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound         = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists    = new(ErrCodeAlreadyExists, "resource already exists")
	ErrValidation       = new(ErrCodeValidation, "validation error")
	ErrInvalidOperation = new(ErrCodeInvalidOperation, "invalid operation")
	ErrPermissionDenied = new(ErrCodePermissionDenied, "permission denied")
	ErrHTTPClient       = new(ErrCodeHTTPClient, "http client error")
	ErrDatabase         = new(ErrCodeDatabase, "database error")
	ErrSystem           = new(ErrCodeSystemError, "system error")

	// Billing errors
	ErrUnauthorizedCaller       = new(ErrCodeUnauthorizedCaller, "caller is not a registered billing instance")
	ErrNotSupported             = new(ErrCodeNotSupported, "operation not supported for this instance")
	ErrControllerOnly           = new(ErrCodeControllerOnly, "operation is reserved for the controller")
	ErrOwnerOrCallerOnly        = new(ErrCodeOwnerOrCallerOnly, "operation is reserved for the owner or authorized callers")
	ErrSubscriptionTooShort     = new(ErrCodeSubscriptionTooShort, "subscription is too short")
	ErrSubscriptionTooLong      = new(ErrCodeSubscriptionTooLong, "subscription is too long")
	ErrSubscriptionCantStart    = new(ErrCodeSubscriptionCantStart, "subscription can not start")
	ErrInvalidCommunitySettings = new(ErrCodeInvalidCommunitySettings, "invalid community settings")
	ErrAlreadyInitialized       = new(ErrCodeAlreadyInitialized, "instance already initialized")
	ErrChargeFailed             = new(ErrCodeChargeFailed, "charge failed")
	ErrHookRejected             = new(ErrCodeHookRejected, "charge hook rejected the operation")
	ErrInvalidConfig            = new(ErrCodeInvalidConfig, "invalid instance configuration")

	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrHTTPClient:               http.StatusInternalServerError,
		ErrDatabase:                 http.StatusInternalServerError,
		ErrNotFound:                 http.StatusNotFound,
		ErrAlreadyExists:            http.StatusConflict,
		ErrValidation:               http.StatusBadRequest,
		ErrInvalidOperation:         http.StatusBadRequest,
		ErrPermissionDenied:         http.StatusForbidden,
		ErrSystem:                   http.StatusInternalServerError,
		ErrUnauthorizedCaller:       http.StatusForbidden,
		ErrNotSupported:             http.StatusBadRequest,
		ErrControllerOnly:           http.StatusForbidden,
		ErrOwnerOrCallerOnly:        http.StatusForbidden,
		ErrSubscriptionTooShort:     http.StatusBadRequest,
		ErrSubscriptionTooLong:      http.StatusBadRequest,
		ErrSubscriptionCantStart:    http.StatusPaymentRequired,
		ErrInvalidCommunitySettings: http.StatusBadRequest,
		ErrAlreadyInitialized:       http.StatusConflict,
		ErrChargeFailed:             http.StatusPaymentRequired,
		ErrHookRejected:             http.StatusFailedDependency,
		ErrInvalidConfig:            http.StatusBadRequest,
	}
)

const (
	ErrCodeHTTPClient       = "http_client_error"
	ErrCodeSystemError      = "system_error"
	ErrCodeNotFound         = "not_found"
	ErrCodeAlreadyExists    = "already_exists"
	ErrCodeValidation       = "validation_error"
	ErrCodeInvalidOperation = "invalid_operation"
	ErrCodePermissionDenied = "permission_denied"
	ErrCodeDatabase         = "database_error"

	ErrCodeUnauthorizedCaller       = "unauthorized_caller"
	ErrCodeNotSupported             = "not_supported"
	ErrCodeControllerOnly           = "controller_only"
	ErrCodeOwnerOrCallerOnly        = "owner_or_caller_only"
	ErrCodeSubscriptionTooShort     = "subscription_too_short"
	ErrCodeSubscriptionTooLong      = "subscription_too_long"
	ErrCodeSubscriptionCantStart    = "subscription_cant_start"
	ErrCodeInvalidCommunitySettings = "invalid_community_settings"
	ErrCodeAlreadyInitialized       = "already_initialized"
	ErrCodeChargeFailed             = "charge_failed"
	ErrCodeHookRejected             = "hook_rejected"
	ErrCodeInvalidConfig            = "invalid_config"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

// New creates a new InternalError
func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Is(err, reference error) bool {
	return errors.Is(err, reference)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsPermissionDenied checks if an error is a permission denied error
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsPolicyViolation reports rejections caused by the request itself:
// interval bounds, wrong entry point, re-initialization, bad settings.
func IsPolicyViolation(err error) bool {
	return errors.IsAny(err,
		ErrValidation,
		ErrNotSupported,
		ErrSubscriptionTooShort,
		ErrSubscriptionTooLong,
		ErrAlreadyInitialized,
		ErrInvalidCommunitySettings,
		ErrInvalidConfig,
	)
}

// IsAuthorization reports rejections caused by who is calling.
func IsAuthorization(err error) bool {
	return errors.IsAny(err,
		ErrPermissionDenied,
		ErrUnauthorizedCaller,
		ErrControllerOnly,
		ErrOwnerOrCallerOnly,
	)
}

// IsFundingFailure reports a failed fund movement.
func IsFundingFailure(err error) bool {
	return errors.IsAny(err, ErrChargeFailed, ErrSubscriptionCantStart)
}

func HTTPStatusFromErr(err error) int {
	// domain sentinels are checked before the generic buckets they are usually marked with
	for _, e := range []error{
		ErrSubscriptionCantStart, ErrUnauthorizedCaller, ErrControllerOnly, ErrOwnerOrCallerOnly,
		ErrNotSupported, ErrSubscriptionTooShort, ErrSubscriptionTooLong, ErrInvalidCommunitySettings,
		ErrAlreadyInitialized, ErrHookRejected, ErrChargeFailed, ErrInvalidConfig,
	} {
		if errors.Is(err, e) {
			return statusCodeMap[e]
		}
	}
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}
