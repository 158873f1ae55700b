package types

import (
	"context"
)

// ContextKey is a type for the keys of values stored in the context
type ContextKey string

const (
	CtxRequestID     ContextKey = "ctx_request_id"
	CtxCaller        ContextKey = "ctx_caller"
	CtxDBTransaction ContextKey = "ctx_db_transaction"
	CtxOperator      ContextKey = "ctx_operator"
)

const (
	HeaderRequestID     = "X-Request-ID"
	HeaderAuthorization = "Authorization"
)

// GetCaller returns the address of whoever invoked the current operation.
// It is the zero address when no caller was attached.
func GetCaller(ctx context.Context) Address {
	if caller, ok := ctx.Value(CtxCaller).(Address); ok {
		return caller
	}
	return ZeroAddress
}

// SetCaller attaches the invoking address to the context
func SetCaller(ctx context.Context, caller Address) context.Context {
	return context.WithValue(ctx, CtxCaller, caller)
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(CtxRequestID).(string); ok {
		return requestID
	}
	return ""
}

// SetRequestID sets the request ID in the context
func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, CtxRequestID, requestID)
}

// IsOperator reports whether the request authenticated with an operator key
func IsOperator(ctx context.Context) bool {
	operator, _ := ctx.Value(CtxOperator).(bool)
	return operator
}

func SetOperator(ctx context.Context) context.Context {
	return context.WithValue(ctx, CtxOperator, true)
}
