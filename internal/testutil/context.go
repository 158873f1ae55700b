package testutil

import (
	"context"

	"github.com/flexprice/pullpay/internal/types"
)

// SetupContext returns a context carrying a fresh request id and, when
// given, the caller address
func SetupContext(caller ...types.Address) context.Context {
	ctx := context.Background()
	ctx = types.SetRequestID(ctx, types.GenerateUUID())
	if len(caller) > 0 {
		ctx = types.SetCaller(ctx, caller[0])
	}
	return ctx
}
