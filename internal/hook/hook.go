package hook

import (
	"context"
	"strings"
	"sync"

	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/shopspring/decimal"
)

// Hook is invoked synchronously after every successful pull. Returning an
// error vetoes the operation that triggered the pull.
type Hook interface {
	OnCharge(ctx context.Context, event *ChargeEvent) error
}

// ChargeEvent is what a hook sees about the pull it is asked to accept
type ChargeEvent struct {
	Instance   types.Address    `json:"instance"`
	Subscriber types.Address    `json:"subscriber"`
	Amount     decimal.Decimal  `json:"amount"`
	Kind       types.ChargeKind `json:"kind"`
}

// Func adapts a plain function to Hook
type Func func(ctx context.Context, event *ChargeEvent) error

func (f Func) OnCharge(ctx context.Context, event *ChargeEvent) error {
	return f(ctx, event)
}

// Resolver turns an instance's hook reference into a callable Hook
type Resolver interface {
	Resolve(ctx context.Context, ref string) (Hook, error)
}

const localScheme = "local:"

// LocalRef builds the reference for a hook registered in process under name
func LocalRef(name string) string {
	return localScheme + name
}

type DefaultResolver struct {
	mu    sync.RWMutex
	local map[string]Hook
	http  func(url string) Hook
}

// NewResolver resolves "local:<name>" references against hooks registered
// with Register and "http(s)://" references with newHTTP
func NewResolver(newHTTP func(url string) Hook) *DefaultResolver {
	return &DefaultResolver{
		local: make(map[string]Hook),
		http:  newHTTP,
	}
}

// Register makes h resolvable as LocalRef(name)
func (r *DefaultResolver) Register(name string, h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local[name] = h
}

func (r *DefaultResolver) Resolve(_ context.Context, ref string) (Hook, error) {
	switch {
	case strings.HasPrefix(ref, localScheme):
		r.mu.RLock()
		h, ok := r.local[strings.TrimPrefix(ref, localScheme)]
		r.mu.RUnlock()
		if ok {
			return h, nil
		}
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		if r.http != nil {
			return r.http(ref), nil
		}
	}
	return nil, ierr.NewError("unknown hook reference").
		WithHintf("Hook %q can not be resolved", ref).
		WithReportableDetails(map[string]any{"hook": ref}).
		Mark(ierr.ErrHookRejected)
}

// ValidateRef checks that ref has a scheme the resolver understands
func ValidateRef(ref string) error {
	if ref == "" || strings.HasPrefix(ref, localScheme) ||
		strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return nil
	}
	return ierr.NewError("unsupported hook reference").
		WithHint("Hook must be a local: or http(s):// reference").
		WithReportableDetails(map[string]any{"hook": ref}).
		Mark(ierr.ErrValidation)
}
