package charge

import (
	"context"

	"github.com/flexprice/pullpay/internal/types"
)

// Repository defines the interface for the charge history
type Repository interface {
	Create(ctx context.Context, c *Charge) error
	GetByIdempotencyKey(ctx context.Context, key string) (*Charge, error)
	List(ctx context.Context, filter *types.ChargeFilter) ([]*Charge, error)
	Count(ctx context.Context, filter *types.ChargeFilter) (int, error)
}
