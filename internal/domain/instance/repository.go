package instance

import (
	"context"

	"github.com/flexprice/pullpay/internal/types"
)

// Repository defines the interface for instance persistence operations
type Repository interface {
	Create(ctx context.Context, inst *Instance) error
	Get(ctx context.Context, id string) (*Instance, error)
	GetByAddress(ctx context.Context, address types.Address) (*Instance, error)
	// Update persists the owner-mutable fields: hook, community, callers, initialized_at
	Update(ctx context.Context, inst *Instance) error
	List(ctx context.Context, filter types.QueryFilter) ([]*Instance, error)
	Count(ctx context.Context) (int, error)
}
