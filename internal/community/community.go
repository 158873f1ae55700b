package community

import (
	"context"

	"github.com/flexprice/pullpay/internal/types"
)

// Roles is a role registry. Grant and Revoke are idempotent: granting a held
// role or revoking a missing one succeeds without change.
type Roles interface {
	Grant(ctx context.Context, community types.Address, roleID int64, member types.Address) error
	Revoke(ctx context.Context, community types.Address, roleID int64, member types.Address) error
	HasRole(ctx context.Context, community types.Address, roleID int64, member types.Address) (bool, error)
}
