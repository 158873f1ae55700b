package participant

import (
	"context"

	"github.com/flexprice/pullpay/internal/types"
)

// Repository stores recognized participants
type Repository interface {
	Register(ctx context.Context, p *Participant) error
	Unregister(ctx context.Context, address types.Address, kind types.ParticipantKind) error
	// Kinds returns every kind the address is registered for, empty when unknown
	Kinds(ctx context.Context, address types.Address) ([]types.ParticipantKind, error)
}
