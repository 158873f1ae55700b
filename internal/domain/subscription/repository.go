package subscription

import (
	"context"

	"github.com/flexprice/pullpay/internal/types"
)

// Repository defines the interface for subscriber record persistence
type Repository interface {
	// Get returns ErrNotFound when the address never subscribed to the instance
	Get(ctx context.Context, instanceID string, address types.Address) (*Subscriber, error)
	// Save inserts or replaces the record keyed by (instance_id, address)
	Save(ctx context.Context, s *Subscriber) error
	List(ctx context.Context, filter *types.SubscriberFilter) ([]*Subscriber, error)
	Count(ctx context.Context, filter *types.SubscriberFilter) (int, error)
}
