package testutil

import (
	"context"

	"github.com/flexprice/pullpay/internal/domain/charge"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/types"
)

// InMemoryChargeStore implements charge.Repository
type InMemoryChargeStore struct {
	*InMemoryStore[*charge.Charge]
}

func NewInMemoryChargeStore() *InMemoryChargeStore {
	return &InMemoryChargeStore{
		InMemoryStore: NewInMemoryStore[*charge.Charge](),
	}
}

func copyCharge(c *charge.Charge) *charge.Charge {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func (s *InMemoryChargeStore) Create(ctx context.Context, c *charge.Charge) error {
	if c == nil {
		return ierr.NewError("charge cannot be nil").Mark(ierr.ErrValidation)
	}
	// mirrors the partial unique index on succeeded idempotency keys
	if c.Succeeded() && c.IdempotencyKey != "" {
		if _, err := s.GetByIdempotencyKey(ctx, c.IdempotencyKey); err == nil {
			return ierr.NewError("charge already recorded").
				WithReportableDetails(map[string]any{"idempotency_key": c.IdempotencyKey}).
				Mark(ierr.ErrAlreadyExists)
		}
	}
	return s.InMemoryStore.Create(ctx, c.ID, copyCharge(c))
}

// GetByIdempotencyKey only matches succeeded charges
func (s *InMemoryChargeStore) GetByIdempotencyKey(ctx context.Context, key string) (*charge.Charge, error) {
	items, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, c *charge.Charge, _ interface{}) bool {
		return c.Succeeded() && c.IdempotencyKey == key
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ierr.NewError("charge not found").
			WithReportableDetails(map[string]any{"idempotency_key": key}).
			Mark(ierr.ErrNotFound)
	}
	return copyCharge(items[0]), nil
}

func (s *InMemoryChargeStore) List(ctx context.Context, filter *types.ChargeFilter) ([]*charge.Charge, error) {
	if filter == nil {
		filter = &types.ChargeFilter{}
	}
	items, err := s.InMemoryStore.List(ctx, filter, chargeFilterFn, chargeSortFn)
	if err != nil {
		return nil, err
	}
	out := make([]*charge.Charge, 0, len(items))
	for _, c := range items {
		out = append(out, copyCharge(c))
	}
	return out, nil
}

func (s *InMemoryChargeStore) Count(ctx context.Context, filter *types.ChargeFilter) (int, error) {
	if filter == nil {
		filter = &types.ChargeFilter{}
	}
	return s.InMemoryStore.Count(ctx, filter, chargeFilterFn)
}

func chargeFilterFn(_ context.Context, c *charge.Charge, filter interface{}) bool {
	f, ok := filter.(*types.ChargeFilter)
	if !ok {
		return true
	}
	if f.InstanceID != "" && c.InstanceID != f.InstanceID {
		return false
	}
	if f.Subscriber != "" && c.Subscriber != f.Subscriber {
		return false
	}
	if f.Kind != "" && c.Kind != f.Kind {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	return true
}

func chargeSortFn(i, j *charge.Charge) bool {
	if i.CreatedAt.Equal(j.CreatedAt) {
		return i.ID < j.ID
	}
	return i.CreatedAt.Before(j.CreatedAt)
}
