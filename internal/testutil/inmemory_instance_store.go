package testutil

import (
	"context"

	"github.com/flexprice/pullpay/internal/domain/instance"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/types"
)

// InMemoryInstanceStore implements instance.Repository
type InMemoryInstanceStore struct {
	*InMemoryStore[*instance.Instance]
}

func NewInMemoryInstanceStore() *InMemoryInstanceStore {
	return &InMemoryInstanceStore{
		InMemoryStore: NewInMemoryStore[*instance.Instance](),
	}
}

func copyInstance(i *instance.Instance) *instance.Instance {
	if i == nil {
		return nil
	}
	c := *i
	c.Callers = append([]types.Address(nil), i.Callers...)
	if i.Community != nil {
		community := *i.Community
		c.Community = &community
	}
	if i.RecipientShareID != nil {
		share := *i.RecipientShareID
		c.RecipientShareID = &share
	}
	if i.InitializedAt != nil {
		at := *i.InitializedAt
		c.InitializedAt = &at
	}
	return &c
}

func (s *InMemoryInstanceStore) Create(ctx context.Context, inst *instance.Instance) error {
	if inst == nil {
		return ierr.NewError("instance cannot be nil").Mark(ierr.ErrValidation)
	}
	if _, err := s.GetByAddress(ctx, inst.Address); err == nil {
		return ierr.NewError("instance address already in use").
			WithReportableDetails(map[string]any{"address": inst.Address}).
			Mark(ierr.ErrAlreadyExists)
	}
	return s.InMemoryStore.Create(ctx, inst.ID, copyInstance(inst))
}

func (s *InMemoryInstanceStore) Get(ctx context.Context, id string) (*instance.Instance, error) {
	inst, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return copyInstance(inst), nil
}

func (s *InMemoryInstanceStore) GetByAddress(ctx context.Context, address types.Address) (*instance.Instance, error) {
	items, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, i *instance.Instance, _ interface{}) bool {
		return i.Address == address
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ierr.NewError("instance not found").
			WithReportableDetails(map[string]any{"address": address}).
			Mark(ierr.ErrNotFound)
	}
	return copyInstance(items[0]), nil
}

func (s *InMemoryInstanceStore) Update(ctx context.Context, inst *instance.Instance) error {
	return s.InMemoryStore.Update(ctx, inst.ID, copyInstance(inst))
}

func (s *InMemoryInstanceStore) List(ctx context.Context, filter types.QueryFilter) ([]*instance.Instance, error) {
	items, err := s.InMemoryStore.List(ctx, filter, nil, func(i, j *instance.Instance) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*instance.Instance, 0, len(items))
	for _, i := range items {
		out = append(out, copyInstance(i))
	}
	return out, nil
}

func (s *InMemoryInstanceStore) Count(ctx context.Context) (int, error) {
	return s.InMemoryStore.Count(ctx, nil, nil)
}
