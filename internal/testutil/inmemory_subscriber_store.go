package testutil

import (
	"context"

	"github.com/flexprice/pullpay/internal/domain/subscription"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/types"
)

// InMemorySubscriberStore implements subscription.Repository
type InMemorySubscriberStore struct {
	*InMemoryStore[*subscription.Subscriber]
}

func NewInMemorySubscriberStore() *InMemorySubscriberStore {
	return &InMemorySubscriberStore{
		InMemoryStore: NewInMemoryStore[*subscription.Subscriber](),
	}
}

func subscriberKey(instanceID string, address types.Address) string {
	return instanceID + "/" + address.String()
}

func (s *InMemorySubscriberStore) Get(ctx context.Context, instanceID string, address types.Address) (*subscription.Subscriber, error) {
	sub, err := s.InMemoryStore.Get(ctx, subscriberKey(instanceID, address))
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Subscriber not found").
			Mark(ierr.ErrNotFound)
	}
	return sub.Clone(), nil
}

func (s *InMemorySubscriberStore) Save(ctx context.Context, sub *subscription.Subscriber) error {
	if sub == nil {
		return ierr.NewError("subscriber cannot be nil").Mark(ierr.ErrValidation)
	}
	s.InMemoryStore.Put(ctx, subscriberKey(sub.InstanceID, sub.Address), sub.Clone())
	return nil
}

func (s *InMemorySubscriberStore) List(ctx context.Context, filter *types.SubscriberFilter) ([]*subscription.Subscriber, error) {
	if filter == nil {
		filter = &types.SubscriberFilter{}
	}
	items, err := s.InMemoryStore.List(ctx, filter, subscriberFilterFn, subscriberSortFn)
	if err != nil {
		return nil, err
	}
	out := make([]*subscription.Subscriber, 0, len(items))
	for _, sub := range items {
		out = append(out, sub.Clone())
	}
	return out, nil
}

func (s *InMemorySubscriberStore) Count(ctx context.Context, filter *types.SubscriberFilter) (int, error) {
	if filter == nil {
		filter = &types.SubscriberFilter{}
	}
	return s.InMemoryStore.Count(ctx, filter, subscriberFilterFn)
}

func subscriberFilterFn(_ context.Context, sub *subscription.Subscriber, filter interface{}) bool {
	f, ok := filter.(*types.SubscriberFilter)
	if !ok {
		return true
	}
	if f.InstanceID != "" && sub.InstanceID != f.InstanceID {
		return false
	}
	if f.DueAt != nil {
		if sub.Terminal != types.TerminalStateNone || sub.ActiveUntil.After(*f.DueAt) {
			return false
		}
	}
	return true
}

// oldest horizon first, the same order the postgres repository uses
func subscriberSortFn(i, j *subscription.Subscriber) bool {
	if i.ActiveUntil.Equal(j.ActiveUntil) {
		return i.Address < j.Address
	}
	return i.ActiveUntil.Before(j.ActiveUntil)
}
