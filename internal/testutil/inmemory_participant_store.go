package testutil

import (
	"context"

	"github.com/flexprice/pullpay/internal/domain/participant"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/types"
)

// InMemoryParticipantStore implements participant.Repository
type InMemoryParticipantStore struct {
	*InMemoryStore[*participant.Participant]
}

func NewInMemoryParticipantStore() *InMemoryParticipantStore {
	return &InMemoryParticipantStore{
		InMemoryStore: NewInMemoryStore[*participant.Participant](),
	}
}

func participantKey(address types.Address, kind types.ParticipantKind) string {
	return address.String() + "/" + string(kind)
}

func (s *InMemoryParticipantStore) Register(ctx context.Context, p *participant.Participant) error {
	key := participantKey(p.Address, p.Kind)
	if _, err := s.InMemoryStore.Get(ctx, key); err == nil {
		return nil
	}
	cp := *p
	s.InMemoryStore.Put(ctx, key, &cp)
	return nil
}

func (s *InMemoryParticipantStore) Unregister(ctx context.Context, address types.Address, kind types.ParticipantKind) error {
	if err := s.InMemoryStore.Delete(ctx, participantKey(address, kind)); err != nil && !ierr.IsNotFound(err) {
		return err
	}
	return nil
}

func (s *InMemoryParticipantStore) Kinds(ctx context.Context, address types.Address) ([]types.ParticipantKind, error) {
	items, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, p *participant.Participant, _ interface{}) bool {
		return p.Address == address
	}, func(i, j *participant.Participant) bool {
		return i.Kind < j.Kind
	})
	if err != nil {
		return nil, err
	}
	kinds := make([]types.ParticipantKind, 0, len(items))
	for _, p := range items {
		kinds = append(kinds, p.Kind)
	}
	return kinds, nil
}
