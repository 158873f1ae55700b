package registry

import (
	"context"
	"time"

	"github.com/flexprice/pullpay/internal/cache"
	"github.com/flexprice/pullpay/internal/domain/participant"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/samber/lo"
)

// Registry answers whether an address is a recognized ecosystem participant
type Registry interface {
	// IsRecognized is true for registered controllers, communities and hooks
	IsRecognized(ctx context.Context, address types.Address) (bool, error)
	// IsInstance is true only for registered billing instances
	IsInstance(ctx context.Context, address types.Address) (bool, error)
	Register(ctx context.Context, address types.Address, kind types.ParticipantKind) error
	Unregister(ctx context.Context, address types.Address, kind types.ParticipantKind) error
}

type registry struct {
	repo   participant.Repository
	cache  cache.Cache
	ttl    time.Duration
	logger *logger.Logger
}

// NewRegistry returns a registry whose membership lookups are cached for ttl
func NewRegistry(repo participant.Repository, c cache.Cache, ttl time.Duration, log *logger.Logger) Registry {
	return &registry{
		repo:   repo,
		cache:  c,
		ttl:    ttl,
		logger: log,
	}
}

func (r *registry) IsRecognized(ctx context.Context, address types.Address) (bool, error) {
	kinds, err := r.kinds(ctx, address)
	if err != nil {
		return false, err
	}
	return lo.ContainsBy(kinds, func(k types.ParticipantKind) bool {
		return k != types.ParticipantKindInstance
	}), nil
}

func (r *registry) IsInstance(ctx context.Context, address types.Address) (bool, error) {
	kinds, err := r.kinds(ctx, address)
	if err != nil {
		return false, err
	}
	return lo.Contains(kinds, types.ParticipantKindInstance), nil
}

func (r *registry) Register(ctx context.Context, address types.Address, kind types.ParticipantKind) error {
	if err := kind.Validate(); err != nil {
		return err
	}
	if address.IsZero() {
		return ierr.NewError("zero address can not be registered").
			WithHint("A non-zero address is required").
			Mark(ierr.ErrValidation)
	}

	err := r.repo.Register(ctx, &participant.Participant{
		Address:   address,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil && !ierr.IsAlreadyExists(err) {
		return err
	}

	r.cache.Delete(ctx, cache.GenerateKey(cache.PrefixParticipant, address))
	r.logger.Infow("registered participant", "address", address, "kind", kind)
	return nil
}

func (r *registry) Unregister(ctx context.Context, address types.Address, kind types.ParticipantKind) error {
	if err := r.repo.Unregister(ctx, address, kind); err != nil {
		return err
	}

	r.cache.Delete(ctx, cache.GenerateKey(cache.PrefixParticipant, address))
	r.logger.Infow("unregistered participant", "address", address, "kind", kind)
	return nil
}

func (r *registry) kinds(ctx context.Context, address types.Address) ([]types.ParticipantKind, error) {
	if address.IsZero() {
		return nil, nil
	}

	key := cache.GenerateKey(cache.PrefixParticipant, address)
	if cached, ok := r.cache.Get(ctx, key); ok {
		if kinds, ok := cached.([]types.ParticipantKind); ok {
			return kinds, nil
		}
	}

	kinds, err := r.repo.Kinds(ctx, address)
	if err != nil {
		return nil, err
	}

	r.cache.Set(ctx, key, kinds, r.ttl)
	return kinds, nil
}
