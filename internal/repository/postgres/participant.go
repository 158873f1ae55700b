package postgres

import (
	"context"

	"github.com/flexprice/pullpay/internal/domain/participant"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/postgres"
	"github.com/flexprice/pullpay/internal/types"
)

type participantRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

func NewParticipantRepository(db postgres.IClient, logger *logger.Logger) participant.Repository {
	return &participantRepository{db: db, logger: logger}
}

func (r *participantRepository) Register(ctx context.Context, p *participant.Participant) error {
	_, err := r.db.Querier(ctx).ExecContext(ctx,
		`INSERT INTO participants (address, kind, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (address, kind) DO NOTHING`,
		p.Address.String(), string(p.Kind), p.CreatedAt)
	return wrapErr(err, "participant", "register")
}

func (r *participantRepository) Unregister(ctx context.Context, address types.Address, kind types.ParticipantKind) error {
	_, err := r.db.Querier(ctx).ExecContext(ctx,
		`DELETE FROM participants WHERE address = $1 AND kind = $2`,
		address.String(), string(kind))
	return wrapErr(err, "participant", "unregister")
}

func (r *participantRepository) Kinds(ctx context.Context, address types.Address) ([]types.ParticipantKind, error) {
	var kinds []types.ParticipantKind
	err := r.db.Querier(ctx).SelectContext(ctx, &kinds,
		`SELECT kind FROM participants WHERE address = $1 ORDER BY kind`, address.String())
	if err != nil {
		return nil, wrapErr(err, "participant", "list")
	}
	return kinds, nil
}
