package postgres

import (
	"context"
	"strings"

	"github.com/flexprice/pullpay/internal/domain/charge"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/postgres"
	"github.com/flexprice/pullpay/internal/types"
)

type chargeRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

func NewChargeRepository(db postgres.IClient, logger *logger.Logger) charge.Repository {
	return &chargeRepository{db: db, logger: logger}
}

const chargeColumns = `id, instance_id, subscriber, kind, intervals, amount, status, idempotency_key, reason, created_at`

func (r *chargeRepository) Create(ctx context.Context, c *charge.Charge) error {
	query := `
	INSERT INTO charges (` + chargeColumns + `
	) VALUES (
		:id, :instance_id, :subscriber, :kind, :intervals, :amount, :status, :idempotency_key, :reason, :created_at
	)`

	_, err := r.db.Querier(ctx).NamedExecContext(ctx, query, c)
	return wrapErr(err, "charge", "create")
}

// GetByIdempotencyKey returns the succeeded charge recorded under key
func (r *chargeRepository) GetByIdempotencyKey(ctx context.Context, key string) (*charge.Charge, error) {
	var c charge.Charge
	err := r.db.Querier(ctx).GetContext(ctx, &c,
		`SELECT `+chargeColumns+` FROM charges WHERE idempotency_key = $1 AND status = $2`,
		key, types.ChargeStatusSucceeded)
	if err != nil {
		return nil, wrapErr(err, "charge", "get")
	}
	return &c, nil
}

func (r *chargeRepository) List(ctx context.Context, filter *types.ChargeFilter) ([]*charge.Charge, error) {
	where, args := chargeWhere(filter)
	args = append(args, filter.GetLimit(), filter.GetOffset())

	query := `SELECT ` + chargeColumns + ` FROM charges` + where +
		` ORDER BY created_at, id LIMIT $` + itoa(len(args)-1) + ` OFFSET $` + itoa(len(args))

	var charges []*charge.Charge
	if err := r.db.Querier(ctx).SelectContext(ctx, &charges, query, args...); err != nil {
		return nil, wrapErr(err, "charge", "list")
	}
	return charges, nil
}

func (r *chargeRepository) Count(ctx context.Context, filter *types.ChargeFilter) (int, error) {
	where, args := chargeWhere(filter)

	var count int
	if err := r.db.Querier(ctx).GetContext(ctx, &count, `SELECT COUNT(*) FROM charges`+where, args...); err != nil {
		return 0, wrapErr(err, "charge", "count")
	}
	return count, nil
}

func chargeWhere(filter *types.ChargeFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(col string, v interface{}) {
		args = append(args, v)
		conds = append(conds, col+" = $"+itoa(len(args)))
	}
	if filter.InstanceID != "" {
		add("instance_id", filter.InstanceID)
	}
	if !filter.Subscriber.IsZero() {
		add("subscriber", filter.Subscriber.String())
	}
	if filter.Kind != "" {
		add("kind", string(filter.Kind))
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
