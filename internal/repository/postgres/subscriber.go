package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/flexprice/pullpay/internal/domain/subscription"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/postgres"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/samber/lo"
)

type subscriberRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

func NewSubscriberRepository(db postgres.IClient, logger *logger.Logger) subscription.Repository {
	return &subscriberRepository{db: db, logger: logger}
}

const subscriberColumns = `id, instance_id, address, active_until, retries_used, terminal, role_granted,
	created_at, updated_at, created_by, updated_by`

type subscriberRow struct {
	ID          string       `db:"id"`
	InstanceID  string       `db:"instance_id"`
	Address     string       `db:"address"`
	ActiveUntil sql.NullTime `db:"active_until"`
	RetriesUsed int          `db:"retries_used"`
	Terminal    string       `db:"terminal"`
	RoleGranted bool         `db:"role_granted"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
	CreatedBy   string       `db:"created_by"`
	UpdatedBy   string       `db:"updated_by"`
}

func toSubscriberRow(s *subscription.Subscriber) *subscriberRow {
	return &subscriberRow{
		ID:          s.ID,
		InstanceID:  s.InstanceID,
		Address:     s.Address.String(),
		ActiveUntil: sql.NullTime{Time: s.ActiveUntil, Valid: !s.ActiveUntil.IsZero()},
		RetriesUsed: s.RetriesUsed,
		Terminal:    string(lo.Ternary(s.Terminal == "", types.TerminalStateNone, s.Terminal)),
		RoleGranted: s.RoleGranted,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		CreatedBy:   s.CreatedBy,
		UpdatedBy:   s.UpdatedBy,
	}
}

func (row *subscriberRow) toDomain() *subscription.Subscriber {
	s := &subscription.Subscriber{
		ID:          row.ID,
		InstanceID:  row.InstanceID,
		Address:     types.Address(row.Address),
		RetriesUsed: row.RetriesUsed,
		Terminal:    types.TerminalState(row.Terminal),
		RoleGranted: row.RoleGranted,
		BaseModel: types.BaseModel{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
			CreatedBy: row.CreatedBy,
			UpdatedBy: row.UpdatedBy,
		},
	}
	if row.ActiveUntil.Valid {
		s.ActiveUntil = row.ActiveUntil.Time.UTC()
	}
	return s
}

func (r *subscriberRepository) Get(ctx context.Context, instanceID string, address types.Address) (*subscription.Subscriber, error) {
	var row subscriberRow
	err := r.db.Querier(ctx).GetContext(ctx, &row,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE instance_id = $1 AND address = $2`,
		instanceID, address.String())
	if err != nil {
		return nil, wrapErr(err, "subscriber", "get")
	}
	return row.toDomain(), nil
}

// Save upserts on (instance_id, address); the original created_* columns are kept
func (r *subscriberRepository) Save(ctx context.Context, s *subscription.Subscriber) error {
	query := `
	INSERT INTO subscribers (` + subscriberColumns + `
	) VALUES (
		:id, :instance_id, :address, :active_until, :retries_used, :terminal, :role_granted,
		:created_at, :updated_at, :created_by, :updated_by
	)
	ON CONFLICT (instance_id, address) DO UPDATE SET
		active_until = EXCLUDED.active_until,
		retries_used = EXCLUDED.retries_used,
		terminal = EXCLUDED.terminal,
		role_granted = EXCLUDED.role_granted,
		updated_at = EXCLUDED.updated_at,
		updated_by = EXCLUDED.updated_by`

	_, err := r.db.Querier(ctx).NamedExecContext(ctx, query, toSubscriberRow(s))
	return wrapErr(err, "subscriber", "save")
}

func (r *subscriberRepository) List(ctx context.Context, filter *types.SubscriberFilter) ([]*subscription.Subscriber, error) {
	where, args := subscriberWhere(filter)
	args = append(args, filter.GetLimit(), filter.GetOffset())

	query := `SELECT ` + subscriberColumns + ` FROM subscribers` + where +
		` ORDER BY active_until NULLS LAST, id LIMIT $` + itoa(len(args)-1) + ` OFFSET $` + itoa(len(args))

	var rows []subscriberRow
	if err := r.db.Querier(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapErr(err, "subscriber", "list")
	}
	return lo.Map(rows, func(row subscriberRow, _ int) *subscription.Subscriber { return row.toDomain() }), nil
}

func (r *subscriberRepository) Count(ctx context.Context, filter *types.SubscriberFilter) (int, error) {
	where, args := subscriberWhere(filter)

	var count int
	if err := r.db.Querier(ctx).GetContext(ctx, &count, `SELECT COUNT(*) FROM subscribers`+where, args...); err != nil {
		return 0, wrapErr(err, "subscriber", "count")
	}
	return count, nil
}

func subscriberWhere(filter *types.SubscriberFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.InstanceID != "" {
		args = append(args, filter.InstanceID)
		conds = append(conds, "instance_id = $"+itoa(len(args)))
	}
	if filter.DueAt != nil {
		args = append(args, types.TerminalStateNone, *filter.DueAt)
		conds = append(conds,
			"terminal = $"+itoa(len(args)-1),
			"active_until IS NOT NULL",
			"active_until <= $"+itoa(len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
