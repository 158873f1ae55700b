package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/flexprice/pullpay/internal/domain/instance"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/postgres"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type instanceRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

func NewInstanceRepository(db postgres.IClient, logger *logger.Logger) instance.Repository {
	return &instanceRepository{db: db, logger: logger}
}

const instanceColumns = `
	id, address, owner, interval_seconds, intervals_min, intervals_max, max_retries,
	max_catch_up_intervals, asset, price, controller, recipient, recipient_share_id, hook,
	community_address, community_role_id, callers, initialized_at,
	created_at, updated_at, created_by, updated_by`

type instanceRow struct {
	ID                  string          `db:"id"`
	Address             string          `db:"address"`
	Owner               string          `db:"owner"`
	IntervalSeconds     int64           `db:"interval_seconds"`
	IntervalsMin        int             `db:"intervals_min"`
	IntervalsMax        int             `db:"intervals_max"`
	MaxRetries          int             `db:"max_retries"`
	MaxCatchUpIntervals int             `db:"max_catch_up_intervals"`
	Asset               string          `db:"asset"`
	Price               decimal.Decimal `db:"price"`
	Controller          string          `db:"controller"`
	Recipient           string          `db:"recipient"`
	RecipientShareID    sql.NullInt64   `db:"recipient_share_id"`
	Hook                string          `db:"hook"`
	CommunityAddress    sql.NullString  `db:"community_address"`
	CommunityRoleID     sql.NullInt64   `db:"community_role_id"`
	Callers             pq.StringArray  `db:"callers"`
	InitializedAt       sql.NullTime    `db:"initialized_at"`
	CreatedAt           time.Time       `db:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"`
	CreatedBy           string          `db:"created_by"`
	UpdatedBy           string          `db:"updated_by"`
}

func toInstanceRow(i *instance.Instance) *instanceRow {
	row := &instanceRow{
		ID:                  i.ID,
		Address:             i.Address.String(),
		Owner:               i.Owner.String(),
		IntervalSeconds:     int64(i.Interval / time.Second),
		IntervalsMin:        i.IntervalsMin,
		IntervalsMax:        i.IntervalsMax,
		MaxRetries:          i.MaxRetries,
		MaxCatchUpIntervals: i.MaxCatchUpIntervals,
		Asset:               i.Asset.String(),
		Price:               i.Price,
		Controller:          i.Controller.String(),
		Recipient:           i.Recipient.String(),
		Hook:                i.Hook,
		Callers:             lo.Map(i.Callers, func(a types.Address, _ int) string { return a.String() }),
		CreatedAt:           i.CreatedAt,
		UpdatedAt:           i.UpdatedAt,
		CreatedBy:           i.CreatedBy,
		UpdatedBy:           i.UpdatedBy,
	}
	if i.RecipientShareID != nil {
		row.RecipientShareID = sql.NullInt64{Int64: *i.RecipientShareID, Valid: true}
	}
	if i.Community != nil {
		row.CommunityAddress = sql.NullString{String: i.Community.Address.String(), Valid: true}
		row.CommunityRoleID = sql.NullInt64{Int64: i.Community.RoleID, Valid: true}
	}
	if i.InitializedAt != nil {
		row.InitializedAt = sql.NullTime{Time: *i.InitializedAt, Valid: true}
	}
	return row
}

func (row *instanceRow) toDomain() *instance.Instance {
	i := &instance.Instance{
		ID:                  row.ID,
		Address:             types.Address(row.Address),
		Owner:               types.Address(row.Owner),
		Interval:            time.Duration(row.IntervalSeconds) * time.Second,
		IntervalsMin:        row.IntervalsMin,
		IntervalsMax:        row.IntervalsMax,
		MaxRetries:          row.MaxRetries,
		MaxCatchUpIntervals: row.MaxCatchUpIntervals,
		Asset:               types.Address(row.Asset),
		Price:               row.Price,
		Controller:          types.Address(row.Controller),
		Recipient:           types.Address(row.Recipient),
		Hook:                row.Hook,
		Callers:             lo.Map(row.Callers, func(s string, _ int) types.Address { return types.Address(s) }),
		BaseModel: types.BaseModel{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
			CreatedBy: row.CreatedBy,
			UpdatedBy: row.UpdatedBy,
		},
	}
	if row.RecipientShareID.Valid {
		i.RecipientShareID = lo.ToPtr(row.RecipientShareID.Int64)
	}
	if row.CommunityAddress.Valid {
		i.Community = &instance.Community{
			Address: types.Address(row.CommunityAddress.String),
			RoleID:  row.CommunityRoleID.Int64,
		}
	}
	if row.InitializedAt.Valid {
		i.InitializedAt = lo.ToPtr(row.InitializedAt.Time.UTC())
	}
	return i
}

func (r *instanceRepository) Create(ctx context.Context, inst *instance.Instance) error {
	query := `
	INSERT INTO instances (` + instanceColumns + `
	) VALUES (
		:id, :address, :owner, :interval_seconds, :intervals_min, :intervals_max, :max_retries,
		:max_catch_up_intervals, :asset, :price, :controller, :recipient, :recipient_share_id, :hook,
		:community_address, :community_role_id, :callers, :initialized_at,
		:created_at, :updated_at, :created_by, :updated_by
	)`

	_, err := r.db.Querier(ctx).NamedExecContext(ctx, query, toInstanceRow(inst))
	return wrapErr(err, "instance", "create")
}

func (r *instanceRepository) Get(ctx context.Context, id string) (*instance.Instance, error) {
	var row instanceRow
	err := r.db.Querier(ctx).GetContext(ctx, &row,
		`SELECT `+instanceColumns+` FROM instances WHERE id = $1`, id)
	if err != nil {
		return nil, wrapErr(err, "instance", "get")
	}
	return row.toDomain(), nil
}

func (r *instanceRepository) GetByAddress(ctx context.Context, address types.Address) (*instance.Instance, error) {
	var row instanceRow
	err := r.db.Querier(ctx).GetContext(ctx, &row,
		`SELECT `+instanceColumns+` FROM instances WHERE address = $1`, address.String())
	if err != nil {
		return nil, wrapErr(err, "instance", "get")
	}
	return row.toDomain(), nil
}

func (r *instanceRepository) Update(ctx context.Context, inst *instance.Instance) error {
	query := `
	UPDATE instances SET
		hook = :hook,
		community_address = :community_address,
		community_role_id = :community_role_id,
		callers = :callers,
		initialized_at = :initialized_at,
		updated_at = :updated_at,
		updated_by = :updated_by
	WHERE id = :id`

	inst.UpdatedAt = time.Now().UTC()
	inst.UpdatedBy = types.GetCaller(ctx).String()

	res, err := r.db.Querier(ctx).NamedExecContext(ctx, query, toInstanceRow(inst))
	if err != nil {
		return wrapErr(err, "instance", "update")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return wrapErr(sql.ErrNoRows, "instance", "update")
	}
	return nil
}

func (r *instanceRepository) List(ctx context.Context, filter types.QueryFilter) ([]*instance.Instance, error) {
	var rows []instanceRow
	err := r.db.Querier(ctx).SelectContext(ctx, &rows,
		`SELECT `+instanceColumns+` FROM instances ORDER BY created_at, id LIMIT $1 OFFSET $2`,
		filter.GetLimit(), filter.GetOffset())
	if err != nil {
		return nil, wrapErr(err, "instance", "list")
	}
	return lo.Map(rows, func(row instanceRow, _ int) *instance.Instance { return row.toDomain() }), nil
}

func (r *instanceRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.Querier(ctx).GetContext(ctx, &count, `SELECT COUNT(*) FROM instances`); err != nil {
		return 0, wrapErr(err, "instance", "count")
	}
	return count, nil
}
