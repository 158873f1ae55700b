package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/flexprice/pullpay/internal/asset"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/postgres"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/shopspring/decimal"
)

// assetGateway keeps balances, allowances and transfer receipts in postgres.
// Every movement runs in one transaction with the touched rows locked.
type assetGateway struct {
	db     postgres.IClient
	logger *logger.Logger
}

func NewAssetGateway(db postgres.IClient, logger *logger.Logger) asset.Book {
	return &assetGateway{db: db, logger: logger}
}

func (g *assetGateway) Mint(ctx context.Context, assetAddr, holder types.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ierr.NewError("mint amount must not be negative").
			WithHint("Amount must not be negative").
			Mark(ierr.ErrValidation)
	}
	return g.credit(ctx, g.db.Querier(ctx), assetAddr, holder, amount)
}

func (g *assetGateway) Approve(ctx context.Context, assetAddr, holder, spender types.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ierr.NewError("allowance must not be negative").
			WithHint("Amount must not be negative").
			Mark(ierr.ErrValidation)
	}
	_, err := g.db.Querier(ctx).ExecContext(ctx, `
	INSERT INTO asset_allowances (asset, holder, spender, amount)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (asset, holder, spender)
	DO UPDATE SET amount = EXCLUDED.amount, updated_at = now()`,
		assetAddr.String(), holder.String(), spender.String(), amount)
	return wrapErr(err, "allowance", "approve")
}

func (g *assetGateway) Allowance(ctx context.Context, assetAddr, holder, spender types.Address) (decimal.Decimal, error) {
	return g.amount(ctx, g.db.Querier(ctx),
		`SELECT amount FROM asset_allowances WHERE asset = $1 AND holder = $2 AND spender = $3`,
		assetAddr.String(), holder.String(), spender.String())
}

func (g *assetGateway) BalanceOf(ctx context.Context, assetAddr, holder types.Address) (decimal.Decimal, error) {
	return g.amount(ctx, g.db.Querier(ctx),
		`SELECT amount FROM asset_balances WHERE asset = $1 AND holder = $2`,
		assetAddr.String(), holder.String())
}

func (g *assetGateway) TransferFrom(
	ctx context.Context,
	assetAddr, spender, holder, recipient types.Address,
	amount decimal.Decimal,
) (*asset.Transfer, error) {
	if !amount.IsPositive() {
		return nil, ierr.NewError("transfer amount must be positive").
			WithHint("Amount must be positive").
			Mark(ierr.ErrValidation)
	}

	var transfer *asset.Transfer
	err := g.db.WithTx(ctx, func(ctx context.Context) error {
		q := g.db.Querier(ctx)

		allowance, err := g.amount(ctx, q,
			`SELECT amount FROM asset_allowances WHERE asset = $1 AND holder = $2 AND spender = $3 FOR UPDATE`,
			assetAddr.String(), holder.String(), spender.String())
		if err != nil {
			return err
		}
		balance, err := g.amount(ctx, q,
			`SELECT amount FROM asset_balances WHERE asset = $1 AND holder = $2 FOR UPDATE`,
			assetAddr.String(), holder.String())
		if err != nil {
			return err
		}

		details := map[string]any{
			"asset":  assetAddr,
			"holder": holder,
			"amount": amount.String(),
		}
		if allowance.LessThan(amount) {
			details["allowance"] = allowance.String()
			return ierr.WithError(asset.ErrInsufficientAllowance).
				WithReportableDetails(details).
				Mark(ierr.ErrChargeFailed)
		}
		if balance.LessThan(amount) {
			details["balance"] = balance.String()
			return ierr.WithError(asset.ErrInsufficientBalance).
				WithReportableDetails(details).
				Mark(ierr.ErrChargeFailed)
		}

		if _, err := q.ExecContext(ctx, `
		UPDATE asset_allowances SET amount = amount - $4, updated_at = now()
		WHERE asset = $1 AND holder = $2 AND spender = $3`,
			assetAddr.String(), holder.String(), spender.String(), amount); err != nil {
			return wrapErr(err, "allowance", "spend")
		}
		if err := g.debit(ctx, q, assetAddr, holder, amount); err != nil {
			return err
		}
		if err := g.credit(ctx, q, assetAddr, recipient, amount); err != nil {
			return err
		}

		t := &asset.Transfer{
			ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TRANSFER),
			Asset:     assetAddr,
			Spender:   spender,
			From:      holder,
			To:        recipient,
			Amount:    amount,
			CreatedAt: time.Now().UTC(),
		}
		if _, err := q.ExecContext(ctx, `
		INSERT INTO asset_transfers (id, asset, spender, from_holder, to_holder, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			t.ID, t.Asset.String(), t.Spender.String(), t.From.String(), t.To.String(), t.Amount, t.CreatedAt); err != nil {
			return wrapErr(err, "transfer", "record")
		}
		transfer = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transfer, nil
}

// Reverse undoes a recorded transfer once. The recipient must still hold the amount.
func (g *assetGateway) Reverse(ctx context.Context, t *asset.Transfer) error {
	if t == nil {
		return nil
	}

	return g.db.WithTx(ctx, func(ctx context.Context) error {
		q := g.db.Querier(ctx)

		var reversed bool
		err := q.GetContext(ctx, &reversed,
			`SELECT reversed FROM asset_transfers WHERE id = $1 FOR UPDATE`, t.ID)
		if err != nil {
			return wrapErr(err, "transfer", "reverse")
		}
		if reversed {
			return ierr.NewError("transfer already reversed").
				WithHint("Transfer was already reversed").
				WithReportableDetails(map[string]any{"transfer_id": t.ID}).
				Mark(ierr.ErrInvalidOperation)
		}

		held, err := g.amount(ctx, q,
			`SELECT amount FROM asset_balances WHERE asset = $1 AND holder = $2 FOR UPDATE`,
			t.Asset.String(), t.To.String())
		if err != nil {
			return err
		}
		if held.LessThan(t.Amount) {
			return ierr.NewError("recipient no longer holds the transferred amount").
				WithHint("Transfer can not be reversed").
				WithReportableDetails(map[string]any{"transfer_id": t.ID}).
				Mark(ierr.ErrInvalidOperation)
		}

		if err := g.debit(ctx, q, t.Asset, t.To, t.Amount); err != nil {
			return err
		}
		if err := g.credit(ctx, q, t.Asset, t.From, t.Amount); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `
		INSERT INTO asset_allowances (asset, holder, spender, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (asset, holder, spender)
		DO UPDATE SET amount = asset_allowances.amount + EXCLUDED.amount, updated_at = now()`,
			t.Asset.String(), t.From.String(), t.Spender.String(), t.Amount); err != nil {
			return wrapErr(err, "allowance", "restore")
		}
		if _, err := q.ExecContext(ctx,
			`UPDATE asset_transfers SET reversed = true WHERE id = $1`, t.ID); err != nil {
			return wrapErr(err, "transfer", "reverse")
		}

		g.logger.Debugw("reversed asset transfer", "transfer_id", t.ID, "amount", t.Amount.String())
		return nil
	})
}

// amount reads a single amount, treating a missing row as zero
func (g *assetGateway) amount(ctx context.Context, q postgres.Querier, query string, args ...interface{}) (decimal.Decimal, error) {
	var v decimal.Decimal
	err := q.GetContext(ctx, &v, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, wrapErr(err, "asset amount", "read")
	}
	return v, nil
}

func (g *assetGateway) credit(ctx context.Context, q postgres.Querier, assetAddr, holder types.Address, amount decimal.Decimal) error {
	_, err := q.ExecContext(ctx, `
	INSERT INTO asset_balances (asset, holder, amount)
	VALUES ($1, $2, $3)
	ON CONFLICT (asset, holder)
	DO UPDATE SET amount = asset_balances.amount + EXCLUDED.amount, updated_at = now()`,
		assetAddr.String(), holder.String(), amount)
	return wrapErr(err, "balance", "credit")
}

func (g *assetGateway) debit(ctx context.Context, q postgres.Querier, assetAddr, holder types.Address, amount decimal.Decimal) error {
	_, err := q.ExecContext(ctx, `
	UPDATE asset_balances SET amount = amount - $3, updated_at = now()
	WHERE asset = $1 AND holder = $2`,
		assetAddr.String(), holder.String(), amount)
	return wrapErr(err, "balance", "debit")
}
