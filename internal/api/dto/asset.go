package dto

import (
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/flexprice/pullpay/internal/validator"
	"github.com/shopspring/decimal"
)

// MintRequest credits a holder on the development ledger
type MintRequest struct {
	Holder string          `json:"holder" validate:"required,address"`
	Amount decimal.Decimal `json:"amount" swaggertype:"string"`
}

func (r *MintRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Amount.IsNegative() {
		return ierr.NewError("amount must not be negative").
			WithHint("Amount must not be negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ApproveRequest sets the caller's allowance for spender. Spender defaults to the relay.
type ApproveRequest struct {
	Spender string          `json:"spender,omitempty" validate:"omitempty,address"`
	Amount  decimal.Decimal `json:"amount" swaggertype:"string"`
}

func (r *ApproveRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Amount.IsNegative() {
		return ierr.NewError("amount must not be negative").
			WithHint("Amount must not be negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// BalanceResponse reports a holder's position in one asset
type BalanceResponse struct {
	Asset     types.Address   `json:"asset"`
	Holder    types.Address   `json:"holder"`
	Balance   decimal.Decimal `json:"balance" swaggertype:"string"`
	Allowance decimal.Decimal `json:"relay_allowance" swaggertype:"string"`
}
