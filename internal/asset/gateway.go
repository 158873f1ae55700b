package asset

import (
	"context"
	"time"

	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientAllowance is returned when the spender is not approved for the amount
	ErrInsufficientAllowance = ierr.NewError("insufficient allowance").
					WithHint("The payer has not approved enough funds").
					Mark(ierr.ErrChargeFailed)
	// ErrInsufficientBalance is returned when the holder does not own the amount
	ErrInsufficientBalance = ierr.NewError("insufficient balance").
				WithHint("The payer does not hold enough funds").
				Mark(ierr.ErrChargeFailed)
)

// Gateway is a transferable-value asset with an allowance model.
// Every failing call leaves balances and allowances untouched.
type Gateway interface {
	Allowance(ctx context.Context, asset, holder, spender types.Address) (decimal.Decimal, error)
	BalanceOf(ctx context.Context, asset, holder types.Address) (decimal.Decimal, error)
	// TransferFrom moves amount from holder to recipient, spending the
	// allowance holder granted to spender
	TransferFrom(ctx context.Context, asset, spender, holder, recipient types.Address, amount decimal.Decimal) (*Transfer, error)
	// Reverse undoes a transfer, restoring both the balances and the allowance
	Reverse(ctx context.Context, t *Transfer) error
}

// Book is a Gateway whose balances and allowances are kept by this service:
// holders are credited with Mint and grant spenders with Approve.
type Book interface {
	Gateway
	Mint(ctx context.Context, asset, holder types.Address, amount decimal.Decimal) error
	// Approve sets the allowance, replacing any previous value
	Approve(ctx context.Context, asset, holder, spender types.Address, amount decimal.Decimal) error
}

// Transfer is the receipt of one successful TransferFrom
type Transfer struct {
	ID        string          `json:"id"`
	Asset     types.Address   `json:"asset"`
	Spender   types.Address   `json:"spender"`
	From      types.Address   `json:"from"`
	To        types.Address   `json:"to"`
	Amount    decimal.Decimal `json:"amount" swaggertype:"string"`
	CreatedAt time.Time       `json:"created_at"`
}
