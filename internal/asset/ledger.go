package asset

import (
	"context"
	"sync"
	"time"

	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/shopspring/decimal"
)

type allowanceKey struct {
	holder  types.Address
	spender types.Address
}

type book struct {
	balances   map[types.Address]decimal.Decimal
	allowances map[allowanceKey]decimal.Decimal
}

func newBook() *book {
	return &book{
		balances:   make(map[types.Address]decimal.Decimal),
		allowances: make(map[allowanceKey]decimal.Decimal),
	}
}

// Ledger is an in-process multi-asset Book. Balances live only as long as
// the process, so it is limited to local mode and tests.
type Ledger struct {
	mu        sync.Mutex
	books     map[types.Address]*book
	reversed  map[string]bool
	transfers int64
}

var _ Book = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{
		books:    make(map[types.Address]*book),
		reversed: make(map[string]bool),
	}
}

func (l *Ledger) bookFor(asset types.Address) *book {
	b, ok := l.books[asset]
	if !ok {
		b = newBook()
		l.books[asset] = b
	}
	return b
}

// Mint credits holder with amount of asset
func (l *Ledger) Mint(_ context.Context, asset, holder types.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ierr.NewError("mint amount must not be negative").
			WithHint("Amount must not be negative").
			Mark(ierr.ErrValidation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bookFor(asset)
	b.balances[holder] = b.balances[holder].Add(amount)
	return nil
}

// Approve sets the allowance holder grants to spender, replacing any previous value
func (l *Ledger) Approve(_ context.Context, asset, holder, spender types.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ierr.NewError("allowance must not be negative").
			WithHint("Amount must not be negative").
			Mark(ierr.ErrValidation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.bookFor(asset).allowances[allowanceKey{holder, spender}] = amount
	return nil
}

func (l *Ledger) Allowance(_ context.Context, asset, holder, spender types.Address) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.bookFor(asset).allowances[allowanceKey{holder, spender}], nil
}

func (l *Ledger) BalanceOf(_ context.Context, asset, holder types.Address) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.bookFor(asset).balances[holder], nil
}

func (l *Ledger) TransferFrom(
	_ context.Context,
	asset, spender, holder, recipient types.Address,
	amount decimal.Decimal,
) (*Transfer, error) {
	if !amount.IsPositive() {
		return nil, ierr.NewError("transfer amount must be positive").
			WithHint("Amount must be positive").
			Mark(ierr.ErrValidation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bookFor(asset)
	key := allowanceKey{holder, spender}
	details := map[string]any{
		"asset":  asset,
		"holder": holder,
		"amount": amount.String(),
	}

	if b.allowances[key].LessThan(amount) {
		details["allowance"] = b.allowances[key].String()
		return nil, ierr.WithError(ErrInsufficientAllowance).
			WithReportableDetails(details).
			Mark(ierr.ErrChargeFailed)
	}
	if b.balances[holder].LessThan(amount) {
		details["balance"] = b.balances[holder].String()
		return nil, ierr.WithError(ErrInsufficientBalance).
			WithReportableDetails(details).
			Mark(ierr.ErrChargeFailed)
	}

	b.allowances[key] = b.allowances[key].Sub(amount)
	b.balances[holder] = b.balances[holder].Sub(amount)
	b.balances[recipient] = b.balances[recipient].Add(amount)

	l.transfers++
	return &Transfer{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TRANSFER),
		Asset:     asset,
		Spender:   spender,
		From:      holder,
		To:        recipient,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (l *Ledger) Reverse(_ context.Context, t *Transfer) error {
	if t == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.reversed[t.ID] {
		return ierr.NewError("transfer already reversed").
			WithHint("Transfer was already reversed").
			WithReportableDetails(map[string]any{"transfer_id": t.ID}).
			Mark(ierr.ErrInvalidOperation)
	}

	b := l.bookFor(t.Asset)
	if b.balances[t.To].LessThan(t.Amount) {
		return ierr.NewError("recipient no longer holds the transferred amount").
			WithHint("Transfer can not be reversed").
			WithReportableDetails(map[string]any{"transfer_id": t.ID}).
			Mark(ierr.ErrInvalidOperation)
	}

	key := allowanceKey{t.From, t.Spender}
	b.balances[t.To] = b.balances[t.To].Sub(t.Amount)
	b.balances[t.From] = b.balances[t.From].Add(t.Amount)
	b.allowances[key] = b.allowances[key].Add(t.Amount)
	l.reversed[t.ID] = true
	return nil
}

// Transfers returns how many transfers succeeded, reversed ones included
func (l *Ledger) Transfers() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfers
}
