package dto

import (
	"time"

	"github.com/flexprice/pullpay/internal/domain/charge"
	"github.com/flexprice/pullpay/internal/domain/subscription"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/flexprice/pullpay/internal/validator"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// SubscribeRequest starts a self-service subscription for the caller
type SubscribeRequest struct {
	Intervals int `json:"intervals"`
}

func (r *SubscribeRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// SubscribeFromControllerRequest starts a delegated subscription. The
// controller sets the price.
type SubscribeFromControllerRequest struct {
	Subscriber string          `json:"subscriber" validate:"required,address"`
	Price      decimal.Decimal `json:"price" swaggertype:"string"`
	Intervals  int             `json:"intervals"`
}

func (r *SubscribeFromControllerRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if !r.Price.IsPositive() {
		return ierr.NewError("price must be positive").
			WithHint("Price must be greater than zero").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// BatchRequest names the subscribers a charge, restore or cancel sweep covers
type BatchRequest struct {
	Subscribers []string `json:"subscribers" validate:"required,min=1,dive,address"`
}

func (r *BatchRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// Addresses returns the normalized, de-duplicated subscriber list
func (r *BatchRequest) Addresses() ([]types.Address, error) {
	addrs, err := types.ParseAddresses(r.Subscribers)
	if err != nil {
		return nil, err
	}
	return lo.Uniq(addrs), nil
}

// SubscriberResponse is the stored record plus its derived state
type SubscriberResponse struct {
	*subscription.Subscriber
	State  types.SubscriptionState `json:"state"`
	Funded bool                    `json:"funded"`
}

func NewSubscriberResponse(s *subscription.Subscriber, now time.Time) *SubscriberResponse {
	return &SubscriberResponse{
		Subscriber: s,
		State:      s.State(now),
		Funded:     s.Funded(now),
	}
}

// SubscriberStatusResponse answers isActive. It is also returned for
// addresses that never subscribed.
type SubscriberStatusResponse struct {
	Address     types.Address           `json:"address"`
	Funded      bool                    `json:"funded"`
	State       types.SubscriptionState `json:"state"`
	ActiveUntil *time.Time              `json:"active_until,omitempty"`
	RetriesUsed int                     `json:"retries_used"`
}

// EntryResult is the outcome of one subscriber within a batch
type EntryResult struct {
	Subscriber types.Address           `json:"subscriber"`
	Outcome    types.Outcome           `json:"outcome"`
	State      types.SubscriptionState `json:"state,omitempty"`
	Amount     *decimal.Decimal        `json:"amount,omitempty" swaggertype:"string"`
	Error      string                  `json:"error,omitempty"`
}

// BatchResponse collects the per-entry outcomes in request order
type BatchResponse struct {
	Results []*EntryResult `json:"results"`
}

// Count returns how many entries ended with outcome
func (r *BatchResponse) Count(outcome types.Outcome) int {
	return lo.CountBy(r.Results, func(e *EntryResult) bool {
		return e.Outcome == outcome
	})
}

// ChargeResponse represents one pull attempt
type ChargeResponse struct {
	*charge.Charge
}

// ListChargesResponse represents a page of charge attempts
type ListChargesResponse struct {
	types.ListResponse[*ChargeResponse]
	// TotalPulled sums the succeeded charges on this page
	TotalPulled decimal.Decimal `json:"total_pulled" swaggertype:"string"`
}
