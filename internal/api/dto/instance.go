package dto

import (
	"context"
	"time"

	"github.com/flexprice/pullpay/internal/domain/instance"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/hook"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/flexprice/pullpay/internal/validator"
	"github.com/shopspring/decimal"
)

// ProduceInstanceRequest carries the billing terms of a new instance. The
// caller becomes its owner.
type ProduceInstanceRequest struct {
	// Salt makes the derived instance address unique per owner
	Salt string `json:"salt" validate:"required"`

	IntervalSeconds int64 `json:"interval_seconds" validate:"required,gt=0"`
	IntervalsMin    int   `json:"intervals_min" validate:"required,min=1"`
	IntervalsMax    int   `json:"intervals_max" validate:"required,min=1"`
	MaxRetries      int   `json:"max_retries" validate:"min=0"`
	// MaxCatchUpIntervals defaults to intervals_max
	MaxCatchUpIntervals *int `json:"max_catch_up_intervals,omitempty" validate:"omitempty,min=1"`

	Asset string          `json:"asset" validate:"required,address"`
	Price decimal.Decimal `json:"price" swaggertype:"string"`

	Controller       string `json:"controller,omitempty" validate:"omitempty,address"`
	Recipient        string `json:"recipient" validate:"required,address"`
	RecipientShareID *int64 `json:"recipient_share_id,omitempty"`

	Hook      string            `json:"hook,omitempty"`
	Community *CommunityRequest `json:"community,omitempty"`
}

// CommunityRequest pairs a role registry with the role to grant
type CommunityRequest struct {
	Address string `json:"address" validate:"required,address"`
	RoleID  int64  `json:"role_id"`
}

func (r *ProduceInstanceRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Community != nil {
		if err := validator.ValidateRequest(r.Community); err != nil {
			return err
		}
	}
	if !r.Price.IsPositive() {
		return ierr.NewError("price must be positive").
			WithHint("Price must be greater than zero").
			Mark(ierr.ErrValidation)
	}
	return hook.ValidateRef(r.Hook)
}

// ToInstance builds the domain model. Registry checks happen in the service.
func (r *ProduceInstanceRequest) ToInstance(ctx context.Context, owner types.Address) *instance.Instance {
	maxCatchUp := r.IntervalsMax
	if r.MaxCatchUpIntervals != nil {
		maxCatchUp = *r.MaxCatchUpIntervals
	}

	inst := &instance.Instance{
		ID:                  types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INSTANCE),
		Address:             types.DeriveAddress(owner, r.Salt),
		Owner:               owner,
		Interval:            time.Duration(r.IntervalSeconds) * time.Second,
		IntervalsMin:        r.IntervalsMin,
		IntervalsMax:        r.IntervalsMax,
		MaxRetries:          r.MaxRetries,
		MaxCatchUpIntervals: maxCatchUp,
		Asset:               types.Address(normalize(r.Asset)),
		Price:               r.Price,
		Controller:          types.Address(normalize(r.Controller)),
		Recipient:           types.Address(normalize(r.Recipient)),
		RecipientShareID:    r.RecipientShareID,
		Hook:                r.Hook,
		Callers:             []types.Address{},
		BaseModel:           types.GetDefaultBaseModel(ctx),
	}
	if inst.Controller == "" {
		inst.Controller = types.ZeroAddress
	}
	if r.Community != nil {
		inst.Community = &instance.Community{
			Address: types.Address(normalize(r.Community.Address)),
			RoleID:  r.Community.RoleID,
		}
	}
	return inst
}

func normalize(s string) string {
	if s == "" {
		return ""
	}
	a, err := types.ParseAddress(s)
	if err != nil {
		return s
	}
	return a.String()
}

// InstanceResponse represents a billing instance in responses
type InstanceResponse struct {
	*instance.Instance
	IntervalSeconds  int64           `json:"interval_seconds"`
	ActivationAmount decimal.Decimal `json:"activation_amount" swaggertype:"string"`
}

func NewInstanceResponse(inst *instance.Instance) *InstanceResponse {
	return &InstanceResponse{
		Instance:         inst,
		IntervalSeconds:  int64(inst.Interval / time.Second),
		ActivationAmount: inst.ActivationAmount(),
	}
}

// ListInstancesResponse represents a page of instances
type ListInstancesResponse = types.ListResponse[*InstanceResponse]

// SetHookRequest replaces the post-charge hook; an empty hook clears it
type SetHookRequest struct {
	Hook string `json:"hook"`
}

func (r *SetHookRequest) Validate() error {
	return hook.ValidateRef(r.Hook)
}

// SetCommunityRequest replaces the community settings
type SetCommunityRequest struct {
	CommunityRequest
}

func (r *SetCommunityRequest) Validate() error {
	if err := validator.ValidateRequest(&r.CommunityRequest); err != nil {
		return ierr.WithError(err).
			WithHint("Community address is invalid").
			Mark(ierr.ErrInvalidCommunitySettings)
	}
	return nil
}
