package instance

import (
	"time"

	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Instance is one billing instance: the immutable billing terms plus the
// few owner-mutable extension points (hook, community, callers).
type Instance struct {
	ID      string        `db:"id" json:"id"`
	Address types.Address `db:"address" json:"address"`
	Owner   types.Address `db:"owner" json:"owner"`

	Interval     time.Duration `db:"interval" json:"interval"`
	IntervalsMin int           `db:"intervals_min" json:"intervals_min"`
	IntervalsMax int           `db:"intervals_max" json:"intervals_max"`
	MaxRetries   int           `db:"max_retries" json:"max_retries"`
	// MaxCatchUpIntervals bounds how many overdue intervals restore may pull at once
	MaxCatchUpIntervals int `db:"max_catch_up_intervals" json:"max_catch_up_intervals"`

	Asset types.Address   `db:"asset" json:"asset"`
	Price decimal.Decimal `db:"price" json:"price" swaggertype:"string"`

	// Controller is the zero address when subscriptions are self-service
	Controller types.Address `db:"controller" json:"controller"`

	Recipient        types.Address `db:"recipient" json:"recipient"`
	RecipientShareID *int64        `db:"recipient_share_id" json:"recipient_share_id,omitempty"`

	// Hook is a reference understood by the hook resolver, empty when unset
	Hook string `db:"hook" json:"hook,omitempty"`

	Community *Community `db:"-" json:"community,omitempty"`

	Callers []types.Address `db:"-" json:"callers"`

	InitializedAt *time.Time `db:"initialized_at" json:"initialized_at,omitempty"`

	types.BaseModel
}

// Community pairs a role registry with the role granted to funded subscribers
type Community struct {
	Address types.Address `json:"address"`
	RoleID  int64         `json:"role_id"`
}

func (i *Instance) TableName() string {
	return "instances"
}

// Validate checks the billing terms. Registry recognition of the controller
// and community is checked by the provisioning service, not here.
func (i *Instance) Validate() error {
	details := map[string]any{
		"interval":               i.Interval.String(),
		"intervals_min":          i.IntervalsMin,
		"intervals_max":          i.IntervalsMax,
		"max_retries":            i.MaxRetries,
		"max_catch_up_intervals": i.MaxCatchUpIntervals,
		"price":                  i.Price.String(),
	}

	switch {
	case i.Interval <= 0:
		return invalid("interval must be positive", details)
	case i.IntervalsMin < 1:
		return invalid("intervals_min must be at least 1", details)
	case i.IntervalsMax < i.IntervalsMin:
		return invalid("intervals_max must not be below intervals_min", details)
	case i.MaxRetries < 0:
		return invalid("max_retries must not be negative", details)
	case i.MaxCatchUpIntervals < 1:
		return invalid("max_catch_up_intervals must be at least 1", details)
	case !i.Price.IsPositive():
		return invalid("price must be positive", details)
	case i.Asset.IsZero():
		return invalid("asset is required", details)
	case i.Recipient.IsZero():
		return invalid("recipient is required", details)
	case i.Owner.IsZero():
		return invalid("owner is required", details)
	}

	if i.Community != nil {
		if err := i.Community.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func invalid(msg string, details map[string]any) error {
	return ierr.NewError(msg).
		WithHint(msg).
		WithReportableDetails(details).
		Also(ierr.ErrValidation).
		Mark(ierr.ErrInvalidConfig)
}

// Validate checks the shape of the community settings
func (c *Community) Validate() error {
	if c.Address.IsZero() || c.RoleID == 0 {
		return ierr.NewError("community requires an address and a non-zero role").
			WithHint("Community address and role id are required").
			WithReportableDetails(map[string]any{
				"community": c.Address,
				"role_id":   c.RoleID,
			}).
			Mark(ierr.ErrInvalidCommunitySettings)
	}
	return nil
}

// HasController is true when subscribe is delegated
func (i *Instance) HasController() bool {
	return !i.Controller.IsZero()
}

func (i *Instance) HasHook() bool {
	return i.Hook != ""
}

func (i *Instance) HasCommunity() bool {
	return i.Community != nil
}

func (i *Instance) IsInitialized() bool {
	return i.InitializedAt != nil
}

func (i *Instance) IsOwner(a types.Address) bool {
	return !a.IsZero() && a == i.Owner
}

// IsAuthorizedCaller is true for the owner and every added caller
func (i *Instance) IsAuthorizedCaller(a types.Address) bool {
	return i.IsOwner(a) || lo.Contains(i.Callers, a)
}

// AddCaller returns false when the caller was already present
func (i *Instance) AddCaller(a types.Address) bool {
	if lo.Contains(i.Callers, a) {
		return false
	}
	i.Callers = append(i.Callers, a)
	return true
}

// RemoveCaller returns false when the caller was not present
func (i *Instance) RemoveCaller(a types.Address) bool {
	if !lo.Contains(i.Callers, a) {
		return false
	}
	i.Callers = lo.Without(i.Callers, a)
	return true
}

// ActivationAmount is what subscribe pulls: price x intervals_min
func (i *Instance) ActivationAmount() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.IntervalsMin)))
}
