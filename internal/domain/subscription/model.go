package subscription

import (
	"time"

	"github.com/flexprice/pullpay/internal/types"
)

// Subscriber is the per-address billing record of one instance. It is created
// on the first successful subscribe and never deleted.
type Subscriber struct {
	ID         string        `db:"id" json:"id"`
	InstanceID string        `db:"instance_id" json:"instance_id"`
	Address    types.Address `db:"address" json:"address"`

	// ActiveUntil is the paid-through horizon; zero means never subscribed
	ActiveUntil time.Time `db:"active_until" json:"active_until"`
	// RetriesUsed counts consecutive failed one-interval charges since the last success
	RetriesUsed int                 `db:"retries_used" json:"retries_used"`
	Terminal    types.TerminalState `db:"terminal" json:"terminal"`
	// RoleGranted mirrors whether the community role is currently held
	RoleGranted bool `db:"role_granted" json:"role_granted"`

	types.BaseModel
}

func (s *Subscriber) TableName() string {
	return "subscribers"
}

// State derives the lifecycle state at now. A nil record is NONE.
func (s *Subscriber) State(now time.Time) types.SubscriptionState {
	if s == nil || s.ActiveUntil.IsZero() {
		return types.SubscriptionStateNone
	}
	if st := s.Terminal.State(); st != "" {
		return st
	}
	if now.Before(s.ActiveUntil) {
		return types.SubscriptionStateActive
	}
	return types.SubscriptionStateLapsed
}

// Funded is true while ACTIVE or LAPSED (grace)
func (s *Subscriber) Funded(now time.Time) bool {
	return s.State(now).IsFunded()
}

// Clone returns a copy so callers can stage mutations and commit only on success
func (s *Subscriber) Clone() *Subscriber {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
