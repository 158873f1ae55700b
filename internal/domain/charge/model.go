package charge

import (
	"time"

	"github.com/flexprice/pullpay/internal/types"
	"github.com/shopspring/decimal"
)

// Charge is one attempt to pull funds for a subscriber, kept as history
type Charge struct {
	ID             string             `db:"id" json:"id"`
	InstanceID     string             `db:"instance_id" json:"instance_id"`
	Subscriber     types.Address      `db:"subscriber" json:"subscriber"`
	Kind           types.ChargeKind   `db:"kind" json:"kind"`
	Intervals      int                `db:"intervals" json:"intervals"`
	Amount         decimal.Decimal    `db:"amount" json:"amount" swaggertype:"string"`
	Status         types.ChargeStatus `db:"status" json:"status"`
	IdempotencyKey string             `db:"idempotency_key" json:"idempotency_key"`
	Reason         string             `db:"reason" json:"reason,omitempty"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
}

func (c *Charge) TableName() string {
	return "charges"
}

// Succeeded is true when the funds actually moved and stayed moved
func (c *Charge) Succeeded() bool {
	return c.Status == types.ChargeStatusSucceeded
}

// TotalPulled sums the amount of succeeded charges
func TotalPulled(charges []*Charge) decimal.Decimal {
	total := decimal.Zero
	for _, c := range charges {
		if c.Succeeded() {
			total = total.Add(c.Amount)
		}
	}
	return total
}
