package participant

import (
	"time"

	"github.com/flexprice/pullpay/internal/types"
)

// Participant is an address recognized by the ecosystem for one role
type Participant struct {
	Address   types.Address         `db:"address" json:"address"`
	Kind      types.ParticipantKind `db:"kind" json:"kind"`
	CreatedAt time.Time             `db:"created_at" json:"created_at"`
}

func (p *Participant) TableName() string {
	return "participants"
}
