package auth

import (
	"context"
	"time"

	"github.com/flexprice/pullpay/internal/config"
	"github.com/flexprice/pullpay/internal/types"
)

// Claims is what a verified token says about its bearer
type Claims struct {
	Caller    types.Address
	ExpiresAt time.Time
}

type Provider interface {
	// ValidateToken verifies signature and expiry and returns the caller the token speaks for
	ValidateToken(ctx context.Context, token string) (*Claims, error)
	GenerateToken(caller types.Address, ttl time.Duration) (string, error)
}

func NewProvider(cfg *config.Configuration) Provider {
	return NewJWTAuth(cfg)
}
