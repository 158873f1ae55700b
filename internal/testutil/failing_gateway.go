package testutil

import (
	"context"
	"sync"

	"github.com/flexprice/pullpay/internal/asset"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/shopspring/decimal"
)

// FailingGateway wraps a gateway and fails TransferFrom while an error is set
type FailingGateway struct {
	asset.Gateway

	mu  sync.Mutex
	err error
}

func NewFailingGateway(g asset.Gateway) *FailingGateway {
	return &FailingGateway{Gateway: g}
}

// FailWith makes every following TransferFrom return err. nil restores it.
func (g *FailingGateway) FailWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *FailingGateway) TransferFrom(ctx context.Context, assetAddr, spender, holder, recipient types.Address, amount decimal.Decimal) (*asset.Transfer, error) {
	g.mu.Lock()
	err := g.err
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return g.Gateway.TransferFrom(ctx, assetAddr, spender, holder, recipient, amount)
}
