package testutil

import (
	"context"
	"sync/atomic"

	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/postgres"
)

var _ postgres.IClient = (*MockPostgresClient)(nil) // Ensure MockPostgresClient implements IClient

// MockPostgresClient runs transactional functions inline for services backed
// by the in-memory stores
type MockPostgresClient struct {
	logger *logger.Logger
	txs    atomic.Int64
}

// NewMockPostgresClient creates a new mock postgres client
func NewMockPostgresClient(logger *logger.Logger) *MockPostgresClient {
	return &MockPostgresClient{
		logger: logger,
	}
}

// WithTx executes the given function without a real transaction
func (c *MockPostgresClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	c.txs.Add(1)
	return fn(ctx)
}

// Querier is never used by the in-memory stores
func (c *MockPostgresClient) Querier(ctx context.Context) postgres.Querier {
	return nil
}

// Transactions returns how many times WithTx was entered
func (c *MockPostgresClient) Transactions() int {
	return int(c.txs.Load())
}
