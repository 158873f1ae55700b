package postgres

import (
	"context"

	"github.com/flexprice/pullpay/internal/config"
	"github.com/flexprice/pullpay/internal/logger"
	sentryService "github.com/flexprice/pullpay/internal/sentry"
	"go.uber.org/fx"
)

// IClient defines the interface for postgres client operations
type IClient interface {
	// WithTx wraps the given function in a transaction
	WithTx(ctx context.Context, fn func(context.Context) error) error

	// Querier returns the current transaction if in a transaction, or the pool
	Querier(ctx context.Context) Querier
}

var _ IClient = (*DB)(nil)

// Module provides the database to the fx graph
func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			provideDB,
			NewClient,
		),
	)
}

func provideDB(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) (*DB, error) {
	db, err := NewDB(cfg, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			db.Close()
			return nil
		},
	})
	return db, nil
}

// NewClient exposes the DB as an IClient with sentry transaction spans
func NewClient(db *DB, sentry *sentryService.Service, logger *logger.Logger) IClient {
	return NewSentryClient(db, sentry, logger)
}
