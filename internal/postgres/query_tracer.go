package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/flexprice/pullpay/internal/logger"
)

// queryTrace times one statement and logs it when done
type queryTrace struct {
	logger *logger.Logger
	query  string
	args   interface{}
	start  time.Time
	txID   string
}

func startTrace(logger *logger.Logger, query string, args interface{}, txID string) *queryTrace {
	return &queryTrace{
		logger: logger,
		query:  query,
		args:   args,
		start:  time.Now(),
		txID:   txID,
	}
}

func (qt *queryTrace) done(err error) {
	fields := []interface{}{
		"duration_ms", time.Since(qt.start).Milliseconds(),
		"query", qt.query,
	}
	if qt.txID != "" {
		fields = append(fields, "tx_id", qt.txID)
	}
	// no rows is an expected lookup miss, not a failure
	if err != nil && err != sql.ErrNoRows {
		fields = append(fields, "error", err.Error(), "args", qt.args)
		qt.logger.Errorw("database query failed", fields...)
		return
	}
	qt.logger.Debugw("database query completed", fields...)
}

// TracedQuerier wraps a Querier with query logging
type TracedQuerier struct {
	Querier
	logger *logger.Logger
	txID   string
}

// NewTracedQuerier creates a new traced querier
func NewTracedQuerier(q Querier, logger *logger.Logger, txID string) *TracedQuerier {
	return &TracedQuerier{
		Querier: q,
		logger:  logger,
		txID:    txID,
	}
}

func (tq *TracedQuerier) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	t := startTrace(tq.logger, query, args, tq.txID)
	result, err := tq.Querier.ExecContext(ctx, query, args...)
	t.done(err)
	return result, err
}

func (tq *TracedQuerier) NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	t := startTrace(tq.logger, query, arg, tq.txID)
	result, err := tq.Querier.NamedExecContext(ctx, query, arg)
	t.done(err)
	return result, err
}

func (tq *TracedQuerier) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	t := startTrace(tq.logger, query, args, tq.txID)
	err := tq.Querier.GetContext(ctx, dest, query, args...)
	t.done(err)
	return err
}

func (tq *TracedQuerier) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	t := startTrace(tq.logger, query, args, tq.txID)
	err := tq.Querier.SelectContext(ctx, dest, query, args...)
	t.done(err)
	return err
}
