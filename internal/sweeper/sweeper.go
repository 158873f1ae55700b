// Package sweeper runs the operator charge sweep on a cron schedule. Each run
// pages through the registered instances and charges every lapsed subscriber
// through the same entry point the API uses.
package sweeper

import (
	"context"
	"sync/atomic"

	"github.com/flexprice/pullpay/internal/config"
	"github.com/flexprice/pullpay/internal/domain/instance"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/sentry"
	"github.com/flexprice/pullpay/internal/service"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
)

// Summary aggregates the outcomes of one sweep over all instances
type Summary struct {
	Instances int                   `json:"instances"`
	Failed    int                   `json:"failed_instances"`
	Outcomes  map[types.Outcome]int `json:"outcomes"`
}

type Sweeper struct {
	cfg       *config.Configuration
	logger    *logger.Logger
	instances instance.Repository
	billing   service.BillingService
	sentry    *sentry.Service

	cron    *cron.Cron
	running atomic.Bool
}

func NewSweeper(
	cfg *config.Configuration,
	logger *logger.Logger,
	instances instance.Repository,
	billing service.BillingService,
	sentry *sentry.Service,
) *Sweeper {
	return &Sweeper{
		cfg:       cfg,
		logger:    logger.With("component", "sweeper"),
		instances: instances,
		billing:   billing,
		sentry:    sentry,
		cron:      cron.New(cron.WithChain(cron.Recover(cronLogger{logger}))),
	}
}

// RegisterHooks starts the schedule with the app when the sweeper is enabled
func RegisterHooks(lc fx.Lifecycle, s *Sweeper) {
	if !s.cfg.Sweeper.Enabled {
		s.logger.Info("sweeper disabled")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-s.cron.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
}

// Start schedules RunOnce. Overlapping ticks are skipped.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Sweeper.Schedule, func() {
		ctx := types.SetOperator(context.Background())
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Errorw("sweep failed", "error", err)
		}
	})
	if err != nil {
		return ierr.WithError(err).
			WithHintf("Invalid sweeper schedule %q", s.cfg.Sweeper.Schedule).
			Mark(ierr.ErrValidation)
	}

	s.cron.Start()
	s.logger.Infow("sweeper started", "schedule", s.cfg.Sweeper.Schedule)
	return nil
}

// RunOnce sweeps every instance. A failing instance is reported and skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (*Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warnw("sweep already running, skipping")
		return &Summary{Outcomes: map[types.Outcome]int{}}, nil
	}
	defer s.running.Store(false)

	summary := &Summary{Outcomes: map[types.Outcome]int{}}
	filter := types.QueryFilter{Limit: s.cfg.Sweeper.BatchSize}

	for {
		page, err := s.instances.List(ctx, filter)
		if err != nil {
			return summary, err
		}

		for _, inst := range page {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Instances++

			resp, err := s.billing.ChargeDue(ctx, inst.ID)
			if err != nil {
				summary.Failed++
				s.logger.Errorw("instance sweep failed",
					"instance_id", inst.ID,
					"error", err,
				)
				s.sentry.CaptureException(err)
				continue
			}
			for _, r := range resp.Results {
				summary.Outcomes[r.Outcome]++
			}
			s.sentry.AddBreadcrumb("sweeper", "instance swept", map[string]interface{}{
				"instance_id": inst.ID,
				"subscribers": len(resp.Results),
			})
		}

		if len(page) < filter.GetLimit() {
			break
		}
		filter.Offset += len(page)
	}

	s.logger.Infow("sweep finished",
		"instances", summary.Instances,
		"failed_instances", summary.Failed,
		"outcomes", summary.Outcomes,
	)
	return summary, nil
}

// cronLogger adapts the logger to cron.Logger for panic recovery
type cronLogger struct {
	l *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
