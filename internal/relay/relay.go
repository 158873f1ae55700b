package relay

import (
	"context"

	"github.com/flexprice/pullpay/internal/asset"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/metrics"
	"github.com/flexprice/pullpay/internal/registry"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/shopspring/decimal"
)

// Relay is the single trust boundary every fund movement goes through.
// Payers approve the relay address once; any registered instance may then
// pull on their behalf.
type Relay interface {
	// Address is the spender payers approve
	Address() types.Address
	// Pull moves funds for a registered instance. Insufficient allowance or
	// balance is marked ErrChargeFailed; any other gateway failure is ErrSystem.
	// Either way balances are untouched.
	Pull(ctx context.Context, req *PullRequest) (*asset.Transfer, error)
	// Reverse undoes a pull whose triggering operation was rejected afterwards
	Reverse(ctx context.Context, t *asset.Transfer) error
}

// PullRequest describes one transfer requested by a billing instance
type PullRequest struct {
	Instance types.Address
	Asset    types.Address
	Amount   decimal.Decimal
	From     types.Address
	To       types.Address
}

type relay struct {
	address  types.Address
	gateway  asset.Gateway
	registry registry.Registry
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

func NewRelay(
	address types.Address,
	gateway asset.Gateway,
	reg registry.Registry,
	m *metrics.Metrics,
	log *logger.Logger,
) Relay {
	return &relay{
		address:  address,
		gateway:  gateway,
		registry: reg,
		metrics:  m,
		logger:   log,
	}
}

func (r *relay) Address() types.Address {
	return r.address
}

func (r *relay) Pull(ctx context.Context, req *PullRequest) (*asset.Transfer, error) {
	ok, err := r.registry.IsInstance(ctx, req.Instance)
	if err != nil {
		return nil, err
	}
	if !ok {
		r.metrics.RecordPull("unauthorized")
		return nil, ierr.NewError("caller is not a registered billing instance").
			WithHint("Only registered billing instances may pull funds").
			WithReportableDetails(map[string]any{
				"instance": req.Instance,
			}).
			Mark(ierr.ErrUnauthorizedCaller)
	}

	t, err := r.gateway.TransferFrom(ctx, req.Asset, r.address, req.From, req.To, req.Amount)
	if err != nil {
		if ierr.IsFundingFailure(err) {
			r.metrics.RecordPull("failed")
			r.logger.Debugw("relay pull failed",
				"instance", req.Instance,
				"from", req.From,
				"amount", req.Amount.String(),
				"error", err,
			)
			return nil, err
		}

		// the gateway itself failed; nothing says the payer could not pay
		r.metrics.RecordPull("error")
		r.logger.Errorw("asset gateway error",
			"instance", req.Instance,
			"asset", req.Asset,
			"from", req.From,
			"error", err,
		)
		if ierr.IsPolicyViolation(err) {
			return nil, err
		}
		return nil, ierr.WithError(err).
			WithHint("The asset gateway is unavailable").
			WithReportableDetails(map[string]any{
				"asset": req.Asset,
			}).
			Mark(ierr.ErrSystem)
	}

	r.metrics.RecordPull("succeeded")
	r.metrics.RecordPulledAmount(req.Asset.String(), req.Amount.InexactFloat64())
	r.logger.Infow("relay pulled funds",
		"instance", req.Instance,
		"asset", req.Asset,
		"from", req.From,
		"to", req.To,
		"amount", req.Amount.String(),
		"transfer_id", t.ID,
	)
	return t, nil
}

func (r *relay) Reverse(ctx context.Context, t *asset.Transfer) error {
	if t == nil {
		return nil
	}
	if err := r.gateway.Reverse(ctx, t); err != nil {
		r.logger.Errorw("relay reverse failed", "transfer_id", t.ID, "error", err)
		return err
	}
	r.metrics.RecordPull("reversed")
	r.logger.Infow("relay reversed transfer", "transfer_id", t.ID, "amount", t.Amount.String())
	return nil
}
