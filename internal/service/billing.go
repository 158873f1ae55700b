package service

import (
	"context"
	"time"

	"github.com/flexprice/pullpay/internal/api/dto"
	"github.com/flexprice/pullpay/internal/asset"
	"github.com/flexprice/pullpay/internal/domain/charge"
	"github.com/flexprice/pullpay/internal/domain/instance"
	"github.com/flexprice/pullpay/internal/domain/subscription"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/hook"
	"github.com/flexprice/pullpay/internal/idempotency"
	"github.com/flexprice/pullpay/internal/publisher"
	"github.com/flexprice/pullpay/internal/relay"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const (
	opSubscribe = "subscribe"
	opCharge    = "charge"
	opRestore   = "restore"
	opCancel    = "cancel"
)

// BillingService is the per-subscriber subscription state machine. Instances
// are addressed by id or address. Every state change is decided against the
// service clock and committed only after the fund pull and the hook succeeded.
type BillingService interface {
	// Subscribe activates the caller on a self-service instance
	Subscribe(ctx context.Context, ref string, req *dto.SubscribeRequest) (*dto.SubscriberResponse, error)
	// SubscribeFromController activates a subscriber at a controller supplied price
	SubscribeFromController(ctx context.Context, ref string, req *dto.SubscribeFromControllerRequest) (*dto.SubscriberResponse, error)

	// Charge pulls one interval from every listed subscriber that is due
	Charge(ctx context.Context, ref string, req *dto.BatchRequest) (*dto.BatchResponse, error)
	// ChargeDue runs Charge over every subscriber whose horizon has passed
	ChargeDue(ctx context.Context, ref string) (*dto.BatchResponse, error)

	// Restore catches the caller up on all missed intervals
	Restore(ctx context.Context, ref string) (*dto.EntryResult, error)
	RestoreBatch(ctx context.Context, ref string, req *dto.BatchRequest) (*dto.BatchResponse, error)

	// Cancel ends the caller's active subscription without a refund
	Cancel(ctx context.Context, ref string) (*dto.EntryResult, error)
	CancelBatch(ctx context.Context, ref string, req *dto.BatchRequest) (*dto.BatchResponse, error)

	IsActive(ctx context.Context, ref string, subscriber types.Address) (*dto.SubscriberStatusResponse, error)
	// ActiveUntil is the zero time for addresses that never subscribed
	ActiveUntil(ctx context.Context, ref string, subscriber types.Address) (time.Time, error)
	ListCharges(ctx context.Context, ref string, subscriber types.Address, filter types.QueryFilter) (*dto.ListChargesResponse, error)
}

type billingService struct {
	ServiceParams
	idempotency *idempotency.Generator
}

func NewBillingService(params ServiceParams) BillingService {
	return &billingService{
		ServiceParams: params,
		idempotency:   idempotency.NewGenerator(),
	}
}

type entryFunc func(ctx context.Context, inst *instance.Instance, subscriber types.Address) (*dto.EntryResult, error)

func (s *billingService) Subscribe(ctx context.Context, ref string, req *dto.SubscribeRequest) (*dto.SubscriberResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inst, unlock, err := s.lockInstance(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer unlock()

	caller := types.GetCaller(ctx)
	if caller.IsZero() {
		return nil, ierr.NewError("an authenticated caller is required").
			WithHint("Subscriptions are started by the subscriber").
			Mark(ierr.ErrPermissionDenied)
	}
	if inst.HasController() {
		return nil, ierr.NewError("instance subscriptions are delegated to a controller").
			WithHint("Subscribe through the instance controller").
			WithReportableDetails(map[string]any{
				"instance_id": inst.ID,
				"controller":  inst.Controller,
			}).
			Mark(ierr.ErrNotSupported)
	}

	return s.activate(ctx, inst, caller, inst.Price, req.Intervals)
}

func (s *billingService) SubscribeFromController(ctx context.Context, ref string, req *dto.SubscribeFromControllerRequest) (*dto.SubscriberResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inst, unlock, err := s.lockInstance(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer unlock()

	caller := types.GetCaller(ctx)
	if !inst.HasController() || caller != inst.Controller {
		return nil, ierr.NewError("only the instance controller may subscribe on behalf of others").
			WithHint("This operation is reserved for the controller").
			WithReportableDetails(map[string]any{
				"instance_id": inst.ID,
				"caller":      caller,
			}).
			Mark(ierr.ErrControllerOnly)
	}

	subscriber, err := types.ParseAddress(req.Subscriber)
	if err != nil {
		return nil, err
	}

	// the controller is trusted to price its own callers
	return s.activate(ctx, inst, subscriber, req.Price, req.Intervals)
}

// activate is all-or-nothing: any failure after the pull reverses it and no
// record is written.
func (s *billingService) activate(
	ctx context.Context,
	inst *instance.Instance,
	subscriber types.Address,
	price decimal.Decimal,
	intervals int,
) (*dto.SubscriberResponse, error) {
	bounds := map[string]any{
		"intervals":     intervals,
		"intervals_min": inst.IntervalsMin,
		"intervals_max": inst.IntervalsMax,
	}
	if intervals < inst.IntervalsMin {
		return nil, ierr.NewError("subscription is too short").
			WithHintf("At least %d intervals are required", inst.IntervalsMin).
			WithReportableDetails(bounds).
			Mark(ierr.ErrSubscriptionTooShort)
	}
	if intervals > inst.IntervalsMax {
		return nil, ierr.NewError("subscription is too long").
			WithHintf("At most %d intervals are allowed", inst.IntervalsMax).
			WithReportableDetails(bounds).
			Mark(ierr.ErrSubscriptionTooLong)
	}

	existing, err := s.loadSubscriber(ctx, inst, subscriber)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if state := existing.State(now); state != types.SubscriptionStateNone {
		return nil, ierr.NewError("subscriber already has a subscription").
			WithHint("A subscription can only be started once").
			WithReportableDetails(map[string]any{
				"subscriber": subscriber,
				"state":      state,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	amount := price.Mul(decimal.NewFromInt(int64(inst.IntervalsMin)))
	key := s.idempotency.GenerateKey(idempotency.ScopeSubscribe, map[string]interface{}{
		"instance":   inst.ID,
		"subscriber": subscriber.String(),
	})
	attempt := s.newCharge(inst, subscriber, types.ChargeKindSubscribe, inst.IntervalsMin, amount, key, now)

	transfer, err := s.pull(ctx, inst, subscriber, amount)
	if err != nil {
		s.recordFailure(ctx, attempt, err)
		if ierr.IsFundingFailure(err) {
			return nil, ierr.WithError(err).
				WithHint("The activation payment could not be collected").
				WithReportableDetails(map[string]any{
					"subscriber": subscriber,
					"amount":     amount.String(),
				}).
				Mark(ierr.ErrSubscriptionCantStart)
		}
		return nil, err
	}

	if err := s.runHook(ctx, opSubscribe, inst, subscriber, amount, types.ChargeKindSubscribe); err != nil {
		s.undo(ctx, transfer, attempt, err)
		return nil, err
	}

	sub := &subscription.Subscriber{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIBER),
		InstanceID:  inst.ID,
		Address:     subscriber,
		ActiveUntil: subscription.Extend(now, inst.Interval, inst.IntervalsMin),
		RetriesUsed: 0,
		Terminal:    types.TerminalStateNone,
		BaseModel:   types.GetDefaultBaseModel(ctx),
	}
	if existing != nil {
		sub.ID = existing.ID
	}

	attempt.Status = types.ChargeStatusSucceeded
	if err := s.commit(ctx, sub, attempt); err != nil {
		s.undo(ctx, transfer, nil, err)
		return nil, err
	}

	s.syncRole(ctx, inst, sub, true)
	s.Metrics.RecordOutcome(opSubscribe, "activated")
	s.Logger.Infow("subscription activated",
		"instance_id", inst.ID,
		"subscriber", subscriber,
		"amount", amount.String(),
		"active_until", sub.ActiveUntil,
		"requested_intervals", intervals,
	)
	s.notify(ctx, types.WebhookEventSubscriptionActivated, inst, sub, "", &amount, "")

	return dto.NewSubscriberResponse(sub, now), nil
}

func (s *billingService) Charge(ctx context.Context, ref string, req *dto.BatchRequest) (*dto.BatchResponse, error) {
	return s.batch(ctx, opCharge, ref, req, s.chargeOne)
}

func (s *billingService) RestoreBatch(ctx context.Context, ref string, req *dto.BatchRequest) (*dto.BatchResponse, error) {
	return s.batch(ctx, opRestore, ref, req, s.restoreOne)
}

func (s *billingService) CancelBatch(ctx context.Context, ref string, req *dto.BatchRequest) (*dto.BatchResponse, error) {
	return s.batch(ctx, opCancel, ref, req, s.cancelOne)
}

func (s *billingService) Restore(ctx context.Context, ref string) (*dto.EntryResult, error) {
	return s.self(ctx, opRestore, ref, s.restoreOne)
}

func (s *billingService) Cancel(ctx context.Context, ref string) (*dto.EntryResult, error) {
	return s.self(ctx, opCancel, ref, s.cancelOne)
}

// ChargeDue is the operator sweep. It is reached from the cron routes and the
// scheduler, never from caller facing routes, so it does not check the caller.
func (s *billingService) ChargeDue(ctx context.Context, ref string) (*dto.BatchResponse, error) {
	inst, unlock, err := s.lockInstance(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer unlock()

	started := time.Now()
	due := s.now()

	limit := s.Config.Sweeper.BatchSize
	if limit <= 0 {
		limit = types.DefaultLimit
	}

	// snapshot the due set first; entries that stay due would shift the pages
	var addrs []types.Address
	filter := &types.SubscriberFilter{
		InstanceID:  inst.ID,
		DueAt:       &due,
		QueryFilter: types.QueryFilter{Limit: limit},
	}
	for {
		page, err := s.SubscriberRepo.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, sub := range page {
			addrs = append(addrs, sub.Address)
		}
		if len(page) < filter.GetLimit() {
			break
		}
		filter.Offset += filter.GetLimit()
	}

	resp := s.runBatch(ctx, opCharge, inst, lo.Uniq(addrs), s.chargeOne)
	s.Metrics.ObserveSweep(inst.ID, time.Since(started))
	s.Logger.Infow("charge sweep finished",
		"instance_id", inst.ID,
		"due", len(addrs),
		"charged", resp.Count(types.OutcomeCharged),
		"retry_scheduled", resp.Count(types.OutcomeRetryScheduled),
		"broken", resp.Count(types.OutcomeBroken),
		"errors", resp.Count(types.OutcomeError),
	)
	return resp, nil
}

func (s *billingService) IsActive(ctx context.Context, ref string, subscriber types.Address) (*dto.SubscriberStatusResponse, error) {
	inst, err := getInstance(ctx, s.InstanceRepo, ref)
	if err != nil {
		return nil, err
	}

	sub, err := s.loadSubscriber(ctx, inst, subscriber)
	if err != nil {
		return nil, err
	}

	now := s.now()
	resp := &dto.SubscriberStatusResponse{
		Address: subscriber,
		Funded:  sub.Funded(now),
		State:   sub.State(now),
	}
	if sub != nil {
		resp.RetriesUsed = sub.RetriesUsed
		if !sub.ActiveUntil.IsZero() {
			resp.ActiveUntil = lo.ToPtr(sub.ActiveUntil)
		}
	}
	return resp, nil
}

func (s *billingService) ActiveUntil(ctx context.Context, ref string, subscriber types.Address) (time.Time, error) {
	inst, err := getInstance(ctx, s.InstanceRepo, ref)
	if err != nil {
		return time.Time{}, err
	}
	sub, err := s.loadSubscriber(ctx, inst, subscriber)
	if err != nil || sub == nil {
		return time.Time{}, err
	}
	return sub.ActiveUntil, nil
}

func (s *billingService) ListCharges(ctx context.Context, ref string, subscriber types.Address, filter types.QueryFilter) (*dto.ListChargesResponse, error) {
	inst, err := getInstance(ctx, s.InstanceRepo, ref)
	if err != nil {
		return nil, err
	}

	f := &types.ChargeFilter{
		QueryFilter: filter,
		InstanceID:  inst.ID,
		Subscriber:  subscriber,
	}
	items, err := s.ChargeRepo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	total, err := s.ChargeRepo.Count(ctx, f)
	if err != nil {
		return nil, err
	}

	return &dto.ListChargesResponse{
		ListResponse: types.NewListResponse(lo.Map(items, func(c *charge.Charge, _ int) *dto.ChargeResponse {
			return &dto.ChargeResponse{Charge: c}
		}), total, filter),
		TotalPulled: charge.TotalPulled(items),
	}, nil
}

// chargeOne pulls exactly one interval from a LAPSED subscriber. A failed pull
// is soft: it spends one retry and breaks the subscription once the budget is gone.
func (s *billingService) chargeOne(ctx context.Context, inst *instance.Instance, addr types.Address) (*dto.EntryResult, error) {
	sub, err := s.loadSubscriber(ctx, inst, addr)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if state := sub.State(now); state != types.SubscriptionStateLapsed {
		return skipped(addr, state), nil
	}

	key := s.periodKey(idempotency.ScopeCharge, inst, sub)
	if done, err := s.alreadyCharged(ctx, key); err != nil || done {
		return skipped(addr, sub.State(now)), err
	}

	price := inst.Price
	attempt := s.newCharge(inst, addr, types.ChargeKindCharge, 1, price, key, now)

	transfer, err := s.pull(ctx, inst, addr, price)
	if err != nil {
		if !ierr.IsFundingFailure(err) {
			return nil, err
		}

		next := sub.Clone()
		next.RetriesUsed++
		outcome := types.OutcomeRetryScheduled
		if next.RetriesUsed > inst.MaxRetries {
			next.Terminal = types.TerminalStateBroken
			outcome = types.OutcomeBroken
		}
		next.UpdatedAt = now

		attempt.Status = types.ChargeStatusFailed
		attempt.Reason = err.Error()
		if err := s.commit(ctx, next, attempt); err != nil {
			return nil, err
		}
		if outcome == types.OutcomeBroken {
			s.syncRole(ctx, inst, next, false)
		}

		s.Logger.Infow("interval charge failed",
			"instance_id", inst.ID,
			"subscriber", addr,
			"retries_used", next.RetriesUsed,
			"max_retries", inst.MaxRetries,
			"outcome", outcome,
		)
		s.notifyOutcome(ctx, inst, next, outcome, &price, attempt.Reason)
		return result(next, outcome, &price, now), nil
	}

	if err := s.runHook(ctx, opCharge, inst, addr, price, types.ChargeKindCharge); err != nil {
		s.undo(ctx, transfer, attempt, err)
		return nil, err
	}

	next := sub.Clone()
	next.ActiveUntil = subscription.Extend(sub.ActiveUntil, inst.Interval, 1)
	next.RetriesUsed = 0
	next.UpdatedAt = now

	attempt.Status = types.ChargeStatusSucceeded
	if err := s.commit(ctx, next, attempt); err != nil {
		s.undo(ctx, transfer, nil, err)
		return nil, err
	}
	s.syncRole(ctx, inst, next, true)

	s.Logger.Infow("interval charged",
		"instance_id", inst.ID,
		"subscriber", addr,
		"amount", price.String(),
		"active_until", next.ActiveUntil,
	)
	s.notifyOutcome(ctx, inst, next, types.OutcomeCharged, &price, "")
	return result(next, types.OutcomeCharged, &price, now), nil
}

// restoreOne catches a LAPSED subscriber up on every missed interval at once,
// or closes the subscription when it is too far behind to be caught up.
func (s *billingService) restoreOne(ctx context.Context, inst *instance.Instance, addr types.Address) (*dto.EntryResult, error) {
	sub, err := s.loadSubscriber(ctx, inst, addr)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if state := sub.State(now); state != types.SubscriptionStateLapsed {
		return skipped(addr, state), nil
	}

	missed := subscription.MissedIntervals(sub.ActiveUntil, now, inst.Interval)
	if missed > inst.MaxCatchUpIntervals {
		return s.expire(ctx, inst, sub, types.OutcomeSubscriptionExpired, now)
	}
	if sub.RetriesUsed > inst.MaxRetries {
		return s.expire(ctx, inst, sub, types.OutcomeRetriesExpired, now)
	}

	key := s.periodKey(idempotency.ScopeRestore, inst, sub)
	if done, err := s.alreadyCharged(ctx, key); err != nil || done {
		return skipped(addr, sub.State(now)), err
	}

	amount := inst.Price.Mul(decimal.NewFromInt(int64(missed)))
	attempt := s.newCharge(inst, addr, types.ChargeKindRestore, missed, amount, key, now)

	transfer, err := s.pull(ctx, inst, addr, amount)
	if err != nil {
		if !ierr.IsFundingFailure(err) {
			return nil, err
		}
		// the record is left exactly as it was; restore can be tried again
		s.recordFailure(ctx, attempt, err)
		s.Logger.Infow("restore charge failed",
			"instance_id", inst.ID,
			"subscriber", addr,
			"missed_intervals", missed,
			"amount", amount.String(),
		)
		price := inst.Price
		s.notifyOutcome(ctx, inst, sub, types.OutcomeChargeFailed, &price, attempt.Reason)
		return result(sub, types.OutcomeChargeFailed, &price, now), nil
	}

	if err := s.runHook(ctx, opRestore, inst, addr, amount, types.ChargeKindRestore); err != nil {
		s.undo(ctx, transfer, attempt, err)
		return nil, err
	}

	next := sub.Clone()
	next.ActiveUntil = subscription.Extend(sub.ActiveUntil, inst.Interval, missed)
	next.RetriesUsed = 0
	next.UpdatedAt = now

	attempt.Status = types.ChargeStatusSucceeded
	if err := s.commit(ctx, next, attempt); err != nil {
		s.undo(ctx, transfer, nil, err)
		return nil, err
	}
	s.syncRole(ctx, inst, next, true)

	s.Logger.Infow("subscription restored",
		"instance_id", inst.ID,
		"subscriber", addr,
		"missed_intervals", missed,
		"amount", amount.String(),
		"active_until", next.ActiveUntil,
	)
	s.notifyOutcome(ctx, inst, next, types.OutcomeRestored, &amount, "")
	return result(next, types.OutcomeRestored, &amount, now), nil
}

func (s *billingService) expire(ctx context.Context, inst *instance.Instance, sub *subscription.Subscriber, outcome types.Outcome, now time.Time) (*dto.EntryResult, error) {
	next := sub.Clone()
	next.Terminal = types.TerminalStateExpired
	next.UpdatedAt = now
	if err := s.commit(ctx, next, nil); err != nil {
		return nil, err
	}
	s.syncRole(ctx, inst, next, false)

	s.Logger.Infow("subscription expired",
		"instance_id", inst.ID,
		"subscriber", sub.Address,
		"outcome", outcome,
		"retries_used", sub.RetriesUsed,
		"active_until", sub.ActiveUntil,
	)
	s.notifyOutcome(ctx, inst, next, outcome, nil, "")
	return result(next, outcome, nil, now), nil
}

// cancelOne only acts on ACTIVE subscribers; everything else is left untouched
func (s *billingService) cancelOne(ctx context.Context, inst *instance.Instance, addr types.Address) (*dto.EntryResult, error) {
	sub, err := s.loadSubscriber(ctx, inst, addr)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if state := sub.State(now); state != types.SubscriptionStateActive {
		return skipped(addr, state), nil
	}

	next := sub.Clone()
	next.Terminal = types.TerminalStateCanceled
	next.UpdatedAt = now
	if err := s.commit(ctx, next, nil); err != nil {
		return nil, err
	}
	s.syncRole(ctx, inst, next, false)

	s.Logger.Infow("subscription canceled",
		"instance_id", inst.ID,
		"subscriber", addr,
		"active_until", next.ActiveUntil,
	)
	s.notifyOutcome(ctx, inst, next, types.OutcomeCanceled, nil, "")
	return result(next, types.OutcomeCanceled, nil, now), nil
}

func (s *billingService) batch(ctx context.Context, op, ref string, req *dto.BatchRequest, fn entryFunc) (*dto.BatchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	addrs, err := req.Addresses()
	if err != nil {
		return nil, err
	}

	inst, unlock, err := s.lockInstance(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer unlock()

	caller := types.GetCaller(ctx)
	if !inst.IsAuthorizedCaller(caller) {
		return nil, ierr.NewError("caller may not run batch operations").
			WithHint("This operation is reserved for the owner or authorized callers").
			WithReportableDetails(map[string]any{
				"instance_id": inst.ID,
				"caller":      caller,
				"operation":   op,
			}).
			Mark(ierr.ErrOwnerOrCallerOnly)
	}

	return s.runBatch(ctx, op, inst, addrs, fn), nil
}

// runBatch isolates entries: a hard failure becomes that entry's error
// outcome and never touches the others.
func (s *billingService) runBatch(ctx context.Context, op string, inst *instance.Instance, addrs []types.Address, fn entryFunc) *dto.BatchResponse {
	resp := &dto.BatchResponse{Results: make([]*dto.EntryResult, 0, len(addrs))}
	for _, addr := range addrs {
		res, err := fn(ctx, inst, addr)
		if err != nil {
			s.Logger.Errorw("billing entry failed",
				"operation", op,
				"instance_id", inst.ID,
				"subscriber", addr,
				"error", err,
			)
			s.Sentry.CaptureEntryFailure(ctx, op, inst.Address, addr, err)
			res = &dto.EntryResult{
				Subscriber: addr,
				Outcome:    types.OutcomeError,
				Error:      err.Error(),
			}
		}
		s.Metrics.RecordOutcome(op, string(res.Outcome))
		resp.Results = append(resp.Results, res)
	}
	return resp
}

// self runs one entry for the caller and surfaces hard failures directly
func (s *billingService) self(ctx context.Context, op, ref string, fn entryFunc) (*dto.EntryResult, error) {
	caller := types.GetCaller(ctx)
	if caller.IsZero() {
		return nil, ierr.NewError("an authenticated caller is required").
			WithHint("This operation acts on the caller's own subscription").
			Mark(ierr.ErrPermissionDenied)
	}

	inst, unlock, err := s.lockInstance(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err := fn(ctx, inst, caller)
	if err != nil {
		s.Metrics.RecordOutcome(op, string(types.OutcomeError))
		return nil, err
	}
	s.Metrics.RecordOutcome(op, string(res.Outcome))
	return res, nil
}

func (s *billingService) lockInstance(ctx context.Context, ref string) (*instance.Instance, func(), error) {
	inst, err := getInstance(ctx, s.InstanceRepo, ref)
	if err != nil {
		return nil, nil, err
	}

	unlock := instanceLocks.Lock(inst.ID)
	// reload under the lock so admin changes made meanwhile are seen
	inst, err = s.InstanceRepo.Get(ctx, inst.ID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return inst, unlock, nil
}

func (s *billingService) loadSubscriber(ctx context.Context, inst *instance.Instance, addr types.Address) (*subscription.Subscriber, error) {
	sub, err := s.SubscriberRepo.Get(ctx, inst.ID, addr)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

func (s *billingService) pull(ctx context.Context, inst *instance.Instance, from types.Address, amount decimal.Decimal) (*asset.Transfer, error) {
	return s.Relay.Pull(ctx, &relay.PullRequest{
		Instance: inst.Address,
		Asset:    inst.Asset,
		Amount:   amount,
		From:     from,
		To:       inst.Recipient,
	})
}

// runHook gives the configured hook a veto over a pull that already happened
func (s *billingService) runHook(
	ctx context.Context,
	op string,
	inst *instance.Instance,
	subscriber types.Address,
	amount decimal.Decimal,
	kind types.ChargeKind,
) error {
	if !inst.HasHook() {
		return nil
	}

	h, err := s.HookResolver.Resolve(ctx, inst.Hook)
	if err == nil {
		err = h.OnCharge(ctx, &hook.ChargeEvent{
			Instance:   inst.Address,
			Subscriber: subscriber,
			Amount:     amount,
			Kind:       kind,
		})
	}
	if err == nil {
		return nil
	}

	s.Metrics.RecordHookFailure(op)
	s.Logger.Warnw("charge hook vetoed operation",
		"operation", op,
		"instance_id", inst.ID,
		"subscriber", subscriber,
		"hook", inst.Hook,
		"error", err,
	)
	if ierr.Is(err, ierr.ErrHookRejected) {
		return err
	}
	return ierr.WithError(err).
		WithHint("The charge hook rejected the operation").
		WithReportableDetails(map[string]any{
			"hook":       inst.Hook,
			"subscriber": subscriber,
		}).
		Mark(ierr.ErrHookRejected)
}

// undo reverses a pull whose operation failed afterwards
func (s *billingService) undo(ctx context.Context, transfer *asset.Transfer, attempt *charge.Charge, cause error) {
	if err := s.Relay.Reverse(ctx, transfer); err != nil {
		s.Logger.Errorw("failed to reverse pull",
			"transfer_id", transfer.ID,
			"cause", cause,
			"error", err,
		)
		s.Sentry.CaptureException(err)
	}
	if attempt != nil {
		attempt.Status = types.ChargeStatusReversed
		attempt.Reason = cause.Error()
		s.record(ctx, attempt)
	}
}

// commit writes the record and its charge attempt together
func (s *billingService) commit(ctx context.Context, sub *subscription.Subscriber, attempt *charge.Charge) error {
	return s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.SubscriberRepo.Save(ctx, sub); err != nil {
			return err
		}
		if attempt == nil {
			return nil
		}
		return s.ChargeRepo.Create(ctx, attempt)
	})
}

func (s *billingService) recordFailure(ctx context.Context, attempt *charge.Charge, cause error) {
	attempt.Status = types.ChargeStatusFailed
	attempt.Reason = cause.Error()
	s.record(ctx, attempt)
}

// record keeps history of attempts that changed no state. Losing one is logged only.
func (s *billingService) record(ctx context.Context, attempt *charge.Charge) {
	if err := s.ChargeRepo.Create(ctx, attempt); err != nil {
		s.Logger.Errorw("failed to record charge attempt",
			"charge_id", attempt.ID,
			"status", attempt.Status,
			"error", err,
		)
	}
}

// syncRole mirrors ACTIVE-ness onto the community role. It never fails the
// billing operation that triggered it.
func (s *billingService) syncRole(ctx context.Context, inst *instance.Instance, sub *subscription.Subscriber, grant bool) {
	if !inst.HasCommunity() {
		return
	}

	var err error
	action := "grant"
	if grant {
		err = s.Roles.Grant(ctx, inst.Community.Address, inst.Community.RoleID, sub.Address)
	} else {
		if !sub.RoleGranted {
			return
		}
		action = "revoke"
		err = s.Roles.Revoke(ctx, inst.Community.Address, inst.Community.RoleID, sub.Address)
	}
	if err != nil {
		s.Metrics.RecordCommunitySyncError(action)
		s.Logger.Warnw("community role sync failed",
			"action", action,
			"instance_id", inst.ID,
			"subscriber", sub.Address,
			"community", inst.Community.Address,
			"error", err,
		)
		return
	}

	if sub.RoleGranted == grant {
		return
	}
	sub.RoleGranted = grant
	if err := s.SubscriberRepo.Save(ctx, sub); err != nil {
		s.Logger.Errorw("failed to persist role flag", "subscriber", sub.Address, "error", err)
	}
}

func (s *billingService) periodKey(scope idempotency.Scope, inst *instance.Instance, sub *subscription.Subscriber) string {
	return s.idempotency.GenerateKey(scope, map[string]interface{}{
		"instance":     inst.ID,
		"subscriber":   sub.Address.String(),
		"period_start": sub.ActiveUntil.Unix(),
	})
}

func (s *billingService) alreadyCharged(ctx context.Context, key string) (bool, error) {
	_, err := s.ChargeRepo.GetByIdempotencyKey(ctx, key)
	if err == nil {
		return true, nil
	}
	if ierr.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *billingService) newCharge(
	inst *instance.Instance,
	subscriber types.Address,
	kind types.ChargeKind,
	intervals int,
	amount decimal.Decimal,
	key string,
	now time.Time,
) *charge.Charge {
	return &charge.Charge{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CHARGE),
		InstanceID:     inst.ID,
		Subscriber:     subscriber,
		Kind:           kind,
		Intervals:      intervals,
		Amount:         amount,
		Status:         types.ChargeStatusFailed,
		IdempotencyKey: key,
		CreatedAt:      now,
	}
}

func (s *billingService) notifyOutcome(
	ctx context.Context,
	inst *instance.Instance,
	sub *subscription.Subscriber,
	outcome types.Outcome,
	amount *decimal.Decimal,
	reason string,
) {
	name, ok := types.EventNameForOutcome(outcome)
	if !ok {
		return
	}
	s.notify(ctx, name, inst, sub, outcome, amount, reason)
}

func (s *billingService) notify(
	ctx context.Context,
	name string,
	inst *instance.Instance,
	sub *subscription.Subscriber,
	outcome types.Outcome,
	amount *decimal.Decimal,
	reason string,
) {
	s.EventPublisher.Publish(ctx, &publisher.Notification{
		EventName:   name,
		Instance:    inst.Address,
		Subscriber:  sub.Address,
		Outcome:     outcome,
		Amount:      amount,
		ActiveUntil: lo.ToPtr(sub.ActiveUntil),
		RetriesUsed: sub.RetriesUsed,
		Reason:      reason,
	})
}

func (s *billingService) now() time.Time {
	return s.Clock.Now().UTC()
}

func skipped(addr types.Address, state types.SubscriptionState) *dto.EntryResult {
	return &dto.EntryResult{
		Subscriber: addr,
		Outcome:    types.OutcomeSkipped,
		State:      state,
	}
}

func result(sub *subscription.Subscriber, outcome types.Outcome, amount *decimal.Decimal, now time.Time) *dto.EntryResult {
	return &dto.EntryResult{
		Subscriber: sub.Address,
		Outcome:    outcome,
		State:      sub.State(now),
		Amount:     amount,
	}
}
