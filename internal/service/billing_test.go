package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flexprice/pullpay/internal/api/dto"
	"github.com/flexprice/pullpay/internal/community"
	"github.com/flexprice/pullpay/internal/domain/charge"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/hook"
	"github.com/flexprice/pullpay/internal/idempotency"
	"github.com/flexprice/pullpay/internal/relay"
	"github.com/flexprice/pullpay/internal/testutil"
	"github.com/flexprice/pullpay/internal/types"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

const month = 30 * 24 * time.Hour

type BillingServiceSuite struct {
	testutil.BaseServiceTestSuite
	instances InstanceService
	service   BillingService

	owner     types.Address
	recipient types.Address
	asset     types.Address
	alice     types.Address
	bob       types.Address
	carol     types.Address
}

func TestBillingService(t *testing.T) {
	suite.Run(t, new(BillingServiceSuite))
}

func (s *BillingServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	s.owner = testutil.Addr("a1")
	s.recipient = testutil.Addr("a2")
	s.asset = testutil.Addr("a3")
	s.alice = testutil.Addr("b1")
	s.bob = testutil.Addr("b2")
	s.carol = testutil.Addr("b3")

	s.build(s.params())
}

func (s *BillingServiceSuite) params() ServiceParams {
	stores := s.GetStores()
	return ServiceParams{
		Logger:         s.GetLogger(),
		Config:         s.GetConfig(),
		DB:             s.GetDB(),
		Clock:          s.GetClock(),
		InstanceRepo:   stores.InstanceRepo,
		SubscriberRepo: stores.SubscriberRepo,
		ChargeRepo:     stores.ChargeRepo,
		Registry:       s.GetRegistry(),
		Relay:          s.GetRelay(),
		Gateway:        s.GetLedger(),
		HookResolver:   s.GetHookResolver(),
		Roles:          s.GetRoles(),
		Metrics:        s.GetMetrics(),
		Sentry:         s.GetSentry(),
		EventPublisher: s.GetPublisher(),
	}
}

func (s *BillingServiceSuite) build(params ServiceParams) {
	s.instances = NewInstanceService(params)
	s.service = NewBillingService(params)
}

// produce creates a 30 day, 10 per interval instance with 3..12 intervals and 2 retries
func (s *BillingServiceSuite) produce(mutate func(r *dto.ProduceInstanceRequest)) *dto.InstanceResponse {
	req := &dto.ProduceInstanceRequest{
		Salt:            s.GetUUID(),
		IntervalSeconds: int64(month / time.Second),
		IntervalsMin:    3,
		IntervalsMax:    12,
		MaxRetries:      2,
		Asset:           s.asset.String(),
		Price:           decimal.NewFromInt(10),
		Recipient:       s.recipient.String(),
	}
	if mutate != nil {
		mutate(req)
	}
	inst, err := s.instances.Produce(s.ContextAs(s.owner), req)
	s.Require().NoError(err)
	return inst
}

func (s *BillingServiceSuite) subscribe(inst *dto.InstanceResponse, who types.Address, funds int64) *dto.SubscriberResponse {
	s.Fund(s.asset, who, dec(funds), dec(funds))
	resp, err := s.service.Subscribe(s.ContextAs(who), inst.ID, &dto.SubscribeRequest{Intervals: 3})
	s.Require().NoError(err)
	return resp
}

func (s *BillingServiceSuite) status(inst *dto.InstanceResponse, who types.Address) *dto.SubscriberStatusResponse {
	st, err := s.service.IsActive(s.GetContext(), inst.ID, who)
	s.Require().NoError(err)
	return st
}

func (s *BillingServiceSuite) batch(addrs ...types.Address) *dto.BatchRequest {
	return &dto.BatchRequest{Subscribers: lo.Map(addrs, func(a types.Address, _ int) string {
		return a.String()
	})}
}

func (s *BillingServiceSuite) assertBalance(who types.Address, expected int64) {
	s.True(s.Balance(s.asset, who).Equal(dec(expected)),
		"balance of %s: expected %d, got %s", who, expected, s.Balance(s.asset, who))
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func (s *BillingServiceSuite) TestSubscribe() {
	inst := s.produce(nil)
	start := s.GetNow()

	s.Fund(s.asset, s.alice, dec(100), dec(100))
	resp, err := s.service.Subscribe(s.ContextAs(s.alice), inst.Address.String(), &dto.SubscribeRequest{Intervals: 6})
	s.Require().NoError(err)

	s.Equal(types.SubscriptionStateActive, resp.State)
	s.True(resp.Funded)
	s.True(resp.ActiveUntil.Equal(start.Add(3 * month)))
	s.Equal(0, resp.RetriesUsed)
	s.assertBalance(s.alice, 70)
	s.assertBalance(s.recipient, 30)
	s.Equal([]string{types.WebhookEventSubscriptionActivated}, s.GetPublisher().EventNames())

	charges, err := s.service.ListCharges(s.GetContext(), inst.ID, s.alice, types.QueryFilter{})
	s.Require().NoError(err)
	s.Require().Len(charges.Items, 1)
	s.Equal(types.ChargeStatusSucceeded, charges.Items[0].Status)
	s.Equal(types.ChargeKindSubscribe, charges.Items[0].Kind)
	s.Equal(3, charges.Items[0].Intervals)
	s.True(charges.TotalPulled.Equal(dec(30)))
}

func (s *BillingServiceSuite) TestSubscribeBounds() {
	inst := s.produce(nil)
	s.Fund(s.asset, s.alice, dec(1000), dec(1000))

	testCases := []struct {
		name      string
		intervals int
		sentinel  error
	}{
		{name: "zero_intervals", intervals: 0, sentinel: ierr.ErrSubscriptionTooShort},
		{name: "below_minimum", intervals: 2, sentinel: ierr.ErrSubscriptionTooShort},
		{name: "above_maximum", intervals: 13, sentinel: ierr.ErrSubscriptionTooLong},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			_, err := s.service.Subscribe(s.ContextAs(s.alice), inst.ID, &dto.SubscribeRequest{Intervals: tc.intervals})
			s.Error(err)
			s.True(ierr.Is(err, tc.sentinel))
		})
	}

	s.assertBalance(s.alice, 1000)
	s.Equal(types.SubscriptionStateNone, s.status(inst, s.alice).State)

	for i, n := range []int{3, 12} {
		who := []types.Address{testutil.Addr("e1"), testutil.Addr("e2")}[i]
		s.Fund(s.asset, who, dec(30), dec(30))
		_, err := s.service.Subscribe(s.ContextAs(who), inst.ID, &dto.SubscribeRequest{Intervals: n})
		s.NoError(err, "intervals %d", n)
	}
}

func (s *BillingServiceSuite) TestSubscribeCantStart() {
	inst := s.produce(nil)

	s.Run("insufficient_allowance", func() {
		s.Fund(s.asset, s.alice, dec(100), dec(20))
		_, err := s.service.Subscribe(s.ContextAs(s.alice), inst.ID, &dto.SubscribeRequest{Intervals: 3})
		s.Error(err)
		s.True(ierr.Is(err, ierr.ErrSubscriptionCantStart))
		s.assertBalance(s.alice, 100)
	})

	s.Run("insufficient_balance", func() {
		s.Fund(s.asset, s.bob, dec(10), dec(100))
		_, err := s.service.Subscribe(s.ContextAs(s.bob), inst.ID, &dto.SubscribeRequest{Intervals: 3})
		s.Error(err)
		s.True(ierr.Is(err, ierr.ErrSubscriptionCantStart))
		s.assertBalance(s.bob, 10)
	})

	s.Equal(types.SubscriptionStateNone, s.status(inst, s.alice).State)
	s.Equal(types.SubscriptionStateNone, s.status(inst, s.bob).State)
	s.assertBalance(s.recipient, 0)
	s.Empty(s.GetPublisher().EventNames())

	// failed attempts stay in the history
	charges, err := s.service.ListCharges(s.GetContext(), inst.ID, s.alice, types.QueryFilter{})
	s.Require().NoError(err)
	s.Require().Len(charges.Items, 1)
	s.Equal(types.ChargeStatusFailed, charges.Items[0].Status)
	s.True(charges.TotalPulled.IsZero())
}

func (s *BillingServiceSuite) TestSubscribeTwice() {
	inst := s.produce(nil)
	s.subscribe(inst, s.alice, 100)

	_, err := s.service.Subscribe(s.ContextAs(s.alice), inst.ID, &dto.SubscribeRequest{Intervals: 3})
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrInvalidOperation))
	s.assertBalance(s.alice, 70)

	s.Advance(3 * month)
	_, err = s.service.Subscribe(s.ContextAs(s.alice), inst.ID, &dto.SubscribeRequest{Intervals: 3})
	s.True(ierr.Is(err, ierr.ErrInvalidOperation), "a lapsed subscriber restores instead")
}

func (s *BillingServiceSuite) TestSubscribeRequiresCaller() {
	inst := s.produce(nil)
	_, err := s.service.Subscribe(s.GetContext(), inst.ID, &dto.SubscribeRequest{Intervals: 3})
	s.True(ierr.Is(err, ierr.ErrPermissionDenied))

	_, err = s.service.Subscribe(s.ContextAs(s.alice), "inst_missing", &dto.SubscribeRequest{Intervals: 3})
	s.True(ierr.IsNotFound(err))
}

func (s *BillingServiceSuite) TestControllerGating() {
	controller := testutil.Addr("c0")
	s.Require().NoError(s.GetRegistry().Register(s.GetContext(), controller, types.ParticipantKindController))

	delegated := s.produce(func(r *dto.ProduceInstanceRequest) { r.Controller = controller.String() })
	selfService := s.produce(nil)
	s.Fund(s.asset, s.alice, dec(100), dec(100))

	req := &dto.SubscribeFromControllerRequest{
		Subscriber: s.alice.String(),
		Price:      dec(4),
		Intervals:  3,
	}

	s.Run("plain_subscribe_not_supported", func() {
		_, err := s.service.Subscribe(s.ContextAs(s.alice), delegated.ID, &dto.SubscribeRequest{Intervals: 3})
		s.True(ierr.Is(err, ierr.ErrNotSupported))
	})

	s.Run("non_controller_rejected", func() {
		_, err := s.service.SubscribeFromController(s.ContextAs(s.bob), delegated.ID, req)
		s.True(ierr.Is(err, ierr.ErrControllerOnly))
	})

	s.Run("self_service_has_no_controller", func() {
		_, err := s.service.SubscribeFromController(s.ContextAs(controller), selfService.ID, req)
		s.True(ierr.Is(err, ierr.ErrControllerOnly))
	})

	s.assertBalance(s.alice, 100)

	s.Run("controller_sets_price", func() {
		resp, err := s.service.SubscribeFromController(s.ContextAs(controller), delegated.ID, req)
		s.Require().NoError(err)
		s.Equal(s.alice, resp.Address)
		s.Equal(types.SubscriptionStateActive, resp.State)
		s.assertBalance(s.alice, 88)
	})
}

func (s *BillingServiceSuite) TestChargeNotDue() {
	inst := s.produce(nil)
	s.subscribe(inst, s.alice, 100)

	s.Advance(3*month - time.Second)
	resp, err := s.service.Charge(s.ContextAs(s.owner), inst.ID, s.batch(s.alice, s.bob))
	s.Require().NoError(err)

	s.Require().Len(resp.Results, 2)
	s.Equal(types.OutcomeSkipped, resp.Results[0].Outcome)
	s.Equal(types.SubscriptionStateActive, resp.Results[0].State)
	s.Equal(types.OutcomeSkipped, resp.Results[1].Outcome)
	s.Equal(types.SubscriptionStateNone, resp.Results[1].State)
	s.assertBalance(s.alice, 70)
}

func (s *BillingServiceSuite) TestChargeLapsed() {
	inst := s.produce(nil)
	sub := s.subscribe(inst, s.alice, 100)

	// the horizon itself is already overdue
	s.Advance(3 * month)
	s.Equal(types.SubscriptionStateLapsed, s.status(inst, s.alice).State)
	s.True(s.status(inst, s.alice).Funded)

	resp, err := s.service.Charge(s.ContextAs(s.owner), inst.ID, s.batch(s.alice))
	s.Require().NoError(err)
	s.Equal(types.OutcomeCharged, resp.Results[0].Outcome)
	s.True(resp.Results[0].Amount.Equal(dec(10)))
	s.assertBalance(s.alice, 60)

	until, err := s.service.ActiveUntil(s.GetContext(), inst.ID, s.alice)
	s.Require().NoError(err)
	s.True(until.Equal(sub.ActiveUntil.Add(month)))

	// a second run in the same period finds nothing to do
	resp, err = s.service.Charge(s.ContextAs(s.owner), inst.ID, s.batch(s.alice))
	s.Require().NoError(err)
	s.Equal(types.OutcomeSkipped, resp.Results[0].Outcome)
	s.assertBalance(s.alice, 60)

	s.Equal([]string{
		types.WebhookEventSubscriptionActivated,
		types.WebhookEventSubscriptionCharged,
	}, s.GetPublisher().EventNames())
	s.Equal(1.0, promtest.ToFloat64(s.GetMetrics().OutcomesTotal.WithLabelValues(opCharge, string(types.OutcomeCharged))))
}

func (s *BillingServiceSuite) TestChargeSkipsSettledPeriod() {
	inst := s.produce(nil)
	s.subscribe(inst, s.alice, 100)
	s.Advance(3 * month)

	domainInst, err := s.GetStores().InstanceRepo.Get(s.GetContext(), inst.ID)
	s.Require().NoError(err)
	sub, err := s.GetStores().SubscriberRepo.Get(s.GetContext(), inst.ID, s.alice)
	s.Require().NoError(err)

	svc := s.service.(*billingService)
	s.Require().NoError(s.GetStores().ChargeRepo.Create(s.GetContext(), &charge.Charge{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CHARGE),
		InstanceID:     inst.ID,
		Subscriber:     s.alice,
		Kind:           types.ChargeKindCharge,
		Intervals:      1,
		Amount:         dec(10),
		Status:         types.ChargeStatusSucceeded,
		IdempotencyKey: svc.periodKey(idempotency.ScopeCharge, domainInst, sub),
		CreatedAt:      s.GetNow(),
	}))

	resp, err := s.service.Charge(s.ContextAs(s.owner), inst.ID, s.batch(s.alice))
	s.Require().NoError(err)
	s.Equal(types.OutcomeSkipped, resp.Results[0].Outcome)
	s.assertBalance(s.alice, 70)
}

func (s *BillingServiceSuite) TestChargeRequiresOwnerOrCaller() {
	inst := s.produce(nil)
	s.subscribe(inst, s.alice, 100)
	s.Advance(3 * month)

	_, err := s.service.Charge(s.ContextAs(s.bob), inst.ID, s.batch(s.alice))
	s.True(ierr.Is(err, ierr.ErrOwnerOrCallerOnly))
	_, err = s.service.RestoreBatch(s.ContextAs(s.bob), inst.ID, s.batch(s.alice))
	s.True(ierr.Is(err, ierr.ErrOwnerOrCallerOnly))
	_, err = s.service.CancelBatch(s.GetContext(), inst.ID, s.batch(s.alice))
	s.True(ierr.Is(err, ierr.ErrOwnerOrCallerOnly))
	s.assertBalance(s.alice, 70)

	s.Require().NoError(s.instances.AddCaller(s.ContextAs(s.owner), inst.ID, s.bob))
	resp, err := s.service.Charge(s.ContextAs(s.bob), inst.ID, s.batch(s.alice))
	s.Require().NoError(err)
	s.Equal(types.OutcomeCharged, resp.Results[0].Outcome)

	s.Require().NoError(s.instances.RemoveCaller(s.ContextAs(s.owner), inst.ID, s.bob))
	_, err = s.service.Charge(s.ContextAs(s.bob), inst.ID, s.batch(s.alice))
	s.True(ierr.Is(err, ierr.ErrOwnerOrCallerOnly))
}

func (s *BillingServiceSuite) TestChargeRetriesThenBreaks() {
	inst := s.produce(nil)
	// exactly the activation amount, nothing left for renewals
	s.subscribe(inst, s.alice, 30)
	s.Advance(3 * month)

	expected := []types.Outcome{
		types.OutcomeRetryScheduled,
		types.OutcomeRetryScheduled,
		types.OutcomeBroken,
	}
	for i, outcome := range expected {
		resp, err := s.service.Charge(s.ContextAs(s.owner), inst.ID, s.batch(s.alice))
		s.Require().NoError(err)
		s.Equal(outcome, resp.Results[0].Outcome, "attempt %d", i+1)
		s.Equal(i+1, s.status(inst, s.alice).RetriesUsed)
	}

	st := s.status(inst, s.alice)
	s.Equal(types.SubscriptionStateBroken, st.State)
	s.False(st.Funded)

	// terminal states never move again
	s.Fund(s.asset, s.alice, dec(100), dec(100))
	resp, err := s.service.Charge(s.ContextAs(s.owner), inst.ID, s.batch(s.alice))
	s.Require().NoError(err)
	s.Equal(types.OutcomeSkipped, resp.Results[0].Outcome)

	restored, err := s.service.Restore(s.ContextAs(s.alice), inst.ID)
	s.Require().NoError(err)
	s.Equal(types.OutcomeSkipped, restored.Outcome)

	canceled, err := s.service.Cancel(s.ContextAs(s.alice), inst.ID)
	s.Require().NoError(err)
	s.Equal(types.OutcomeSkipped, canceled.Outcome)

	_, err = s.service.Subscribe(s.ContextAs(s.alice), inst.ID, &dto.SubscribeRequest{Intervals: 3})
	s.True(ierr.Is(err, ierr.ErrInvalidOperation))

	s.Equal(types.SubscriptionStateBroken, s.status(inst, s.alice).State)
	s.assertBalance(s.alice, 100)
	s.Contains(s.GetPublisher().EventNames(), types.WebhookEventSubscriptionBroken)
}

func (s *BillingServiceSuite) TestChargeResetsRetries() {
	inst := s.produce(nil)
	s.subscribe(inst, s.alice, 30)
	s.Advance(3 * month)

	resp, err := s.service.Charge(s.ContextAs(s.owner), inst.ID, s.batch(s.alice))
	s.Require().NoError(err)
	s.Equal(types.OutcomeRetryScheduled, resp.Results[0].Outcome)

	s.Fund(s.asset, s.alice, dec(10), dec(10))
	resp, err = s.service.Charge(s.ContextAs(s.owner), inst.ID, s.batch(s.alice))
	s.Require().NoError(err)
	s.Equal(types.OutcomeCharged, resp.Results[0].Outcome)

	st := s.status(inst, s.alice)
	s.Equal(0, st.RetriesUsed)
	s.Equal(types.SubscriptionStateActive, st.State)
}

func (s *BillingServiceSuite) TestRestore() {
	inst := s.produce(nil)
	sub := s.subscribe(inst, s.alice, 100)

	s.Run("active_is_skipped", func() {
		res, err := s.service.Restore(s.ContextAs(s.alice), inst.ID)
		s.Require().NoError(err)
		s.Equal(types.OutcomeSkipped, res.Outcome)
		s.assertBalance(s.alice, 70)
	})

	// one and a half intervals overdue: two boundaries are owed
	s.Advance(3*month + 45*24*time.Hour)

	s.Run("catches_up_missed_intervals", func() {
		res, err := s.service.Restore(s.ContextAs(s.alice), inst.ID)
		s.Require().NoError(err)
		s.Equal(types.OutcomeRestored, res.Outcome)
		s.True(res.Amount.Equal(dec(20)))
		s.Equal(types.SubscriptionStateActive, res.State)
		s.assertBalance(s.alice, 50)

		until, err := s.service.ActiveUntil(s.GetContext(), inst.ID, s.alice)
		s.Require().NoError(err)
		s.True(until.Equal(sub.ActiveUntil.Add(2 * month)))
	})

	charges, err := s.service.ListCharges(s.GetContext(), inst.ID, s.alice, types.QueryFilter{})
	s.Require().NoError(err)
	s.True(charges.TotalPulled.Equal(dec(50)))
	s.Contains(s.GetPublisher().EventNames(), types.WebhookEventSubscriptionRestored)
}

func (s *BillingServiceSuite) TestRestoreTooFarBehind() {
	inst := s.produce(func(r *dto.ProduceInstanceRequest) { r.MaxCatchUpIntervals = lo.ToPtr(2) })
	s.subscribe(inst, s.alice, 100)

	s.Advance(3*month + 75*24*time.Hour)
	res, err := s.service.Restore(s.ContextAs(s.alice), inst.ID)
	s.Require().NoError(err)
	s.Equal(types.OutcomeSubscriptionExpired, res.Outcome)
	s.Equal(types.SubscriptionStateExpired, res.State)
	s.assertBalance(s.alice, 70)
	s.Equal(types.SubscriptionStateExpired, s.status(inst, s.alice).State)
}

func (s *BillingServiceSuite) TestRestoreRetriesExhausted() {
	inst := s.produce(nil)
	s.subscribe(inst, s.alice, 100)
	s.Advance(3 * month)

	sub, err := s.GetStores().SubscriberRepo.Get(s.GetContext(), inst.ID, s.alice)
	s.Require().NoError(err)
	sub.RetriesUsed = 3
	s.Require().NoError(s.GetStores().SubscriberRepo.Save(s.GetContext(), sub))

	res, err := s.service.RestoreBatch(s.ContextAs(s.owner), inst.ID, s.batch(s.alice))
	s.Require().NoError(err)
	s.Equal(types.OutcomeRetriesExpired, res.Results[0].Outcome)
	s.Equal(types.SubscriptionStateExpired, s.status(inst, s.alice).State)
	s.assertBalance(s.alice, 70)
}

func (s *BillingServiceSuite) TestRestoreChargeFailed() {
	inst := s.produce(nil)
	s.subscribe(inst, s.alice, 30)
	s.Advance(3*month + 24*time.Hour)

	res, err := s.service.Restore(s.ContextAs(s.alice), inst.ID)
	s.Require().NoError(err)
	s.Equal(types.OutcomeChargeFailed, res.Outcome)

	st := s.status(inst, s.alice)
	s.Equal(types.SubscriptionStateLapsed, st.State)
	s.Equal(0, st.RetriesUsed)
	s.Contains(s.GetPublisher().EventNames(), types.WebhookEventSubscriptionChargeFailed)

	s.Fund(s.asset, s.alice, dec(10), dec(10))
	res, err = s.service.Restore(s.ContextAs(s.alice), inst.ID)
	s.Require().NoError(err)
	s.Equal(types.OutcomeRestored, res.Outcome)
}

func (s *BillingServiceSuite) TestCancel() {
	inst := s.produce(nil)
	s.subscribe(inst, s.alice, 100)
	s.subscribe(inst, s.bob, 100)

	res, err := s.service.Cancel(s.ContextAs(s.alice), inst.ID)
	s.Require().NoError(err)
	s.Equal(types.OutcomeCanceled, res.Outcome)

	st := s.status(inst, s.alice)
	s.Equal(types.SubscriptionStateCanceled, st.State)
	s.False(st.Funded)
	s.assertBalance(s.alice, 70)

	res, err = s.service.Cancel(s.ContextAs(s.alice), inst.ID)
	s.Require().NoError(err)
	s.Equal(types.OutcomeSkipped, res.Outcome)

	// a lapsed subscriber can not be canceled, it restores or expires instead
	s.Advance(3 * month)
	batch, err := s.service.CancelBatch(s.ContextAs(s.owner), inst.ID, s.batch(s.bob, s.carol))
	s.Require().NoError(err)
	s.Equal(types.OutcomeSkipped, batch.Results[0].Outcome)
	s.Equal(types.SubscriptionStateLapsed, batch.Results[0].State)
	s.Equal(types.OutcomeSkipped, batch.Results[1].Outcome)

	_, err = s.service.Cancel(s.GetContext(), inst.ID)
	s.True(ierr.Is(err, ierr.ErrPermissionDenied))
}

func (s *BillingServiceSuite) TestHookVetoReversesPull() {
	var veto types.Address
	s.GetHookResolver().Register("gate", hook.Func(func(_ context.Context, e *hook.ChargeEvent) error {
		if e.Subscriber == veto {
			return errors.New("subscriber is blocked")
		}
		return nil
	}))
	inst := s.produce(func(r *dto.ProduceInstanceRequest) { r.Hook = hook.LocalRef("gate") })

	veto = s.bob
	s.subscribe(inst, s.alice, 100)
	s.Fund(s.asset, s.bob, dec(100), dec(100))

	_, err := s.service.Subscribe(s.ContextAs(s.bob), inst.ID, &dto.SubscribeRequest{Intervals: 3})
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrHookRejected))
	s.assertBalance(s.bob, 100)
	s.assertBalance(s.recipient, 30)
	s.Equal(types.SubscriptionStateNone, s.status(inst, s.bob).State)

	charges, err := s.service.ListCharges(s.GetContext(), inst.ID, s.bob, types.QueryFilter{})
	s.Require().NoError(err)
	s.Require().Len(charges.Items, 1)
	s.Equal(types.ChargeStatusReversed, charges.Items[0].Status)
	s.Equal(1.0, promtest.ToFloat64(s.GetMetrics().HookFailuresTotal.WithLabelValues(opSubscribe)))
}

// chargesOfKind lists the recorded attempts of one kind for a subscriber
func (s *BillingServiceSuite) chargesOfKind(inst *dto.InstanceResponse, who types.Address, kind types.ChargeKind) []*dto.ChargeResponse {
	charges, err := s.service.ListCharges(s.GetContext(), inst.ID, who, types.QueryFilter{})
	s.Require().NoError(err)
	return lo.Filter(charges.Items, func(c *dto.ChargeResponse, _ int) bool {
		return c.Kind == kind
	})
}

func (s *BillingServiceSuite) TestHookVetoOnChargeReversesPull() {
	var veto types.Address
	s.GetHookResolver().Register("gate", hook.Func(func(_ context.Context, e *hook.ChargeEvent) error {
		if e.Subscriber == veto {
			return errors.New("subscriber is blocked")
		}
		return nil
	}))
	inst := s.produce(func(r *dto.ProduceInstanceRequest) { r.Hook = hook.LocalRef("gate") })
	sub := s.subscribe(inst, s.alice, 100)
	s.Advance(3 * month)
	veto = s.alice

	resp, err := s.service.Charge(s.ContextAs(s.owner), inst.ID, s.batch(s.alice))
	s.Require().NoError(err)
	s.Equal(types.OutcomeError, resp.Results[0].Outcome)
	s.assertBalance(s.alice, 70)
	s.assertBalance(s.recipient, 30)

	st := s.status(inst, s.alice)
	s.Equal(types.SubscriptionStateLapsed, st.State)
	s.Equal(0, st.RetriesUsed, "a veto is not a failed payment")
	s.True(st.ActiveUntil.Equal(sub.ActiveUntil))

	attempts := s.chargesOfKind(inst, s.alice, types.ChargeKindCharge)
	s.Require().Len(attempts, 1)
	s.Equal(types.ChargeStatusReversed, attempts[0].Status)
	s.Equal(1.0, promtest.ToFloat64(s.GetMetrics().HookFailuresTotal.WithLabelValues(opCharge)))

	// the period was never settled, so lifting the veto lets it be charged
	veto = ""
	resp, err = s.service.Charge(s.ContextAs(s.owner), inst.ID, s.batch(s.alice))
	s.Require().NoError(err)
	s.Equal(types.OutcomeCharged, resp.Results[0].Outcome)
	s.assertBalance(s.alice, 60)
}

func (s *BillingServiceSuite) TestHookVetoOnRestoreLeavesRecord() {
	var veto types.Address
	s.GetHookResolver().Register("gate", hook.Func(func(_ context.Context, e *hook.ChargeEvent) error {
		if e.Subscriber == veto {
			return errors.New("subscriber is blocked")
		}
		return nil
	}))
	inst := s.produce(func(r *dto.ProduceInstanceRequest) { r.Hook = hook.LocalRef("gate") })
	sub := s.subscribe(inst, s.alice, 100)
	s.Advance(4 * month)
	veto = s.alice

	_, err := s.service.Restore(s.ContextAs(s.alice), inst.ID)
	s.Require().Error(err)
	s.True(ierr.Is(err, ierr.ErrHookRejected))
	s.assertBalance(s.alice, 70)
	s.assertBalance(s.recipient, 30)

	st := s.status(inst, s.alice)
	s.Equal(types.SubscriptionStateLapsed, st.State)
	s.Equal(0, st.RetriesUsed)
	s.True(st.ActiveUntil.Equal(sub.ActiveUntil))

	attempts := s.chargesOfKind(inst, s.alice, types.ChargeKindRestore)
	s.Require().Len(attempts, 1)
	s.Equal(types.ChargeStatusReversed, attempts[0].Status)
	s.Equal(2, attempts[0].Intervals)
	s.Equal(1.0, promtest.ToFloat64(s.GetMetrics().HookFailuresTotal.WithLabelValues(opRestore)))
}

func (s *BillingServiceSuite) TestGatewayOutageKeepsRetries() {
	gw := testutil.NewFailingGateway(s.GetLedger())
	params := s.params()
	params.Relay = relay.NewRelay(s.GetRelay().Address(), gw, s.GetRegistry(), s.GetMetrics(), s.GetLogger())
	s.build(params)

	inst := s.produce(nil)
	sub := s.subscribe(inst, s.alice, 100)
	s.Advance(3 * month)
	gw.FailWith(errors.New("dial tcp: connection refused"))

	// more sweeps than the retry budget allows
	for i := 0; i < 4; i++ {
		resp, err := s.service.Charge(s.ContextAs(s.owner), inst.ID, s.batch(s.alice))
		s.Require().NoError(err)
		s.Equal(types.OutcomeError, resp.Results[0].Outcome)
	}

	st := s.status(inst, s.alice)
	s.Equal(types.SubscriptionStateLapsed, st.State)
	s.Equal(0, st.RetriesUsed)
	s.True(st.ActiveUntil.Equal(sub.ActiveUntil))

	_, err := s.service.Restore(s.ContextAs(s.alice), inst.ID)
	s.Require().Error(err)
	s.True(ierr.Is(err, ierr.ErrSystem))
	s.False(ierr.IsFundingFailure(err))

	gw.FailWith(nil)
	resp, err := s.service.Charge(s.ContextAs(s.owner), inst.ID, s.batch(s.alice))
	s.Require().NoError(err)
	s.Equal(types.OutcomeCharged, resp.Results[0].Outcome)
	s.assertBalance(s.alice, 60)
}

func (s *BillingServiceSuite) TestBatchIsolatesFailures() {
	var veto types.Address
	s.GetHookResolver().Register("gate", hook.Func(func(_ context.Context, e *hook.ChargeEvent) error {
		if e.Subscriber == veto {
			return errors.New("subscriber is blocked")
		}
		return nil
	}))
	inst := s.produce(func(r *dto.ProduceInstanceRequest) { r.Hook = hook.LocalRef("gate") })

	s.subscribe(inst, s.alice, 100)
	s.subscribe(inst, s.bob, 100)
	s.Advance(3 * month)
	veto = s.bob

	resp, err := s.service.Charge(s.ContextAs(s.owner), inst.ID, s.batch(s.alice, s.bob, s.carol))
	s.Require().NoError(err)
	s.Require().Len(resp.Results, 3)

	s.Equal(types.OutcomeCharged, resp.Results[0].Outcome)
	s.Equal(types.OutcomeError, resp.Results[1].Outcome)
	s.NotEmpty(resp.Results[1].Error)
	s.Equal(types.OutcomeSkipped, resp.Results[2].Outcome)

	s.assertBalance(s.alice, 60)
	s.assertBalance(s.bob, 70)
	s.Equal(types.SubscriptionStateActive, s.status(inst, s.alice).State)
	s.Equal(types.SubscriptionStateLapsed, s.status(inst, s.bob).State)
	s.Equal(0, s.status(inst, s.bob).RetriesUsed)

	// value is only ever moved between payers and the recipient
	total := s.Balance(s.asset, s.alice).Add(s.Balance(s.asset, s.bob)).Add(s.Balance(s.asset, s.recipient))
	s.True(total.Equal(dec(200)))
	s.Equal(1.0, promtest.ToFloat64(s.GetMetrics().OutcomesTotal.WithLabelValues(opCharge, string(types.OutcomeError))))
}

func (s *BillingServiceSuite) TestChargeDue() {
	inst := s.produce(nil)
	s.subscribe(inst, s.alice, 100)
	s.Advance(month)
	s.subscribe(inst, s.bob, 100)
	s.Advance(month)
	s.subscribe(inst, s.carol, 30)
	s.Advance(month)

	// only alice is overdue
	resp, err := s.service.ChargeDue(s.GetContext(), inst.ID)
	s.Require().NoError(err)
	s.Require().Len(resp.Results, 1)
	s.Equal(s.alice, resp.Results[0].Subscriber)
	s.Equal(types.OutcomeCharged, resp.Results[0].Outcome)

	s.Advance(2 * month)
	resp, err = s.service.ChargeDue(s.GetContext(), inst.Address.String())
	s.Require().NoError(err)
	s.Equal(2, resp.Count(types.OutcomeCharged))
	s.Equal(1, resp.Count(types.OutcomeRetryScheduled))
	s.assertBalance(s.alice, 50)
	s.assertBalance(s.bob, 60)
	s.assertBalance(s.carol, 0)
}

func (s *BillingServiceSuite) TestChargeDuePagesThroughSnapshot() {
	cfg := s.GetConfig()
	previous := cfg.Sweeper.BatchSize
	cfg.Sweeper.BatchSize = 1
	defer func() { cfg.Sweeper.BatchSize = previous }()

	inst := s.produce(nil)
	s.subscribe(inst, s.alice, 30)
	s.subscribe(inst, s.bob, 100)
	s.subscribe(inst, s.carol, 30)
	s.Advance(3 * month)

	resp, err := s.service.ChargeDue(s.GetContext(), inst.ID)
	s.Require().NoError(err)
	s.Len(resp.Results, 3)
	s.Equal(1, resp.Count(types.OutcomeCharged))
	s.Equal(2, resp.Count(types.OutcomeRetryScheduled))
}

func (s *BillingServiceSuite) TestCommunityRoleFollowsState() {
	gate := testutil.Addr("c1")
	s.Require().NoError(s.GetRegistry().Register(s.GetContext(), gate, types.ParticipantKindCommunity))
	inst := s.produce(func(r *dto.ProduceInstanceRequest) {
		r.Community = &dto.CommunityRequest{Address: gate.String(), RoleID: 7}
	})

	hasRole := func(who types.Address) bool {
		ok, err := s.GetRoles().HasRole(s.GetContext(), gate, 7, who)
		s.Require().NoError(err)
		return ok
	}

	s.subscribe(inst, s.alice, 100)
	s.subscribe(inst, s.bob, 30)
	s.True(hasRole(s.alice))
	s.True(hasRole(s.bob))

	_, err := s.service.Cancel(s.ContextAs(s.alice), inst.ID)
	s.Require().NoError(err)
	s.False(hasRole(s.alice))

	s.Advance(3 * month)
	for i := 0; i < 3; i++ {
		_, err := s.service.Charge(s.ContextAs(s.owner), inst.ID, s.batch(s.bob))
		s.Require().NoError(err)
	}
	s.Equal(types.SubscriptionStateBroken, s.status(inst, s.bob).State)
	s.False(hasRole(s.bob))
}

type unavailableRoles struct{}

func (unavailableRoles) Grant(context.Context, types.Address, int64, types.Address) error {
	return ierr.NewError("roles unavailable").Mark(ierr.ErrSystem)
}

func (unavailableRoles) Revoke(context.Context, types.Address, int64, types.Address) error {
	return ierr.NewError("roles unavailable").Mark(ierr.ErrSystem)
}

func (unavailableRoles) HasRole(context.Context, types.Address, int64, types.Address) (bool, error) {
	return false, ierr.NewError("roles unavailable").Mark(ierr.ErrSystem)
}

var _ community.Roles = unavailableRoles{}

func (s *BillingServiceSuite) TestCommunityFailureDoesNotBlockBilling() {
	gate := testutil.Addr("c2")
	s.Require().NoError(s.GetRegistry().Register(s.GetContext(), gate, types.ParticipantKindCommunity))

	params := s.params()
	params.Roles = unavailableRoles{}
	s.build(params)

	inst := s.produce(func(r *dto.ProduceInstanceRequest) {
		r.Community = &dto.CommunityRequest{Address: gate.String(), RoleID: 1}
	})
	resp := s.subscribe(inst, s.alice, 100)
	s.Equal(types.SubscriptionStateActive, resp.State)
	s.False(resp.RoleGranted)
	s.Equal(1.0, promtest.ToFloat64(s.GetMetrics().CommunitySyncErrs.WithLabelValues("grant")))
}

func (s *BillingServiceSuite) TestConcurrentChargesPullOnce() {
	inst := s.produce(nil)
	s.subscribe(inst, s.alice, 100)
	s.Advance(3 * month)

	var wg sync.WaitGroup
	results := make([]*dto.BatchResponse, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := s.service.Charge(s.ContextAs(s.owner), inst.ID, s.batch(s.alice))
			if err == nil {
				results[i] = resp
			}
		}(i)
	}
	wg.Wait()

	charged := 0
	for _, r := range results {
		s.Require().NotNil(r)
		charged += r.Count(types.OutcomeCharged)
	}
	s.Equal(1, charged)
	s.assertBalance(s.alice, 60)
}

func (s *BillingServiceSuite) TestIsActiveUnknownSubscriber() {
	inst := s.produce(nil)

	st := s.status(inst, s.alice)
	s.Equal(types.SubscriptionStateNone, st.State)
	s.False(st.Funded)
	s.Nil(st.ActiveUntil)

	until, err := s.service.ActiveUntil(s.GetContext(), inst.ID, s.alice)
	s.Require().NoError(err)
	s.True(until.IsZero())
}
