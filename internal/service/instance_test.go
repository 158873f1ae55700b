package service

import (
	"context"
	"testing"

	"github.com/flexprice/pullpay/internal/api/dto"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/hook"
	"github.com/flexprice/pullpay/internal/testutil"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type InstanceServiceSuite struct {
	testutil.BaseServiceTestSuite
	service InstanceService

	owner types.Address
	other types.Address
}

func TestInstanceService(t *testing.T) {
	suite.Run(t, new(InstanceServiceSuite))
}

func (s *InstanceServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.owner = testutil.Addr("a1")
	s.other = testutil.Addr("a9")

	stores := s.GetStores()
	s.service = NewInstanceService(ServiceParams{
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
	})
}

func (s *InstanceServiceSuite) request() *dto.ProduceInstanceRequest {
	return &dto.ProduceInstanceRequest{
		Salt:            "basic",
		IntervalSeconds: 86400,
		IntervalsMin:    1,
		IntervalsMax:    6,
		MaxRetries:      1,
		Asset:           testutil.Addr("a3").String(),
		Price:           decimal.RequireFromString("2.5"),
		Recipient:       testutil.Addr("a2").String(),
	}
}

func (s *InstanceServiceSuite) TestProduce() {
	testCases := []struct {
		name     string
		ctx      context.Context
		mutate   func(r *dto.ProduceInstanceRequest)
		sentinel error
	}{
		{
			name: "success",
			ctx:  s.ContextAs(s.owner),
		},
		{
			name:     "no_caller",
			ctx:      s.GetContext(),
			sentinel: ierr.ErrPermissionDenied,
		},
		{
			name:     "max_below_min",
			ctx:      s.ContextAs(s.owner),
			mutate:   func(r *dto.ProduceInstanceRequest) { r.IntervalsMin, r.IntervalsMax = 4, 2 },
			sentinel: ierr.ErrValidation,
		},
		{
			name:     "zero_price",
			ctx:      s.ContextAs(s.owner),
			mutate:   func(r *dto.ProduceInstanceRequest) { r.Price = decimal.Zero },
			sentinel: ierr.ErrValidation,
		},
		{
			name:     "malformed_asset",
			ctx:      s.ContextAs(s.owner),
			mutate:   func(r *dto.ProduceInstanceRequest) { r.Asset = "not-an-address" },
			sentinel: ierr.ErrValidation,
		},
		{
			name:     "unrecognized_controller",
			ctx:      s.ContextAs(s.owner),
			mutate:   func(r *dto.ProduceInstanceRequest) { r.Controller = testutil.Addr("c0").String() },
			sentinel: ierr.ErrInvalidConfig,
		},
		{
			name: "unrecognized_community",
			ctx:  s.ContextAs(s.owner),
			mutate: func(r *dto.ProduceInstanceRequest) {
				r.Community = &dto.CommunityRequest{Address: testutil.Addr("c1").String(), RoleID: 1}
			},
			sentinel: ierr.ErrInvalidCommunitySettings,
		},
		{
			name:     "unknown_local_hook",
			ctx:      s.ContextAs(s.owner),
			mutate:   func(r *dto.ProduceInstanceRequest) { r.Hook = hook.LocalRef("missing") },
			sentinel: ierr.ErrHookRejected,
		},
		{
			name:     "unsupported_hook_scheme",
			ctx:      s.ContextAs(s.owner),
			mutate:   func(r *dto.ProduceInstanceRequest) { r.Hook = "ftp://hooks.example.com" },
			sentinel: ierr.ErrValidation,
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			req := s.request()
			req.Salt = tc.name
			if tc.mutate != nil {
				tc.mutate(req)
			}

			resp, err := s.service.Produce(tc.ctx, req)
			if tc.sentinel != nil {
				s.Error(err)
				s.True(ierr.Is(err, tc.sentinel), "expected %v, got %v", tc.sentinel, err)
				return
			}

			s.Require().NoError(err)
			s.Equal(s.owner, resp.Owner)
			s.Equal(types.DeriveAddress(s.owner, tc.name), resp.Address)
			s.Equal(int64(86400), resp.IntervalSeconds)
			s.Equal(6, resp.MaxCatchUpIntervals)
			s.True(resp.ActivationAmount.Equal(decimal.RequireFromString("2.5")))
			s.Require().NotNil(resp.InitializedAt)
			s.True(resp.InitializedAt.Equal(s.GetNow()))

			ok, err := s.GetRegistry().IsInstance(s.GetContext(), resp.Address)
			s.Require().NoError(err)
			s.True(ok)
		})
	}
}

func (s *InstanceServiceSuite) TestProduceSameSaltTwice() {
	_, err := s.service.Produce(s.ContextAs(s.owner), s.request())
	s.Require().NoError(err)

	_, err = s.service.Produce(s.ContextAs(s.owner), s.request())
	s.True(ierr.IsAlreadyExists(err))

	// another owner derives a different address from the same salt
	_, err = s.service.Produce(s.ContextAs(s.other), s.request())
	s.NoError(err)
}

func (s *InstanceServiceSuite) TestProduceWithExtensions() {
	controller := testutil.Addr("c0")
	gate := testutil.Addr("c1")
	s.Require().NoError(s.GetRegistry().Register(s.GetContext(), controller, types.ParticipantKindController))
	s.Require().NoError(s.GetRegistry().Register(s.GetContext(), gate, types.ParticipantKindCommunity))
	s.GetHookResolver().Register("audit", hook.Func(func(context.Context, *hook.ChargeEvent) error { return nil }))

	req := s.request()
	req.Controller = controller.String()
	req.Community = &dto.CommunityRequest{Address: gate.String(), RoleID: 3}
	req.Hook = hook.LocalRef("audit")

	resp, err := s.service.Produce(s.ContextAs(s.owner), req)
	s.Require().NoError(err)
	s.Equal(controller, resp.Controller)
	s.Require().NotNil(resp.Community)
	s.Equal(gate, resp.Community.Address)
	s.Equal(int64(3), resp.Community.RoleID)
	s.Equal("local:audit", resp.Hook)
}

func (s *InstanceServiceSuite) TestInitializeOnlyOnce() {
	resp, err := s.service.Produce(s.ContextAs(s.owner), s.request())
	s.Require().NoError(err)

	_, err = s.service.Initialize(s.ContextAs(s.other), resp.ID)
	s.True(ierr.Is(err, ierr.ErrPermissionDenied))

	_, err = s.service.Initialize(s.ContextAs(s.owner), resp.Address.String())
	s.True(ierr.Is(err, ierr.ErrAlreadyInitialized))
}

func (s *InstanceServiceSuite) TestGetAndList() {
	first, err := s.service.Produce(s.ContextAs(s.owner), s.request())
	s.Require().NoError(err)
	req := s.request()
	req.Salt = "second"
	_, err = s.service.Produce(s.ContextAs(s.owner), req)
	s.Require().NoError(err)

	byID, err := s.service.GetInstance(s.GetContext(), first.ID)
	s.Require().NoError(err)
	byAddr, err := s.service.GetInstance(s.GetContext(), first.Address.String())
	s.Require().NoError(err)
	s.Equal(byID.ID, byAddr.ID)

	_, err = s.service.GetInstance(s.GetContext(), testutil.Addr("ff").String())
	s.True(ierr.IsNotFound(err))

	list, err := s.service.ListInstances(s.GetContext(), types.QueryFilter{Limit: 10})
	s.Require().NoError(err)
	s.Len(list.Items, 2)

	// the total covers every instance, not just the page
	page, err := s.service.ListInstances(s.GetContext(), types.QueryFilter{Limit: 1, Offset: 1})
	s.Require().NoError(err)
	s.Len(page.Items, 1)
	s.Equal(2, page.Pagination.Total)
}

func (s *InstanceServiceSuite) TestCallers() {
	inst, err := s.service.Produce(s.ContextAs(s.owner), s.request())
	s.Require().NoError(err)
	caller := testutil.Addr("d1")

	err = s.service.AddCaller(s.ContextAs(s.other), inst.ID, caller)
	s.True(ierr.Is(err, ierr.ErrPermissionDenied))

	err = s.service.AddCaller(s.ContextAs(s.owner), inst.ID, types.ZeroAddress)
	s.True(ierr.IsValidation(err))

	s.Require().NoError(s.service.AddCaller(s.ContextAs(s.owner), inst.ID, caller))
	s.Require().NoError(s.service.AddCaller(s.ContextAs(s.owner), inst.ID, caller))

	got, err := s.service.GetInstance(s.GetContext(), inst.ID)
	s.Require().NoError(err)
	s.Equal([]types.Address{caller}, got.Callers)

	s.Require().NoError(s.service.RemoveCaller(s.ContextAs(s.owner), inst.ID, caller))
	got, err = s.service.GetInstance(s.GetContext(), inst.ID)
	s.Require().NoError(err)
	s.Empty(got.Callers)
}

func (s *InstanceServiceSuite) TestSetHook() {
	inst, err := s.service.Produce(s.ContextAs(s.owner), s.request())
	s.Require().NoError(err)
	s.GetHookResolver().Register("audit", hook.Func(func(context.Context, *hook.ChargeEvent) error { return nil }))

	_, err = s.service.SetHook(s.ContextAs(s.other), inst.ID, &dto.SetHookRequest{Hook: hook.LocalRef("audit")})
	s.True(ierr.Is(err, ierr.ErrPermissionDenied))

	_, err = s.service.SetHook(s.ContextAs(s.owner), inst.ID, &dto.SetHookRequest{Hook: hook.LocalRef("missing")})
	s.True(ierr.Is(err, ierr.ErrHookRejected))

	resp, err := s.service.SetHook(s.ContextAs(s.owner), inst.ID, &dto.SetHookRequest{Hook: hook.LocalRef("audit")})
	s.Require().NoError(err)
	s.Equal("local:audit", resp.Hook)
	s.Equal(s.owner.String(), resp.UpdatedBy)

	resp, err = s.service.SetHook(s.ContextAs(s.owner), inst.ID, &dto.SetHookRequest{})
	s.Require().NoError(err)
	s.Empty(resp.Hook)
}

func (s *InstanceServiceSuite) TestSetCommunity() {
	inst, err := s.service.Produce(s.ContextAs(s.owner), s.request())
	s.Require().NoError(err)
	gate := testutil.Addr("c1")

	req := &dto.SetCommunityRequest{CommunityRequest: dto.CommunityRequest{Address: gate.String(), RoleID: 5}}

	_, err = s.service.SetCommunity(s.ContextAs(s.owner), inst.ID, req)
	s.True(ierr.Is(err, ierr.ErrInvalidCommunitySettings), "community must be registered")

	s.Require().NoError(s.GetRegistry().Register(s.GetContext(), gate, types.ParticipantKindCommunity))

	_, err = s.service.SetCommunity(s.ContextAs(s.owner), inst.ID,
		&dto.SetCommunityRequest{CommunityRequest: dto.CommunityRequest{Address: gate.String()}})
	s.True(ierr.Is(err, ierr.ErrInvalidCommunitySettings), "role id must be non-zero")

	_, err = s.service.SetCommunity(s.ContextAs(s.owner), inst.ID,
		&dto.SetCommunityRequest{CommunityRequest: dto.CommunityRequest{Address: "0x12"}})
	s.True(ierr.Is(err, ierr.ErrInvalidCommunitySettings))

	_, err = s.service.SetCommunity(s.ContextAs(s.other), inst.ID, req)
	s.True(ierr.Is(err, ierr.ErrPermissionDenied))

	resp, err := s.service.SetCommunity(s.ContextAs(s.owner), inst.ID, req)
	s.Require().NoError(err)
	s.Require().NotNil(resp.Community)
	s.Equal(int64(5), resp.Community.RoleID)
}
