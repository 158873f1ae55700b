package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flexprice/pullpay/internal/api/cron"
	"github.com/flexprice/pullpay/internal/api/dto"
	v1 "github.com/flexprice/pullpay/internal/api/v1"
	"github.com/flexprice/pullpay/internal/auth"
	"github.com/flexprice/pullpay/internal/config"
	"github.com/flexprice/pullpay/internal/rest/middleware"
	"github.com/flexprice/pullpay/internal/service"
	"github.com/flexprice/pullpay/internal/sweeper"
	"github.com/flexprice/pullpay/internal/testutil"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
)

const operatorKey = "operator-test-key"

type RouterSuite struct {
	testutil.BaseServiceTestSuite
	router *gin.Engine
	tokens auth.Provider

	owner types.Address
	alice types.Address
	asset types.Address
}

func TestRouter(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	gin.SetMode(gin.TestMode)

	s.owner = testutil.Addr("0e")
	s.alice = testutil.Addr("a1")
	s.asset = testutil.Addr("a5")

	cfg := s.GetConfig()
	cfg.Auth.APIKey.Keys = map[string]config.APIKeyDetails{
		auth.HashAPIKey(operatorKey): {Operator: true, IsActive: true},
	}
	s.tokens = auth.NewProvider(cfg)

	stores := s.GetStores()
	params := service.ServiceParams{
		Logger:         s.GetLogger(),
		Config:         cfg,
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
	billing := service.NewBillingService(params)
	sweep := sweeper.NewSweeper(cfg, s.GetLogger(), stores.InstanceRepo, billing, s.GetSentry())

	s.router = NewRouter(Handlers{
		Health:       v1.NewHealthHandler(s.GetLogger()),
		Instance:     v1.NewInstanceHandler(service.NewInstanceService(params), s.GetLogger()),
		Subscription: v1.NewSubscriptionHandler(billing, s.GetLogger()),
		Asset:        v1.NewAssetHandler(service.NewAssetService(params, s.GetLedger())),
		CronBilling:  cron.NewBillingHandler(billing, sweep, s.GetLogger()),
	}, cfg, s.GetLogger(), s.GetMetrics())
}

func (s *RouterSuite) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RouterSuite) as(caller types.Address) map[string]string {
	token, err := s.tokens.GenerateToken(caller, time.Hour)
	s.Require().NoError(err)
	return map[string]string{types.HeaderAuthorization: "Bearer " + token}
}

func (s *RouterSuite) produce() *dto.InstanceResponse {
	w := s.do(http.MethodPost, "/v1/instances", map[string]any{
		"salt":             "router-test",
		"interval_seconds": 30 * 24 * 3600,
		"intervals_min":    3,
		"intervals_max":    12,
		"max_retries":      2,
		"asset":            s.asset.String(),
		"price":            "10",
		"recipient":        s.owner.String(),
	}, s.as(s.owner))
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var inst dto.InstanceResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &inst))
	return &inst
}

func (s *RouterSuite) TestHealth() {
	w := s.do(http.MethodGet, "/health", nil, nil)
	s.Equal(http.StatusOK, w.Code)
	s.NotEmpty(w.Header().Get(types.HeaderRequestID))
}

func (s *RouterSuite) TestMetricsEndpoint() {
	s.do(http.MethodGet, "/health", nil, nil)

	w := s.do(http.MethodGet, "/metrics", nil, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "http_requests_total")
}

func (s *RouterSuite) TestProduceRequiresAuthentication() {
	w := s.do(http.MethodPost, "/v1/instances", map[string]any{}, nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/v1/instances", map[string]any{}, map[string]string{
		types.HeaderAuthorization: "Bearer not-a-token",
	})
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *RouterSuite) TestSubscribeFlow() {
	inst := s.produce()
	alice := s.as(s.alice)

	w := s.do(http.MethodPost, "/v1/assets/"+s.asset.String()+"/mint", map[string]any{
		"holder": s.alice.String(),
		"amount": "100",
	}, alice)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/v1/assets/"+s.asset.String()+"/approve", map[string]any{
		"amount": "100",
	}, alice)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/v1/instances/"+inst.ID+"/subscribe", map[string]any{"intervals": 3}, alice)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/v1/instances/"+inst.ID+"/subscribers/"+s.alice.String(), nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var status dto.SubscriberStatusResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &status))
	s.True(status.Funded)
	s.Equal(types.SubscriptionStateActive, status.State)

	w = s.do(http.MethodGet, "/v1/assets/"+s.asset.String()+"/balances/"+s.alice.String(), nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var balance dto.BalanceResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &balance))
	s.Equal("70", balance.Balance.String())
}

func (s *RouterSuite) TestErrorsCarryStatusAndHint() {
	inst := s.produce()

	w := s.do(http.MethodPost, "/v1/instances/"+inst.ID+"/subscribe", map[string]any{"intervals": 1}, s.as(s.alice))
	s.Equal(http.StatusBadRequest, w.Code)

	var resp middleware.ErrorResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.False(resp.Success)
	s.NotEmpty(resp.Error.Display)
	s.NotEmpty(resp.RequestID)

	w = s.do(http.MethodGet, "/v1/instances/does-not-exist", nil, nil)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/v1/instances/"+inst.ID+"/subscribers/not-an-address", nil, nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterSuite) TestChargeRequiresOwnerOrCaller() {
	inst := s.produce()

	w := s.do(http.MethodPost, "/v1/instances/"+inst.ID+"/charge", map[string]any{
		"subscribers": []string{s.alice.String()},
	}, s.as(s.alice))
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/v1/instances/"+inst.ID+"/charge", map[string]any{
		"subscribers": []string{s.alice.String()},
	}, s.as(s.owner))
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp dto.BatchResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Require().Len(resp.Results, 1)
	s.Equal(types.OutcomeSkipped, resp.Results[0].Outcome)
}

func (s *RouterSuite) TestCronIsOperatorOnly() {
	inst := s.produce()

	w := s.do(http.MethodPost, "/cron/instances/"+inst.ID+"/charge-due", nil, s.as(s.owner))
	s.Equal(http.StatusForbidden, w.Code)

	operator := map[string]string{s.GetConfig().Auth.APIKey.Header: operatorKey}
	w = s.do(http.MethodPost, "/cron/instances/"+inst.ID+"/charge-due", nil, operator)
	s.Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/cron/charge-due", nil, operator)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var summary sweeper.Summary
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &summary))
	s.Equal(1, summary.Instances)
}

func (s *RouterSuite) TestMintIsOperatorOnlyOutsideLocalMode() {
	s.GetConfig().Deployment.Mode = types.ModeAPI
	mint := map[string]any{"holder": s.alice.String(), "amount": "100"}
	path := "/v1/assets/" + s.asset.String()

	w := s.do(http.MethodPost, path+"/mint", mint, s.as(s.alice))
	s.Equal(http.StatusForbidden, w.Code, w.Body.String())

	w = s.do(http.MethodPost, path+"/mint", mint, map[string]string{s.GetConfig().Auth.APIKey.Header: operatorKey})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	// approvals and balances stay open to holders
	w = s.do(http.MethodPost, path+"/approve", map[string]any{"amount": "40"}, s.as(s.alice))
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, path+"/balances/"+s.alice.String(), nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var balance dto.BalanceResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &balance))
	s.Equal("100", balance.Balance.String())
	s.Equal("40", balance.Allowance.String())
}
