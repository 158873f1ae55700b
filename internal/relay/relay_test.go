package relay_test

import (
	"errors"
	"testing"

	"github.com/flexprice/pullpay/internal/asset"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/relay"
	"github.com/flexprice/pullpay/internal/testutil"
	"github.com/flexprice/pullpay/internal/types"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type RelaySuite struct {
	testutil.BaseServiceTestSuite
	relay    relay.Relay
	asset    types.Address
	instance types.Address
	payer    types.Address
	payee    types.Address
}

func TestRelay(t *testing.T) {
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.relay = s.GetRelay()
	s.asset = testutil.Addr("a55e7")
	s.instance = testutil.Addr("1a57")
	s.payer = testutil.Addr("bee")
	s.payee = testutil.Addr("cafe")

	s.Require().NoError(s.GetRegistry().Register(s.GetContext(), s.instance, types.ParticipantKindInstance))
}

func (s *RelaySuite) pull(instance types.Address, amount int64) error {
	_, err := s.relay.Pull(s.GetContext(), &relay.PullRequest{
		Instance: instance,
		Asset:    s.asset,
		Amount:   decimal.NewFromInt(amount),
		From:     s.payer,
		To:       s.payee,
	})
	return err
}

func (s *RelaySuite) TestPullMovesFunds() {
	s.Fund(s.asset, s.payer, decimal.NewFromInt(100), decimal.NewFromInt(50))

	s.Require().NoError(s.pull(s.instance, 30))
	s.True(s.Balance(s.asset, s.payer).Equal(decimal.NewFromInt(70)))
	s.True(s.Balance(s.asset, s.payee).Equal(decimal.NewFromInt(30)))

	left, err := s.GetLedger().Allowance(s.GetContext(), s.asset, s.payer, s.relay.Address())
	s.NoError(err)
	s.True(left.Equal(decimal.NewFromInt(20)))
	s.Equal(1.0, promtest.ToFloat64(s.GetMetrics().PullsTotal.WithLabelValues("succeeded")))
}

func (s *RelaySuite) TestUnregisteredInstanceIsRejected() {
	s.Fund(s.asset, s.payer, decimal.NewFromInt(100), decimal.NewFromInt(100))

	err := s.pull(testutil.Addr("bad"), 10)
	s.True(ierr.Is(err, ierr.ErrUnauthorizedCaller))
	s.True(s.Balance(s.asset, s.payer).Equal(decimal.NewFromInt(100)))
}

func (s *RelaySuite) TestAllowanceMustTargetRelay() {
	s.Require().NoError(s.GetLedger().Mint(s.GetContext(), s.asset, s.payer, decimal.NewFromInt(100)))
	// approving the instance itself is not enough
	s.Require().NoError(s.GetLedger().Approve(s.GetContext(), s.asset, s.payer, s.instance, decimal.NewFromInt(100)))

	err := s.pull(s.instance, 10)
	s.True(ierr.IsFundingFailure(err))
	s.True(s.Balance(s.asset, s.payee).IsZero())
}

func (s *RelaySuite) TestInsufficientBalanceIsRecoverable() {
	s.Fund(s.asset, s.payer, decimal.NewFromInt(5), decimal.NewFromInt(100))

	err := s.pull(s.instance, 10)
	s.True(ierr.Is(err, ierr.ErrChargeFailed))
	s.True(s.Balance(s.asset, s.payer).Equal(decimal.NewFromInt(5)))
	s.Equal(1.0, promtest.ToFloat64(s.GetMetrics().PullsTotal.WithLabelValues("failed")))
}

func (s *RelaySuite) TestReverseRestoresFundsAndAllowance() {
	s.Fund(s.asset, s.payer, decimal.NewFromInt(100), decimal.NewFromInt(40))

	t, err := s.relay.Pull(s.GetContext(), &relay.PullRequest{
		Instance: s.instance,
		Asset:    s.asset,
		Amount:   decimal.NewFromInt(40),
		From:     s.payer,
		To:       s.payee,
	})
	s.Require().NoError(err)
	s.Require().NoError(s.relay.Reverse(s.GetContext(), t))

	s.True(s.Balance(s.asset, s.payer).Equal(decimal.NewFromInt(100)))
	s.True(s.Balance(s.asset, s.payee).IsZero())
	s.NoError(s.pull(s.instance, 40), "allowance is available again")
}

func (s *RelaySuite) TestGatewayErrorIsNotAFundingFailure() {
	s.Fund(s.asset, s.payer, decimal.NewFromInt(100), decimal.NewFromInt(100))
	gw := testutil.NewFailingGateway(s.GetLedger())
	r := relay.NewRelay(s.relay.Address(), gw, s.GetRegistry(), s.GetMetrics(), s.GetLogger())

	tests := []struct {
		name     string
		err      error
		funding  bool
		sentinel error
	}{
		{name: "transport", err: errors.New("dial tcp: connection refused"), sentinel: ierr.ErrSystem},
		{name: "database", err: ierr.NewError("connection reset").Mark(ierr.ErrDatabase), sentinel: ierr.ErrDatabase},
		{name: "validation", err: ierr.NewError("bad amount").Mark(ierr.ErrValidation), sentinel: ierr.ErrValidation},
		{name: "insufficient allowance", err: asset.ErrInsufficientAllowance, funding: true, sentinel: ierr.ErrChargeFailed},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			gw.FailWith(tt.err)
			_, err := r.Pull(s.GetContext(), &relay.PullRequest{
				Instance: s.instance,
				Asset:    s.asset,
				Amount:   decimal.NewFromInt(10),
				From:     s.payer,
				To:       s.payee,
			})
			s.Require().Error(err)
			s.Equal(tt.funding, ierr.IsFundingFailure(err))
			s.True(ierr.Is(err, tt.sentinel))
		})
	}

	s.True(s.Balance(s.asset, s.payer).Equal(decimal.NewFromInt(100)))
	s.Equal(3.0, promtest.ToFloat64(s.GetMetrics().PullsTotal.WithLabelValues("error")))
	s.Equal(1.0, promtest.ToFloat64(s.GetMetrics().PullsTotal.WithLabelValues("failed")))
}
