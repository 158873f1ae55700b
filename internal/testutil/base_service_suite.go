package testutil

import (
	"context"
	"time"

	"github.com/flexprice/pullpay/internal/asset"
	"github.com/flexprice/pullpay/internal/cache"
	"github.com/flexprice/pullpay/internal/community"
	"github.com/flexprice/pullpay/internal/config"
	"github.com/flexprice/pullpay/internal/domain/charge"
	"github.com/flexprice/pullpay/internal/domain/instance"
	"github.com/flexprice/pullpay/internal/domain/participant"
	"github.com/flexprice/pullpay/internal/domain/subscription"
	"github.com/flexprice/pullpay/internal/hook"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/metrics"
	"github.com/flexprice/pullpay/internal/registry"
	"github.com/flexprice/pullpay/internal/relay"
	"github.com/flexprice/pullpay/internal/sentry"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/flexprice/pullpay/internal/validator"
	webhookPublisher "github.com/flexprice/pullpay/internal/webhook/publisher"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	InstanceRepo    instance.Repository
	SubscriberRepo  subscription.Repository
	ChargeRepo      charge.Repository
	ParticipantRepo participant.Repository
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx              context.Context
	stores           Stores
	ledger           *asset.Ledger
	registry         registry.Registry
	relay            relay.Relay
	hooks            *hook.DefaultResolver
	roles            *community.MemoryRoles
	metrics          *metrics.Metrics
	sentry           *sentry.Service
	publisher        *InMemoryEventPublisher
	webhookPublisher webhookPublisher.WebhookPublisher
	db               *MockPostgresClient
	logger           *logger.Logger
	config           *config.Configuration
	clock            *clockwork.FakeClock
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	s.config = config.GetDefaultConfig()
	s.config.Logging.Level = types.LogLevelInfo

	var err error
	s.logger, err = logger.NewLogger(s.config)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
	s.sentry = sentry.NewSentryService(s.config, s.logger)
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.clock = clockwork.NewFakeClockAt(time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC))
	s.ctx = SetupContext()
	s.setupStores()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		InstanceRepo:    NewInMemoryInstanceStore(),
		SubscriberRepo:  NewInMemorySubscriberStore(),
		ChargeRepo:      NewInMemoryChargeStore(),
		ParticipantRepo: NewInMemoryParticipantStore(),
	}

	s.db = NewMockPostgresClient(s.logger)
	s.metrics = metrics.NewMetrics()
	s.ledger = asset.NewLedger()
	s.registry = registry.NewRegistry(
		s.stores.ParticipantRepo,
		cache.NewInMemoryCache(time.Minute),
		time.Minute,
		s.logger,
	)
	s.relay = relay.NewRelay(
		types.MustParseAddress(s.config.Relay.Address),
		s.ledger,
		s.registry,
		s.metrics,
		s.logger,
	)
	s.hooks = hook.NewResolver(nil)
	s.roles = community.NewMemoryRoles()
	s.publisher = NewInMemoryEventPublisher()

	pub, err := webhookPublisher.NewPublisher(NewRecordingPubSub(), s.config, s.logger)
	if err != nil {
		s.T().Fatalf("failed to create webhook publisher: %v", err)
	}
	s.webhookPublisher = pub
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.InstanceRepo.(*InMemoryInstanceStore).Clear()
	s.stores.SubscriberRepo.(*InMemorySubscriberStore).Clear()
	s.stores.ChargeRepo.(*InMemoryChargeStore).Clear()
	s.stores.ParticipantRepo.(*InMemoryParticipantStore).Clear()
	s.publisher.Clear()
}

func (s *BaseServiceTestSuite) ClearStores() {
	s.clearStores()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// ContextAs returns the test context with caller attached
func (s *BaseServiceTestSuite) ContextAs(caller types.Address) context.Context {
	return types.SetCaller(s.ctx, caller)
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceTestSuite) GetLedger() *asset.Ledger {
	return s.ledger
}

func (s *BaseServiceTestSuite) GetRegistry() registry.Registry {
	return s.registry
}

func (s *BaseServiceTestSuite) GetRelay() relay.Relay {
	return s.relay
}

func (s *BaseServiceTestSuite) GetHookResolver() *hook.DefaultResolver {
	return s.hooks
}

func (s *BaseServiceTestSuite) GetRoles() *community.MemoryRoles {
	return s.roles
}

func (s *BaseServiceTestSuite) GetMetrics() *metrics.Metrics {
	return s.metrics
}

func (s *BaseServiceTestSuite) GetSentry() *sentry.Service {
	return s.sentry
}

// GetPublisher returns the recording notification publisher
func (s *BaseServiceTestSuite) GetPublisher() *InMemoryEventPublisher {
	return s.publisher
}

// GetWebhookPublisher returns the test webhook publisher
func (s *BaseServiceTestSuite) GetWebhookPublisher() webhookPublisher.WebhookPublisher {
	return s.webhookPublisher
}

// GetDB returns the test database client
func (s *BaseServiceTestSuite) GetDB() *MockPostgresClient {
	return s.db
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetClock returns the fake clock driving every time comparison
func (s *BaseServiceTestSuite) GetClock() *clockwork.FakeClock {
	return s.clock
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.clock.Now().UTC()
}

// Advance moves the fake clock forward
func (s *BaseServiceTestSuite) Advance(d time.Duration) {
	s.clock.Advance(d)
}

// GetUUID returns a new UUID string
func (s *BaseServiceTestSuite) GetUUID() string {
	return types.GenerateUUID()
}

// Fund mints amount of asset to holder and approves the relay for allowance
func (s *BaseServiceTestSuite) Fund(assetAddr, holder types.Address, amount, allowance decimal.Decimal) {
	s.Require().NoError(s.ledger.Mint(s.ctx, assetAddr, holder, amount))
	s.Require().NoError(s.ledger.Approve(s.ctx, assetAddr, holder, s.relay.Address(), allowance))
}

// Balance returns holder's balance of asset
func (s *BaseServiceTestSuite) Balance(assetAddr, holder types.Address) decimal.Decimal {
	b, err := s.ledger.BalanceOf(s.ctx, assetAddr, holder)
	s.Require().NoError(err)
	return b
}

// Addr builds a deterministic test address from a short hex suffix
func Addr(suffix string) types.Address {
	const zeros = "0000000000000000000000000000000000000000"
	return types.MustParseAddress("0x" + zeros[:len(zeros)-len(suffix)] + suffix)
}
