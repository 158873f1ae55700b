package service

import (
	"github.com/flexprice/pullpay/internal/asset"
	"github.com/flexprice/pullpay/internal/community"
	"github.com/flexprice/pullpay/internal/config"
	"github.com/flexprice/pullpay/internal/domain/charge"
	"github.com/flexprice/pullpay/internal/domain/instance"
	"github.com/flexprice/pullpay/internal/domain/subscription"
	"github.com/flexprice/pullpay/internal/hook"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/metrics"
	"github.com/flexprice/pullpay/internal/postgres"
	"github.com/flexprice/pullpay/internal/publisher"
	"github.com/flexprice/pullpay/internal/registry"
	"github.com/flexprice/pullpay/internal/relay"
	"github.com/flexprice/pullpay/internal/sentry"
	"github.com/jonboulle/clockwork"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient
	// Clock is the only source of "now" for billing decisions
	Clock clockwork.Clock

	// Repositories
	InstanceRepo   instance.Repository
	SubscriberRepo subscription.Repository
	ChargeRepo     charge.Repository

	// Collaborators
	Registry     registry.Registry
	Relay        relay.Relay
	Gateway      asset.Gateway
	HookResolver hook.Resolver
	Roles        community.Roles

	Metrics *metrics.Metrics
	Sentry  *sentry.Service

	// Publishers
	EventPublisher publisher.EventPublisher
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	clock clockwork.Clock,
	instanceRepo instance.Repository,
	subscriberRepo subscription.Repository,
	chargeRepo charge.Repository,
	registry registry.Registry,
	relay relay.Relay,
	gateway asset.Gateway,
	hookResolver hook.Resolver,
	roles community.Roles,
	metrics *metrics.Metrics,
	sentry *sentry.Service,
	eventPublisher publisher.EventPublisher,
) ServiceParams {
	return ServiceParams{
		Logger:         logger,
		Config:         config,
		DB:             db,
		Clock:          clock,
		InstanceRepo:   instanceRepo,
		SubscriberRepo: subscriberRepo,
		ChargeRepo:     chargeRepo,
		Registry:       registry,
		Relay:          relay,
		Gateway:        gateway,
		HookResolver:   hookResolver,
		Roles:          roles,
		Metrics:        metrics,
		Sentry:         sentry,
		EventPublisher: eventPublisher,
	}
}
