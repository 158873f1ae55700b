package main

import (
	"context"
	"net/http"
	"time"

	"github.com/flexprice/pullpay/internal/api"
	"github.com/flexprice/pullpay/internal/api/cron"
	v1 "github.com/flexprice/pullpay/internal/api/v1"
	"github.com/flexprice/pullpay/internal/asset"
	"github.com/flexprice/pullpay/internal/cache"
	"github.com/flexprice/pullpay/internal/community"
	"github.com/flexprice/pullpay/internal/config"
	"github.com/flexprice/pullpay/internal/domain/participant"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/hook"
	"github.com/flexprice/pullpay/internal/httpclient"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/metrics"
	"github.com/flexprice/pullpay/internal/postgres"
	"github.com/flexprice/pullpay/internal/publisher"
	"github.com/flexprice/pullpay/internal/registry"
	"github.com/flexprice/pullpay/internal/relay"
	"github.com/flexprice/pullpay/internal/repository"
	"github.com/flexprice/pullpay/internal/sentry"
	"github.com/flexprice/pullpay/internal/service"
	"github.com/flexprice/pullpay/internal/sweeper"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/flexprice/pullpay/internal/validator"
	"github.com/flexprice/pullpay/internal/webhook"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	"go.uber.org/fx"
)

// @title PullPay API
// @version 1.0
// @description Recurring pull-payment subscriptions
// @BasePath /v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer token whose subject is the caller address

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Monitoring
			metrics.NewMetrics,

			// Clock
			clockwork.NewRealClock,

			// Repositories
			repository.NewInstanceRepository,
			repository.NewSubscriberRepository,
			repository.NewChargeRepository,
			repository.NewParticipantRepository,

			// Ecosystem
			provideRegistry,
			provideBook,
			provideGateway,
			provideRelay,
			provideHookResolver,
			provideRoles,

			// Event Publisher
			publisher.NewEventPublisher,
		),
		sentry.Module(),
		postgres.Module(),
	)

	// Webhook module (must be initialised before services)
	opts = append(opts, webhook.Module)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,
			service.NewInstanceService,
			service.NewBillingService,
			provideAssetService,
			sweeper.NewSweeper,
		),
	)

	// API
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			provideRouter,
		),
		fx.Invoke(
			startServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideRegistry(
	cfg *config.Configuration,
	repo participant.Repository,
	log *logger.Logger,
) registry.Registry {
	return registry.NewRegistry(repo, cache.NewInMemoryCache(cfg.Registry.CacheTTL), cfg.Registry.CacheTTL, log)
}

// provideBook keeps balances in postgres. The in-memory ledger is only
// accepted in local mode since it loses every balance on restart.
func provideBook(cfg *config.Configuration, db postgres.IClient, log *logger.Logger) (asset.Book, error) {
	switch cfg.Asset.Store {
	case types.AssetStoreMemory:
		if cfg.Deployment.Mode != types.ModeLocal {
			return nil, ierr.NewErrorf("asset store %q is not allowed in %s mode", cfg.Asset.Store, cfg.Deployment.Mode).
				WithHint("Use the postgres asset store outside local mode").
				Mark(ierr.ErrNotSupported)
		}
		log.Warnw("asset balances are kept in memory and lost on restart")
		return asset.NewLedger(), nil
	case types.AssetStorePostgres, "":
		return repository.NewAssetGateway(db, log), nil
	default:
		return nil, ierr.NewErrorf("unknown asset store %q", cfg.Asset.Store).
			Mark(ierr.ErrValidation)
	}
}

func provideGateway(book asset.Book) asset.Gateway {
	return book
}

func provideRelay(
	cfg *config.Configuration,
	gateway asset.Gateway,
	reg registry.Registry,
	m *metrics.Metrics,
	log *logger.Logger,
) (relay.Relay, error) {
	address, err := types.ParseAddress(cfg.Relay.Address)
	if err != nil {
		return nil, err
	}
	return relay.NewRelay(address, gateway, reg, m, log), nil
}

func provideHookResolver(cfg *config.Configuration, client httpclient.Client, log *logger.Logger) hook.Resolver {
	return hook.NewResolver(func(url string) hook.Hook {
		return hook.NewHTTPHook(url, client, cfg.Hook.MaxRetries, log)
	})
}

// provideRoles keeps community roles in redis when it is enabled, in memory otherwise
func provideRoles(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) community.Roles {
	if !cfg.Redis.Enabled {
		log.Warnw("redis disabled, community roles are kept in memory")
		return community.NewMemoryRoles()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Errorw("redis unreachable, role sync will report errors", "address", cfg.Redis.Address, "error", err)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return community.NewRedisRoles(client, log)
}

func provideAssetService(params service.ServiceParams, book asset.Book) service.AssetService {
	return service.NewAssetService(params, book)
}

func provideHandlers(
	logger *logger.Logger,
	instanceService service.InstanceService,
	billingService service.BillingService,
	assetService service.AssetService,
	sweep *sweeper.Sweeper,
) api.Handlers {
	return api.Handlers{
		Health:       v1.NewHealthHandler(logger),
		Instance:     v1.NewInstanceHandler(instanceService, logger),
		Subscription: v1.NewSubscriptionHandler(billingService, logger),
		Asset:        v1.NewAssetHandler(assetService),
		CronBilling:  cron.NewBillingHandler(billingService, sweep, logger),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration, logger *logger.Logger, m *metrics.Metrics) *gin.Engine {
	return api.NewRouter(handlers, cfg, logger, m)
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	sweep *sweeper.Sweeper,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		startAPIServer(lc, r, cfg, log)
		sweeper.RegisterHooks(lc, sweep)
	case types.ModeAPI:
		startAPIServer(lc, r, cfg, log)
	case types.ModeSweeper:
		if !cfg.Sweeper.Enabled {
			log.Fatal("sweeper mode requires sweeper.enabled")
		}
		sweeper.RegisterHooks(lc, sweep)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("Registering API server start hook")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("Starting API server...", "address", cfg.Server.Address)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return srv.Shutdown(ctx)
		},
	})
}
