package api

import (
	"github.com/flexprice/pullpay/internal/api/cron"
	v1 "github.com/flexprice/pullpay/internal/api/v1"
	"github.com/flexprice/pullpay/internal/config"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/metrics"
	"github.com/flexprice/pullpay/internal/rest/middleware"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health       *v1.HealthHandler
	Instance     *v1.InstanceHandler
	Subscription *v1.SubscriptionHandler
	Asset        *v1.AssetHandler
	CronBilling  *cron.BillingHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger, m *metrics.Metrics) *gin.Engine {
	if cfg.Deployment.Mode != types.ModeLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.SentryMiddleware(cfg),
		middleware.SentryScopeMiddleware,
		middleware.MetricsMiddleware(m),
		middleware.CORSMiddleware(cfg),
		middleware.ErrorHandler(logger),
	)

	router.GET("/health", handlers.Health.Health)
	router.HEAD("/health", handlers.Health.Health)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	public := router.Group("/v1")
	private := router.Group("/v1")
	private.Use(middleware.AuthenticateMiddleware(cfg, logger), middleware.SentryScopeMiddleware)

	// Instances
	{
		public.GET("/instances", handlers.Instance.ListInstances)
		public.GET("/instances/:id", handlers.Instance.GetInstance)

		instances := private.Group("/instances")
		instances.POST("", handlers.Instance.Produce)
		instances.POST("/:id/initialize", handlers.Instance.Initialize)
		instances.POST("/:id/callers/:address", handlers.Instance.AddCaller)
		instances.DELETE("/:id/callers/:address", handlers.Instance.RemoveCaller)
		instances.PUT("/:id/hook", handlers.Instance.SetHook)
		instances.PUT("/:id/community", handlers.Instance.SetCommunity)
	}

	// Subscriptions
	{
		public.GET("/instances/:id/subscribers/:address", handlers.Subscription.GetStatus)
		public.GET("/instances/:id/subscribers/:address/active-until", handlers.Subscription.GetActiveUntil)
		public.GET("/instances/:id/subscribers/:address/charges", handlers.Subscription.ListCharges)

		subscriptions := private.Group("/instances/:id")
		subscriptions.POST("/subscribe", handlers.Subscription.Subscribe)
		subscriptions.POST("/subscribe-from-controller", handlers.Subscription.SubscribeFromController)
		subscriptions.POST("/charge", handlers.Subscription.Charge)
		subscriptions.POST("/restore", handlers.Subscription.Restore)
		subscriptions.POST("/restore/batch", handlers.Subscription.RestoreBatch)
		subscriptions.POST("/cancel", handlers.Subscription.Cancel)
		subscriptions.POST("/cancel/batch", handlers.Subscription.CancelBatch)
	}

	// Assets
	{
		public.GET("/assets/:asset/balances/:holder", handlers.Asset.GetBalance)

		assets := private.Group("/assets/:asset")
		assets.POST("/mint", handlers.Asset.Mint)
		assets.POST("/approve", handlers.Asset.Approve)
	}

	// Cron routes
	cronGroup := router.Group("/cron")
	cronGroup.Use(middleware.AuthenticateMiddleware(cfg, logger), middleware.OperatorOnlyMiddleware)
	{
		cronGroup.POST("/charge-due", handlers.CronBilling.ChargeDueAll)
		cronGroup.POST("/instances/:id/charge-due", handlers.CronBilling.ChargeDue)
	}

	return router
}
