package webhook

import (
	"github.com/flexprice/pullpay/internal/config"
	"github.com/flexprice/pullpay/internal/httpclient"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/pubsub"
	"github.com/flexprice/pullpay/internal/pubsub/memory"
	pubsubRouter "github.com/flexprice/pullpay/internal/pubsub/router"
	"github.com/flexprice/pullpay/internal/webhook/handler"
	"github.com/flexprice/pullpay/internal/webhook/publisher"
	"go.uber.org/fx"
)

// Module provides all webhook-related dependencies
var Module = fx.Options(
	fx.Provide(
		providePubSub,
		pubsubRouter.NewRouter,
		publisher.NewPublisher,
		provideHTTPClient,
		handler.NewHandler,
		NewWebhookService,
	),
	fx.Invoke(RegisterHooks),
)

func providePubSub(logger *logger.Logger) pubsub.PubSub {
	return memory.NewPubSub(logger)
}

func provideHTTPClient(cfg *config.Configuration) httpclient.Client {
	return httpclient.NewClient(httpclient.ClientConfig{Timeout: cfg.Hook.Timeout})
}
