package webhook

import (
	"context"

	"github.com/flexprice/pullpay/internal/config"
	"github.com/flexprice/pullpay/internal/logger"
	pubsubRouter "github.com/flexprice/pullpay/internal/pubsub/router"
	"github.com/flexprice/pullpay/internal/webhook/handler"
	"github.com/flexprice/pullpay/internal/webhook/publisher"
	"go.uber.org/fx"
)

// WebhookService runs the delivery router for published notifications
type WebhookService struct {
	config    *config.Configuration
	publisher publisher.WebhookPublisher
	handler   handler.Handler
	router    *pubsubRouter.Router
	logger    *logger.Logger
}

func NewWebhookService(
	cfg *config.Configuration,
	publisher publisher.WebhookPublisher,
	h handler.Handler,
	router *pubsubRouter.Router,
	l *logger.Logger,
) *WebhookService {
	return &WebhookService{
		config:    cfg,
		publisher: publisher,
		handler:   h,
		router:    router,
		logger:    l,
	}
}

// Start registers the handler and runs the router in the background
func (s *WebhookService) Start(ctx context.Context) error {
	if !s.config.Webhook.Enabled {
		s.logger.Info("webhook service disabled")
		return nil
	}

	s.handler.RegisterHandler(s.router)
	go func() {
		if err := s.router.Run(context.Background()); err != nil {
			s.logger.Errorw("webhook router stopped", "error", err)
		}
	}()

	select {
	case <-s.router.Running():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.logger.Infow("webhook service started", "endpoints", len(s.config.Webhook.Endpoints))
	return nil
}

// Stop closes the router first so no new messages are processed, then the publisher
func (s *WebhookService) Stop() error {
	if s.config.Webhook.Enabled {
		if err := s.router.Close(); err != nil {
			s.logger.Errorw("failed to close webhook router", "error", err)
			return err
		}
	}
	if err := s.publisher.Close(); err != nil {
		s.logger.Errorw("failed to close webhook publisher", "error", err)
		return err
	}
	s.logger.Info("webhook service stopped")
	return nil
}

// RegisterHooks ties the service to the fx lifecycle
func RegisterHooks(lc fx.Lifecycle, svc *WebhookService) {
	lc.Append(fx.Hook{
		OnStart: svc.Start,
		OnStop: func(context.Context) error {
			return svc.Stop()
		},
	})
}
