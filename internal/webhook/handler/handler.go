package handler

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/pullpay/internal/config"
	"github.com/flexprice/pullpay/internal/httpclient"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/pubsub"
	pubsubRouter "github.com/flexprice/pullpay/internal/pubsub/router"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/samber/lo"
)

// Handler delivers notification events to the configured endpoints
type Handler interface {
	RegisterHandler(router *pubsubRouter.Router)
}

type handler struct {
	pubSub pubsub.PubSub
	config *config.Webhook
	client httpclient.Client
	logger *logger.Logger
}

func NewHandler(
	pubSub pubsub.PubSub,
	cfg *config.Configuration,
	client httpclient.Client,
	logger *logger.Logger,
) (Handler, error) {
	return &handler{
		pubSub: pubSub,
		config: &cfg.Webhook,
		client: client,
		logger: logger,
	}, nil
}

func (h *handler) RegisterHandler(router *pubsubRouter.Router) {
	router.AddNoPublishHandler(
		"webhook_handler",
		h.config.Topic,
		h.pubSub,
		h.processMessage,
	)
}

func (h *handler) processMessage(msg *message.Message) error {
	ctx := msg.Context()
	if requestID := msg.Metadata.Get("request_id"); requestID != "" {
		ctx = types.SetRequestID(ctx, requestID)
	}

	var event types.WebhookEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		h.logger.Errorw("failed to unmarshal webhook event",
			"error", err,
			"message_uuid", msg.UUID,
		)
		return nil // Don't retry on unmarshal errors
	}

	for _, endpoint := range h.config.Endpoints {
		if lo.Contains(endpoint.ExcludedEvents, event.EventName) {
			h.logger.Debugw("event excluded for endpoint",
				"endpoint", endpoint.URL,
				"event", event.EventName,
			)
			continue
		}

		if err := h.deliver(ctx, endpoint, msg.Payload); err != nil {
			if !pubsubRouter.ShouldRetry(h.logger, err) {
				h.logger.Warnw("dropping undeliverable webhook",
					"endpoint", endpoint.URL,
					"event", event.EventName,
					"message_uuid", msg.UUID,
					"error", err,
				)
				continue
			}
			// the whole message is retried; endpoints that already accepted it see it again
			return err
		}

		h.logger.Infow("webhook sent successfully",
			"endpoint", endpoint.URL,
			"event", event.EventName,
			"message_uuid", msg.UUID,
		)
	}
	return nil
}

func (h *handler) deliver(ctx context.Context, endpoint config.WebhookEndpoint, body []byte) error {
	_, err := h.client.Send(ctx, &httpclient.Request{
		Method:  "POST",
		URL:     endpoint.URL,
		Headers: endpoint.Headers,
		Body:    body,
	})
	return err
}
