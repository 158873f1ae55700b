package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flexprice/pullpay/internal/config"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/types"
	webhookPublisher "github.com/flexprice/pullpay/internal/webhook/publisher"
	"github.com/shopspring/decimal"
)

// Notification describes one observable subscription transition
type Notification struct {
	EventName   string           `json:"event_name"`
	Instance    types.Address    `json:"instance"`
	Subscriber  types.Address    `json:"subscriber"`
	Outcome     types.Outcome    `json:"outcome,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty" swaggertype:"string"`
	ActiveUntil *time.Time       `json:"active_until,omitempty"`
	RetriesUsed int              `json:"retries_used"`
	Reason      string           `json:"reason,omitempty"`
}

// EventPublisher hands notifications to the delivery bus. Publishing happens
// after the triggering entry committed, so a failure here is only logged.
type EventPublisher interface {
	Publish(ctx context.Context, n *Notification)
}

type eventPublisher struct {
	webhooks webhookPublisher.WebhookPublisher
	config   *config.Webhook
	logger   *logger.Logger
}

// NewEventPublisher creates a new publisher
func NewEventPublisher(
	cfg *config.Configuration,
	webhooks webhookPublisher.WebhookPublisher,
	logger *logger.Logger,
) EventPublisher {
	return &eventPublisher{
		webhooks: webhooks,
		config:   &cfg.Webhook,
		logger:   logger,
	}
}

func (p *eventPublisher) Publish(ctx context.Context, n *Notification) {
	log := p.logger.With(
		"event_name", n.EventName,
		"instance", n.Instance,
		"subscriber", n.Subscriber,
	)

	if !p.config.Enabled {
		log.Debugw("notifications disabled, dropping event")
		return
	}

	payload, err := json.Marshal(n)
	if err != nil {
		log.Errorw("failed to encode notification", "error", err)
		return
	}

	event := &types.WebhookEvent{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_EVENT),
		EventName: n.EventName,
		Instance:  n.Instance,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	if err := p.webhooks.PublishWebhook(ctx, event); err != nil {
		log.Errorw("failed to publish notification", "event_id", event.ID, "error", err)
		return
	}
	log.Debugw("published notification", "event_id", event.ID)
}
