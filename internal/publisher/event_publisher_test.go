package publisher_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flexprice/pullpay/internal/config"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/publisher"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWebhooks struct {
	mu     sync.Mutex
	events []*types.WebhookEvent
	err    error
}

func (r *recordingWebhooks) PublishWebhook(_ context.Context, event *types.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingWebhooks) Close() error { return nil }

func notification() *publisher.Notification {
	return &publisher.Notification{
		EventName:   types.WebhookEventSubscriptionCharged,
		Instance:    types.MustParseAddress("0x00000000000000000000000000000000000000a1"),
		Subscriber:  types.MustParseAddress("0x00000000000000000000000000000000000000b1"),
		Outcome:     types.OutcomeCharged,
		Amount:      lo.ToPtr(decimal.NewFromInt(10)),
		ActiveUntil: lo.ToPtr(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)),
	}
}

func TestPublishWrapsNotification(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Webhook.Enabled = true
	webhooks := &recordingWebhooks{}

	p := publisher.NewEventPublisher(cfg, webhooks, logger.NewNopLogger())
	p.Publish(context.Background(), notification())

	require.Len(t, webhooks.events, 1)
	event := webhooks.events[0]
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, types.WebhookEventSubscriptionCharged, event.EventName)
	assert.Equal(t, notification().Instance, event.Instance)

	var decoded publisher.Notification
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	assert.Equal(t, types.OutcomeCharged, decoded.Outcome)
	assert.True(t, decoded.Amount.Equal(decimal.NewFromInt(10)))
}

func TestPublishDisabledDropsEvents(t *testing.T) {
	webhooks := &recordingWebhooks{}
	p := publisher.NewEventPublisher(config.GetDefaultConfig(), webhooks, logger.NewNopLogger())
	p.Publish(context.Background(), notification())
	assert.Empty(t, webhooks.events)
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Webhook.Enabled = true
	webhooks := &recordingWebhooks{err: errors.New("bus closed")}

	p := publisher.NewEventPublisher(cfg, webhooks, logger.NewNopLogger())
	assert.NotPanics(t, func() { p.Publish(context.Background(), notification()) })
}
