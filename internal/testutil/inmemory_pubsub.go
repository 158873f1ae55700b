package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/pubsub"
	"github.com/flexprice/pullpay/internal/pubsub/memory"
	"github.com/flexprice/pullpay/internal/types"
)

// RecordingPubSub delivers through the gochannel pubsub and keeps a copy of
// every published message per topic
type RecordingPubSub struct {
	pubsub.PubSub

	mu        sync.RWMutex
	published map[string][]*message.Message
}

func NewRecordingPubSub() *RecordingPubSub {
	return &RecordingPubSub{
		PubSub:    memory.NewPubSub(logger.NewNopLogger()),
		published: make(map[string][]*message.Message),
	}
}

func (ps *RecordingPubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	ps.mu.Lock()
	ps.published[topic] = append(ps.published[topic], msg.Copy())
	ps.mu.Unlock()

	return ps.PubSub.Publish(ctx, topic, msg)
}

// Messages returns the messages published to topic in publish order
func (ps *RecordingPubSub) Messages(topic string) []*message.Message {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return append([]*message.Message(nil), ps.published[topic]...)
}

// WebhookEvents decodes the messages published to topic. Undecodable
// payloads are skipped.
func (ps *RecordingPubSub) WebhookEvents(topic string) []*types.WebhookEvent {
	var events []*types.WebhookEvent
	for _, msg := range ps.Messages(topic) {
		var ev types.WebhookEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			continue
		}
		events = append(events, &ev)
	}
	return events
}

func (ps *RecordingPubSub) Reset() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.published = make(map[string][]*message.Message)
}
