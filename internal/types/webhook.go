package types

import (
	"encoding/json"
	"time"
)

// WebhookEvent represents a notification to be delivered to observers
type WebhookEvent struct {
	ID        string          `json:"id"`
	EventName string          `json:"event_name"`
	Instance  Address         `json:"instance"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// subscription event names
const (
	WebhookEventSubscriptionActivated      = "subscription.activated"
	WebhookEventSubscriptionCharged        = "subscription.charged"
	WebhookEventSubscriptionChargeFailed   = "subscription.charge_failed"
	WebhookEventSubscriptionBroken         = "subscription.broken"
	WebhookEventSubscriptionCanceled       = "subscription.canceled"
	WebhookEventSubscriptionRestored       = "subscription.restored"
	WebhookEventSubscriptionExpired        = "subscription.expired"
	WebhookEventSubscriptionRetriesExpired = "subscription.retries_expired"
)

// EventNameForOutcome maps a per-entry outcome onto the notification it emits.
// Skipped and error outcomes emit nothing.
func EventNameForOutcome(o Outcome) (string, bool) {
	switch o {
	case OutcomeCharged:
		return WebhookEventSubscriptionCharged, true
	case OutcomeRetryScheduled:
		return WebhookEventSubscriptionChargeFailed, true
	case OutcomeBroken:
		return WebhookEventSubscriptionBroken, true
	case OutcomeRestored:
		return WebhookEventSubscriptionRestored, true
	case OutcomeChargeFailed:
		return WebhookEventSubscriptionChargeFailed, true
	case OutcomeSubscriptionExpired:
		return WebhookEventSubscriptionExpired, true
	case OutcomeRetriesExpired:
		return WebhookEventSubscriptionRetriesExpired, true
	case OutcomeCanceled:
		return WebhookEventSubscriptionCanceled, true
	default:
		return "", false
	}
}
