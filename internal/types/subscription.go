package types

import (
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/samber/lo"
)

// SubscriptionState is the derived lifecycle state of one subscriber.
// It is never stored; it is computed from the record and the current time.
type SubscriptionState string

const (
	SubscriptionStateNone     SubscriptionState = "NONE"
	SubscriptionStateActive   SubscriptionState = "ACTIVE"
	SubscriptionStateLapsed   SubscriptionState = "LAPSED"
	SubscriptionStateCanceled SubscriptionState = "CANCELED"
	SubscriptionStateBroken   SubscriptionState = "BROKEN"
	SubscriptionStateExpired  SubscriptionState = "EXPIRED"
)

func (s SubscriptionState) String() string {
	return string(s)
}

// IsFunded is true inside the ordinary lifecycle: paid up or in grace.
func (s SubscriptionState) IsFunded() bool {
	return s == SubscriptionStateActive || s == SubscriptionStateLapsed
}

// IsTerminal is true for the sink states
func (s SubscriptionState) IsTerminal() bool {
	return s == SubscriptionStateCanceled || s == SubscriptionStateBroken || s == SubscriptionStateExpired
}

// TerminalState is the stored half of the lifecycle. Once it leaves
// TerminalStateNone it never changes again.
type TerminalState string

const (
	TerminalStateNone     TerminalState = "none"
	TerminalStateCanceled TerminalState = "canceled"
	TerminalStateBroken   TerminalState = "broken"
	TerminalStateExpired  TerminalState = "expired"
)

func (t TerminalState) Validate() error {
	allowed := []TerminalState{
		TerminalStateNone,
		TerminalStateCanceled,
		TerminalStateBroken,
		TerminalStateExpired,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid terminal state").
			WithHint("Invalid terminal state").
			WithReportableDetails(map[string]any{
				"terminal": t,
				"allowed":  allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// State maps a terminal value onto the derived state it forces
func (t TerminalState) State() SubscriptionState {
	switch t {
	case TerminalStateCanceled:
		return SubscriptionStateCanceled
	case TerminalStateBroken:
		return SubscriptionStateBroken
	case TerminalStateExpired:
		return SubscriptionStateExpired
	default:
		return ""
	}
}

// ChargeKind says which entry point moved (or tried to move) funds
type ChargeKind string

const (
	ChargeKindSubscribe ChargeKind = "subscribe"
	ChargeKindCharge    ChargeKind = "charge"
	ChargeKindRestore   ChargeKind = "restore"
)

// ChargeStatus is the result of a single pull attempt
type ChargeStatus string

const (
	ChargeStatusSucceeded ChargeStatus = "succeeded"
	ChargeStatusFailed    ChargeStatus = "failed"
	ChargeStatusReversed  ChargeStatus = "reversed"
)

// Outcome is the per-subscriber result of charge, restore and cancel.
// Each value is one of the observable reports callers can branch on.
type Outcome string

const (
	// OutcomeSkipped means nothing was due or the state did not allow the operation
	OutcomeSkipped Outcome = "skipped"
	// OutcomeCharged means one interval was pulled during a sweep
	OutcomeCharged Outcome = "charged"
	// OutcomeRetryScheduled means a sweep pull failed and the retry budget is not exhausted
	OutcomeRetryScheduled Outcome = "retry_scheduled"
	// OutcomeBroken means a sweep pull failed and exhausted the retry budget
	OutcomeBroken Outcome = "broken"
	// OutcomeRestored means restore caught up all missed intervals
	OutcomeRestored Outcome = "restored"
	// OutcomeChargeFailed means restore could not pull; the record is unchanged
	OutcomeChargeFailed Outcome = "charge_failed"
	// OutcomeSubscriptionExpired means restore found the overdue span too long
	OutcomeSubscriptionExpired Outcome = "subscription_expired"
	// OutcomeRetriesExpired means restore found the retry budget already spent
	OutcomeRetriesExpired Outcome = "retries_expired"
	// OutcomeCanceled means cancel moved the record from ACTIVE to CANCELED
	OutcomeCanceled Outcome = "canceled"
	// OutcomeError means the entry hit a hard failure and was rolled back
	OutcomeError Outcome = "error"
)

// IsPermanentlyClosed is true for outcomes that left the record in a sink
func (o Outcome) IsPermanentlyClosed() bool {
	return lo.Contains([]Outcome{
		OutcomeBroken,
		OutcomeSubscriptionExpired,
		OutcomeRetriesExpired,
		OutcomeCanceled,
	}, o)
}

// ParticipantKind is the role a registry member was recognized for
type ParticipantKind string

const (
	ParticipantKindController ParticipantKind = "controller"
	ParticipantKindCommunity  ParticipantKind = "community"
	ParticipantKindHook       ParticipantKind = "hook"
	ParticipantKindInstance   ParticipantKind = "instance"
)

func (k ParticipantKind) Validate() error {
	allowed := []ParticipantKind{
		ParticipantKindController,
		ParticipantKindCommunity,
		ParticipantKindHook,
		ParticipantKindInstance,
	}
	if !lo.Contains(allowed, k) {
		return ierr.NewError("invalid participant kind").
			WithHint("Invalid participant kind").
			WithReportableDetails(map[string]any{
				"kind":    k,
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
