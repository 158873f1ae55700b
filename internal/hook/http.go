package hook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/httpclient"
	"github.com/flexprice/pullpay/internal/logger"
)

// HTTPHook posts the charge event as JSON. Any 2xx accepts the charge and
// any other status vetoes it. Throttling, upstream outages and transport
// errors are retried with exponential backoff before giving up.
type HTTPHook struct {
	url        string
	client     httpclient.Client
	maxRetries uint64
	interval   time.Duration
	logger     *logger.Logger
}

func NewHTTPHook(url string, client httpclient.Client, maxRetries uint64, logger *logger.Logger) *HTTPHook {
	return &HTTPHook{
		url:        url,
		client:     client,
		maxRetries: maxRetries,
		interval:   200 * time.Millisecond,
		logger:     logger,
	}
}

func (h *HTTPHook) OnCharge(ctx context.Context, event *ChargeEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to encode hook payload").
			Mark(ierr.ErrSystem)
	}

	req := &httpclient.Request{
		Method: "POST",
		URL:    h.url,
		Body:   body,
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = h.interval
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, h.maxRetries), ctx)

	attempt := 0
	op := func() error {
		attempt++
		_, err := h.client.Send(ctx, req)
		if err == nil {
			return nil
		}
		if httpErr, ok := httpclient.IsHTTPError(err); ok && !httpErr.IsRetryable() {
			return backoff.Permanent(err)
		}
		h.logger.Debugw("hook call failed, retrying",
			"url", h.url,
			"attempt", attempt,
			"error", err,
		)
		return err
	}

	if err := backoff.Retry(op, policy); err != nil {
		details := map[string]any{
			"url":      h.url,
			"attempts": attempt,
		}
		if httpErr, ok := httpclient.IsHTTPError(err); ok {
			details["status_code"] = httpErr.StatusCode
		}
		return ierr.WithError(err).
			WithHint("The charge hook rejected the operation").
			WithReportableDetails(details).
			Mark(ierr.ErrHookRejected)
	}
	return nil
}
