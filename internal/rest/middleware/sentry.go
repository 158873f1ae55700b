package middleware

import (
	"time"

	"github.com/flexprice/pullpay/internal/config"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
)

// SentryMiddleware captures panics and tags the request hub with the caller
// and request id. It is a no-op when sentry is disabled.
func SentryMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	if !cfg.Sentry.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	})
}

// SentryScopeMiddleware tags the hub with the request id, and with the caller
// when it runs after authentication
func SentryScopeMiddleware(c *gin.Context) {
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		ctx := c.Request.Context()
		hub.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetTag("request_id", types.GetRequestID(ctx))
			if caller := types.GetCaller(ctx); !caller.IsZero() {
				scope.SetUser(sentry.User{ID: caller.String()})
			}
		})
	}
	c.Next()
}
