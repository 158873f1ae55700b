package middleware

import (
	"net/http"
	"strings"

	"github.com/flexprice/pullpay/internal/auth"
	"github.com/flexprice/pullpay/internal/config"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/gin-gonic/gin"
)

// AuthenticateMiddleware resolves the caller from either:
// 1. an API key in the configured header
// 2. a JWT in the Authorization header as a Bearer token, whose subject is the caller address
// The caller is attached to the request context for the services.
func AuthenticateMiddleware(cfg *config.Configuration, logger *logger.Logger) gin.HandlerFunc {
	authProvider := auth.NewProvider(cfg)

	return func(c *gin.Context) {
		if apiKey := c.GetHeader(cfg.Auth.APIKey.Header); apiKey != "" {
			caller, operator, valid := auth.ValidateAPIKey(cfg, apiKey)
			if !valid {
				logger.Debugw("invalid api key")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
				c.Abort()
				return
			}

			ctx := types.SetCaller(c.Request.Context(), caller)
			if operator {
				ctx = types.SetOperator(ctx)
			}
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		authHeader := c.GetHeader(types.HeaderAuthorization)
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := authProvider.ValidateToken(c.Request.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			logger.Debugw("failed to validate token", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(types.SetCaller(c.Request.Context(), claims.Caller))
		c.Next()
	}
}

// OperatorOnlyMiddleware admits only requests authenticated with an operator key
func OperatorOnlyMiddleware(c *gin.Context) {
	if !types.IsOperator(c.Request.Context()) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Operator key required"})
		c.Abort()
		return
	}
	c.Next()
}
