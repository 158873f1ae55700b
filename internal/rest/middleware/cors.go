package middleware

import (
	"net/http"
	"strings"

	"github.com/flexprice/pullpay/internal/config"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// CORSMiddleware answers preflight requests and allows the configured
// origins. An empty list or "*" allows any origin.
func CORSMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	origins := cfg.Server.AllowedOrigins
	anyOrigin := len(origins) == 0 || lo.Contains(origins, "*")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case anyOrigin:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && lo.ContainsBy(origins, func(o string) bool { return strings.EqualFold(o, origin) }):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", strings.Join([]string{
			"Content-Type",
			types.HeaderAuthorization,
			types.HeaderRequestID,
			cfg.Auth.APIKey.Header,
		}, ", "))
		c.Header("Access-Control-Expose-Headers", types.HeaderRequestID)
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
