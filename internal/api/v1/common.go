package v1

import (
	"github.com/flexprice/pullpay/internal/types"
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the error body rendered by the error middleware
type ErrorResponse struct {
	Success bool `json:"success" example:"false"`
	Error   struct {
		Message string         `json:"message" example:"\"0xabc\" is not a valid address"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

// addressParam parses the named path parameter. On failure the error is
// attached to the context and the handler should return.
func addressParam(c *gin.Context, name string) (types.Address, bool) {
	addr, err := types.ParseAddress(c.Param(name))
	if err != nil {
		c.Error(err)
		return "", false
	}
	return addr, true
}
