package cron

import (
	"net/http"

	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/service"
	"github.com/flexprice/pullpay/internal/sweeper"
	"github.com/gin-gonic/gin"
)

// BillingHandler exposes the operator sweep for external schedulers
type BillingHandler struct {
	billing service.BillingService
	sweeper *sweeper.Sweeper
	logger  *logger.Logger
}

func NewBillingHandler(
	billing service.BillingService,
	sweeper *sweeper.Sweeper,
	logger *logger.Logger,
) *BillingHandler {
	return &BillingHandler{
		billing: billing,
		sweeper: sweeper,
		logger:  logger,
	}
}

// ChargeDue charges every lapsed subscriber of one instance
func (h *BillingHandler) ChargeDue(c *gin.Context) {
	id := c.Param("id")
	h.logger.Infow("starting charge-due cron job", "instance", id)

	resp, err := h.billing.ChargeDue(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorw("failed to charge due subscribers",
			"instance", id,
			"error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ChargeDueAll sweeps every instance
func (h *BillingHandler) ChargeDueAll(c *gin.Context) {
	h.logger.Infow("starting charge-due sweep cron job")

	summary, err := h.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		h.logger.Errorw("charge-due sweep failed", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
