package v1

import (
	"context"
	"net/http"

	"github.com/flexprice/pullpay/internal/api/dto"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/service"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/gin-gonic/gin"
)

type SubscriptionHandler struct {
	billing service.BillingService
	log     *logger.Logger
}

func NewSubscriptionHandler(billing service.BillingService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		billing: billing,
		log:     log,
	}
}

// @Summary Subscribe
// @Description Pull price times intervals from the caller and activate the subscription
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Instance ID or address"
// @Param request body dto.SubscribeRequest true "Intervals to prepay"
// @Success 201 {object} dto.SubscriberResponse
// @Failure 400 {object} ErrorResponse
// @Failure 402 {object} ErrorResponse
// @Router /instances/{id}/subscribe [post]
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	var req dto.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.billing.Subscribe(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Subscribe from the controller
// @Description The instance controller activates a subscriber at a price it chooses
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Instance ID or address"
// @Param request body dto.SubscribeFromControllerRequest true "Delegated subscription"
// @Success 201 {object} dto.SubscriberResponse
// @Failure 403 {object} ErrorResponse
// @Router /instances/{id}/subscribe-from-controller [post]
func (h *SubscriptionHandler) SubscribeFromController(c *gin.Context) {
	var req dto.SubscribeFromControllerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.billing.SubscribeFromController(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Charge subscribers
// @Description Pull one interval from every listed subscriber whose period has lapsed
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Instance ID or address"
// @Param request body dto.BatchRequest true "Subscribers"
// @Success 200 {object} dto.BatchResponse
// @Failure 403 {object} ErrorResponse
// @Router /instances/{id}/charge [post]
func (h *SubscriptionHandler) Charge(c *gin.Context) {
	h.runBatch(c, h.billing.Charge)
}

// @Summary Restore own subscription
// @Description Pay the missed intervals of a broken subscription
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Instance ID or address"
// @Success 200 {object} dto.EntryResult
// @Router /instances/{id}/restore [post]
func (h *SubscriptionHandler) Restore(c *gin.Context) {
	resp, err := h.billing.Restore(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Restore subscribers
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Instance ID or address"
// @Param request body dto.BatchRequest true "Subscribers"
// @Success 200 {object} dto.BatchResponse
// @Router /instances/{id}/restore/batch [post]
func (h *SubscriptionHandler) RestoreBatch(c *gin.Context) {
	h.runBatch(c, h.billing.RestoreBatch)
}

// @Summary Cancel own subscription
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Instance ID or address"
// @Success 200 {object} dto.EntryResult
// @Router /instances/{id}/cancel [post]
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	resp, err := h.billing.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Cancel subscribers
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Instance ID or address"
// @Param request body dto.BatchRequest true "Subscribers"
// @Success 200 {object} dto.BatchResponse
// @Router /instances/{id}/cancel/batch [post]
func (h *SubscriptionHandler) CancelBatch(c *gin.Context) {
	h.runBatch(c, h.billing.CancelBatch)
}

// @Summary Subscriber status
// @Description Unknown subscribers are reported as unfunded with state NONE
// @Tags Subscriptions
// @Produce json
// @Param id path string true "Instance ID or address"
// @Param address path string true "Subscriber address"
// @Success 200 {object} dto.SubscriberStatusResponse
// @Router /instances/{id}/subscribers/{address} [get]
func (h *SubscriptionHandler) GetStatus(c *gin.Context) {
	subscriber, ok := addressParam(c, "address")
	if !ok {
		return
	}

	resp, err := h.billing.IsActive(c.Request.Context(), c.Param("id"), subscriber)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Subscriber paid-through time
// @Tags Subscriptions
// @Produce json
// @Param id path string true "Instance ID or address"
// @Param address path string true "Subscriber address"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /instances/{id}/subscribers/{address}/active-until [get]
func (h *SubscriptionHandler) GetActiveUntil(c *gin.Context) {
	subscriber, ok := addressParam(c, "address")
	if !ok {
		return
	}

	activeUntil, err := h.billing.ActiveUntil(c.Request.Context(), c.Param("id"), subscriber)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"active_until": activeUntil})
}

// @Summary List charge attempts
// @Tags Subscriptions
// @Produce json
// @Param id path string true "Instance ID or address"
// @Param address path string true "Subscriber address"
// @Param filter query types.QueryFilter false "Filter"
// @Success 200 {object} dto.ListChargesResponse
// @Router /instances/{id}/subscribers/{address}/charges [get]
func (h *SubscriptionHandler) ListCharges(c *gin.Context) {
	subscriber, ok := addressParam(c, "address")
	if !ok {
		return
	}

	var filter types.QueryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.billing.ListCharges(c.Request.Context(), c.Param("id"), subscriber, filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type batchFunc func(ctx context.Context, ref string, req *dto.BatchRequest) (*dto.BatchResponse, error)

func (h *SubscriptionHandler) runBatch(c *gin.Context, run batchFunc) {
	var req dto.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := run(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}

	h.log.Debugw("batch completed",
		"path", c.FullPath(),
		"entries", len(resp.Results),
		"errors", resp.Count(types.OutcomeError),
	)
	c.JSON(http.StatusOK, resp)
}
