package v1

import (
	"net/http"

	"github.com/flexprice/pullpay/internal/api/dto"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/logger"
	"github.com/flexprice/pullpay/internal/service"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/gin-gonic/gin"
)

type InstanceHandler struct {
	service service.InstanceService
	log     *logger.Logger
}

func NewInstanceHandler(service service.InstanceService, log *logger.Logger) *InstanceHandler {
	return &InstanceHandler{
		service: service,
		log:     log,
	}
}

// @Summary Produce an instance
// @Description Create, register and initialize a billing instance owned by the caller
// @Tags Instances
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param instance body dto.ProduceInstanceRequest true "Instance configuration"
// @Success 201 {object} dto.InstanceResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /instances [post]
func (h *InstanceHandler) Produce(c *gin.Context) {
	var req dto.ProduceInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.Produce(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Initialize an instance
// @Tags Instances
// @Produce json
// @Security BearerAuth
// @Param id path string true "Instance ID or address"
// @Success 200 {object} dto.InstanceResponse
// @Failure 409 {object} ErrorResponse
// @Router /instances/{id}/initialize [post]
func (h *InstanceHandler) Initialize(c *gin.Context) {
	resp, err := h.service.Initialize(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get an instance
// @Tags Instances
// @Produce json
// @Param id path string true "Instance ID or address"
// @Success 200 {object} dto.InstanceResponse
// @Failure 404 {object} ErrorResponse
// @Router /instances/{id} [get]
func (h *InstanceHandler) GetInstance(c *gin.Context) {
	resp, err := h.service.GetInstance(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List instances
// @Tags Instances
// @Produce json
// @Param filter query types.QueryFilter false "Filter"
// @Success 200 {object} dto.ListInstancesResponse
// @Router /instances [get]
func (h *InstanceHandler) ListInstances(c *gin.Context) {
	var filter types.QueryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListInstances(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Authorize a caller
// @Description Allow an address to run charge, restore and cancel batches
// @Tags Instances
// @Security BearerAuth
// @Param id path string true "Instance ID or address"
// @Param address path string true "Caller address"
// @Success 200 {object} dto.SuccessResponse
// @Failure 403 {object} ErrorResponse
// @Router /instances/{id}/callers/{address} [post]
func (h *InstanceHandler) AddCaller(c *gin.Context) {
	caller, ok := addressParam(c, "address")
	if !ok {
		return
	}

	if err := h.service.AddCaller(c.Request.Context(), c.Param("id"), caller); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "caller authorized"})
}

// @Summary Revoke a caller
// @Tags Instances
// @Security BearerAuth
// @Param id path string true "Instance ID or address"
// @Param address path string true "Caller address"
// @Success 200 {object} dto.SuccessResponse
// @Failure 403 {object} ErrorResponse
// @Router /instances/{id}/callers/{address} [delete]
func (h *InstanceHandler) RemoveCaller(c *gin.Context) {
	caller, ok := addressParam(c, "address")
	if !ok {
		return
	}

	if err := h.service.RemoveCaller(c.Request.Context(), c.Param("id"), caller); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "caller revoked"})
}

// @Summary Set the charge hook
// @Description An empty hook clears it
// @Tags Instances
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Instance ID or address"
// @Param hook body dto.SetHookRequest true "Hook"
// @Success 200 {object} dto.InstanceResponse
// @Router /instances/{id}/hook [put]
func (h *InstanceHandler) SetHook(c *gin.Context) {
	var req dto.SetHookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.SetHook(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Set the community
// @Tags Instances
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Instance ID or address"
// @Param community body dto.SetCommunityRequest true "Community"
// @Success 200 {object} dto.InstanceResponse
// @Router /instances/{id}/community [put]
func (h *InstanceHandler) SetCommunity(c *gin.Context) {
	var req dto.SetCommunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.SetCommunity(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
