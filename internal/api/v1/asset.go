package v1

import (
	"net/http"

	"github.com/flexprice/pullpay/internal/api/dto"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/service"
	"github.com/gin-gonic/gin"
)

// AssetHandler serves the development ledger. Routes are only mounted in local mode.
type AssetHandler struct {
	service service.AssetService
}

func NewAssetHandler(service service.AssetService) *AssetHandler {
	return &AssetHandler{service: service}
}

// @Summary Mint development funds
// @Tags Assets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param asset path string true "Asset address"
// @Param request body dto.MintRequest true "Holder and amount"
// @Success 200 {object} dto.BalanceResponse
// @Router /assets/{asset}/mint [post]
func (h *AssetHandler) Mint(c *gin.Context) {
	assetAddr, ok := addressParam(c, "asset")
	if !ok {
		return
	}

	var req dto.MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.Mint(c.Request.Context(), assetAddr, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Approve an allowance
// @Description Set the caller's allowance. The spender defaults to the relay.
// @Tags Assets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param asset path string true "Asset address"
// @Param request body dto.ApproveRequest true "Spender and amount"
// @Success 200 {object} dto.BalanceResponse
// @Router /assets/{asset}/approve [post]
func (h *AssetHandler) Approve(c *gin.Context) {
	assetAddr, ok := addressParam(c, "asset")
	if !ok {
		return
	}

	var req dto.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.Approve(c.Request.Context(), assetAddr, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get a balance
// @Tags Assets
// @Produce json
// @Param asset path string true "Asset address"
// @Param holder path string true "Holder address"
// @Success 200 {object} dto.BalanceResponse
// @Router /assets/{asset}/balances/{holder} [get]
func (h *AssetHandler) GetBalance(c *gin.Context) {
	assetAddr, ok := addressParam(c, "asset")
	if !ok {
		return
	}
	holder, ok := addressParam(c, "holder")
	if !ok {
		return
	}

	resp, err := h.service.Balance(c.Request.Context(), assetAddr, holder)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
