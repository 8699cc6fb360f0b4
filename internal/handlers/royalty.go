// internal/handlers/royalty.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ipnexus/ipnexus-backend/internal/models"
	"github.com/ipnexus/ipnexus-backend/internal/services"
	"github.com/ipnexus/ipnexus-backend/internal/utils"
)

type RoyaltyHandler struct {
	royaltyService *services.RoyaltyService
}

func NewRoyaltyHandler(royaltyService *services.RoyaltyService) *RoyaltyHandler {
	return &RoyaltyHandler{
		royaltyService: royaltyService,
	}
}

// POST /royalties/payments
func (h *RoyaltyHandler) Pay(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	var req services.PayRoyaltyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}

	if err := h.royaltyService.PayRoyaltyOnBehalf(caller, &req); err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"paid": true})
}

// GET /royalties/vaults/:ipId
func (h *RoyaltyHandler) GetVault(c *gin.Context) {
	ipID := models.NormalizeAddress(c.Param("ipId"))

	vault, err := h.royaltyService.GetVault(ipID)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	balances, err := h.royaltyService.GetVaultBalances(ipID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"vault":    vault,
		"balances": balances,
	})
}

// GET /royalties/stacks/:ipId
func (h *RoyaltyHandler) GetStack(c *gin.Context) {
	stack, err := h.royaltyService.GetRoyaltyStack(models.NormalizeAddress(c.Param("ipId")))
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"stack": stack})
}

// GET /royalties/revenue/:ipId
func (h *RoyaltyHandler) GetLifetimeRevenue(c *gin.Context) {
	token := models.NormalizeAddress(c.Query("token"))

	amount, err := h.royaltyService.GetLifetimeRevenue(models.NormalizeAddress(c.Param("ipId")), token)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"amount": amount})
}

// POST /royalties/vaults/:ipId/snapshots
func (h *RoyaltyHandler) Snapshot(c *gin.Context) {
	snapshot, err := h.royaltyService.SnapshotVault(models.NormalizeAddress(c.Param("ipId")))
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{"snapshot": snapshot})
}

// GET /royalties/snapshots/:snapshotId/claimable
func (h *RoyaltyHandler) Claimable(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	snapshotID, err := strconv.ParseUint(c.Param("snapshotId"), 10, 64)
	if err != nil {
		utils.BadRequestResponse(c, "invalid snapshot id", nil)
		return
	}

	claimer := caller
	if q := c.Query("claimer"); q != "" {
		claimer = models.NormalizeAddress(q)
	}

	amount, err := h.royaltyService.ClaimableRevenue(snapshotID, models.NormalizeAddress(c.Query("token")), claimer)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"amount": amount})
}

// POST /royalties/snapshots/:snapshotId/claims
func (h *RoyaltyHandler) Claim(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	snapshotID, err := strconv.ParseUint(c.Param("snapshotId"), 10, 64)
	if err != nil {
		utils.BadRequestResponse(c, "invalid snapshot id", nil)
		return
	}

	var req struct {
		Token string `json:"token" validate:"required,eth_address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	amount, err := h.royaltyService.ClaimRevenue(snapshotID, models.NormalizeAddress(req.Token), caller)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"amount": amount})
}

// GET /royalties/balances
func (h *RoyaltyHandler) GetBalance(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	holder := caller
	if q := c.Query("holder"); q != "" {
		holder = models.NormalizeAddress(q)
	}

	amount, err := h.royaltyService.GetTokenBalance(models.NormalizeAddress(c.Query("token")), holder)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"amount": amount})
}
