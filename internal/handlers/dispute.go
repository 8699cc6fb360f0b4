// internal/handlers/dispute.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ipnexus/ipnexus-backend/internal/models"
	"github.com/ipnexus/ipnexus-backend/internal/services"
	"github.com/ipnexus/ipnexus-backend/internal/utils"
)

type DisputeHandler struct {
	disputeService *services.DisputeService
}

func NewDisputeHandler(disputeService *services.DisputeService) *DisputeHandler {
	return &DisputeHandler{
		disputeService: disputeService,
	}
}

// POST /disputes
func (h *DisputeHandler) Raise(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	var req services.RaiseDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}

	dispute, err := h.disputeService.RaiseDispute(caller, &req)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{"dispute": dispute})
}

// GET /disputes
func (h *DisputeHandler) List(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	target := models.NormalizeAddress(c.Query("target"))

	disputes, total, err := h.disputeService.ListDisputes(target, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(disputes, total, params))
}

// GET /disputes/:disputeId
func (h *DisputeHandler) Get(c *gin.Context) {
	disputeID, err := uuid.Parse(c.Param("disputeId"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid dispute id", nil)
		return
	}

	dispute, err := h.disputeService.GetDispute(disputeID)
	if err != nil {
		utils.NotFoundResponse(c, "dispute")
		return
	}

	utils.SuccessResponse(c, gin.H{"dispute": dispute})
}

// POST /disputes/:disputeId/judge  (arbiter only, admin-gated route)
func (h *DisputeHandler) Judge(c *gin.Context) {
	disputeID, err := uuid.Parse(c.Param("disputeId"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid dispute id", nil)
		return
	}

	var req struct {
		Decision bool `json:"decision"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}

	dispute, err := h.disputeService.JudgeDispute(disputeID, req.Decision)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"dispute": dispute})
}

// POST /disputes/:disputeId/cancel
func (h *DisputeHandler) Cancel(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	disputeID, err := uuid.Parse(c.Param("disputeId"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid dispute id", nil)
		return
	}

	dispute, err := h.disputeService.CancelDispute(disputeID, caller)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"dispute": dispute})
}

// POST /disputes/:disputeId/resolve
func (h *DisputeHandler) Resolve(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	disputeID, err := uuid.Parse(c.Param("disputeId"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid dispute id", nil)
		return
	}

	dispute, err := h.disputeService.ResolveDispute(disputeID, caller)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"dispute": dispute})
}

// POST /disputes/:disputeId/tag-derivative
func (h *DisputeHandler) TagDerivative(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	disputeID, err := uuid.Parse(c.Param("disputeId"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid dispute id", nil)
		return
	}

	var req struct {
		DerivativeIPID string `json:"derivative_ip_id" validate:"required,eth_address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	dispute, err := h.disputeService.TagDerivative(disputeID, models.NormalizeAddress(req.DerivativeIPID), caller)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{"dispute": dispute})
}
