// internal/handlers/admin.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ipnexus/ipnexus-backend/internal/models"
	"github.com/ipnexus/ipnexus-backend/internal/services"
	"github.com/ipnexus/ipnexus-backend/internal/utils"
)

// AdminHandler gates protocol governance: module registry, token and
// policy whitelists, ledger deposits and the audit trail.
type AdminHandler struct {
	adminService    *services.AdminService
	registryService *services.RegistryService
	royaltyService  *services.RoyaltyService
}

func NewAdminHandler(adminService *services.AdminService, registryService *services.RegistryService, royaltyService *services.RoyaltyService) *AdminHandler {
	return &AdminHandler{
		adminService:    adminService,
		registryService: registryService,
		royaltyService:  royaltyService,
	}
}

// GET /admin/stats
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats, err := h.adminService.GetProtocolStats()
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"stats": stats})
}

// GET /admin/users
func (h *AdminHandler) GetUsers(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	users, total, err := h.adminService.GetUsers(params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(users, total, params))
}

// PUT /admin/users/:userId/status
func (h *AdminHandler) UpdateUserStatus(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid user id", nil)
		return
	}

	var req struct {
		Status models.UserStatus `json:"status" validate:"required,oneof=active suspended"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	user, err := h.adminService.UpdateUserStatus(userID, req.Status)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{"user": user})
}

// GET /admin/audit-logs
func (h *AdminHandler) GetAuditLogs(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	logs, total, err := h.adminService.GetAuditLogs(params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(logs, total, params))
}

// POST /admin/modules
func (h *AdminHandler) RegisterModule(c *gin.Context) {
	var req services.RegisterModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}

	module, err := h.registryService.RegisterModule(&req)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{"module": module})
}

// DELETE /admin/modules/:address
func (h *AdminHandler) RemoveModule(c *gin.Context) {
	if err := h.registryService.RemoveModule(models.NormalizeAddress(c.Param("address"))); err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"removed": true})
}

// GET /admin/modules
func (h *AdminHandler) ListModules(c *gin.Context) {
	modules, err := h.registryService.ListModules()
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"modules": modules})
}

// POST /admin/tokens
func (h *AdminHandler) WhitelistToken(c *gin.Context) {
	var req struct {
		Address string `json:"address" validate:"required,eth_address"`
		Symbol  string `json:"symbol" validate:"required,min=1,max=16"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	token, err := h.royaltyService.WhitelistToken(models.NormalizeAddress(req.Address), req.Symbol)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{"token": token})
}

// POST /admin/policies
func (h *AdminHandler) RegisterPolicy(c *gin.Context) {
	var req struct {
		Address string            `json:"address" validate:"required,eth_address"`
		Kind    models.PolicyKind `json:"kind" validate:"required,oneof=whitelisted external"`
		Name    string            `json:"name" validate:"required,min=2,max=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	policy, err := h.royaltyService.RegisterPolicy(models.NormalizeAddress(req.Address), req.Kind, req.Name)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{"policy": policy})
}

// POST /admin/deposits
func (h *AdminHandler) Deposit(c *gin.Context) {
	var req struct {
		Token  string `json:"token" validate:"required,eth_address"`
		Holder string `json:"holder" validate:"required,eth_address"`
		Amount string `json:"amount" validate:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	amount, err := models.ParseUint256(req.Amount)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	if err := h.royaltyService.DepositTokens(models.NormalizeAddress(req.Token), models.NormalizeAddress(req.Holder), &amount); err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"deposited": true})
}
