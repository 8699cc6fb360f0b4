// internal/handlers/account.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ipnexus/ipnexus-backend/internal/models"
	"github.com/ipnexus/ipnexus-backend/internal/services"
	"github.com/ipnexus/ipnexus-backend/internal/utils"
)

// AccountHandler exposes IP account registration, ownership and the
// ancestor graph queries.
type AccountHandler struct {
	registryService *services.RegistryService
	graphService    *services.GraphService
	disputeService  *services.DisputeService
}

func NewAccountHandler(registryService *services.RegistryService, graphService *services.GraphService, disputeService *services.DisputeService) *AccountHandler {
	return &AccountHandler{
		registryService: registryService,
		graphService:    graphService,
		disputeService:  disputeService,
	}
}

// POST /accounts
func (h *AccountHandler) Register(c *gin.Context) {
	var req services.RegisterIPAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}

	account, err := h.registryService.RegisterIPAccount(&req)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{"account": account})
}

// GET /accounts
func (h *AccountHandler) List(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	accounts, total, err := h.registryService.ListIPAccounts(params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(accounts, total, params))
}

// GET /accounts/:ipId
func (h *AccountHandler) Get(c *gin.Context) {
	ipID := models.NormalizeAddress(c.Param("ipId"))

	account, err := h.registryService.GetIPAccount(ipID)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	tagged, err := h.disputeService.IsIpTagged(ipID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"account": account,
		"tagged":  tagged,
	})
}

// POST /accounts/:ipId/transfer
func (h *AccountHandler) TransferOwnership(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	var req struct {
		NewOwner string `json:"new_owner" validate:"required,eth_address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	account, err := h.registryService.TransferOwnership(
		models.NormalizeAddress(c.Param("ipId")), caller, models.NormalizeAddress(req.NewOwner))
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"account": account})
}

// GET /accounts/:ipId/parents
func (h *AccountHandler) GetParents(c *gin.Context) {
	edges, err := h.graphService.GetParents(models.NormalizeAddress(c.Param("ipId")))
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"parents": edges})
}

// GET /accounts/:ipId/children
func (h *AccountHandler) GetChildren(c *gin.Context) {
	edges, err := h.graphService.GetChildren(models.NormalizeAddress(c.Param("ipId")))
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"children": edges})
}

// GET /accounts/:ipId/ancestors
func (h *AccountHandler) GetAncestors(c *gin.Context) {
	ipID := models.NormalizeAddress(c.Param("ipId"))

	count, err := h.graphService.GetAncestorCount(ipID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	// Optional membership probe.
	if candidate := c.Query("candidate"); candidate != "" {
		has, err := h.graphService.HasAncestorIP(ipID, models.NormalizeAddress(candidate))
		if err != nil {
			utils.InternalErrorResponse(c, err.Error())
			return
		}
		utils.SuccessResponse(c, gin.H{"count": count, "has_ancestor": has})
		return
	}

	utils.SuccessResponse(c, gin.H{"count": count})
}
