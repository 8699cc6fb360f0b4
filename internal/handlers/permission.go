// internal/handlers/permission.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ipnexus/ipnexus-backend/internal/models"
	"github.com/ipnexus/ipnexus-backend/internal/services"
	"github.com/ipnexus/ipnexus-backend/internal/utils"
)

type PermissionHandler struct {
	permissionService *services.PermissionService
}

func NewPermissionHandler(permissionService *services.PermissionService) *PermissionHandler {
	return &PermissionHandler{
		permissionService: permissionService,
	}
}

// POST /permissions
func (h *PermissionHandler) Set(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	var req services.SetPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}

	permission, err := h.permissionService.SetPermission(caller, &req)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"permission": permission})
}

// POST /permissions/all
func (h *PermissionHandler) SetAll(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	var req services.SetAllPermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}

	permission, err := h.permissionService.SetAllPermissions(caller, &req)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"permission": permission})
}

// POST /permissions/batch
func (h *PermissionHandler) SetBatch(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	var req struct {
		Permissions []services.SetPermissionRequest `json:"permissions" validate:"required,min=1,max=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}

	permissions, err := h.permissionService.SetBatchPermissions(caller, req.Permissions)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"permissions": permissions})
}

// GET /permissions/:ipId
func (h *PermissionHandler) List(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	permissions, total, err := h.permissionService.GetPermissions(
		models.NormalizeAddress(c.Param("ipId")), params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(permissions, total, params))
}

// GET /permissions/:ipId/check
func (h *PermissionHandler) Check(c *gin.Context) {
	ipID := models.NormalizeAddress(c.Param("ipId"))
	signer := models.NormalizeAddress(c.Query("signer"))
	to := models.NormalizeAddress(c.Query("to"))
	fn := models.NormalizeSelector(c.Query("func"))

	err := h.permissionService.CheckPermission(ipID, signer, to, fn)
	utils.SuccessResponse(c, gin.H{
		"allowed": err == nil,
	})
}
