// internal/handlers/storage.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ipnexus/ipnexus-backend/internal/models"
	"github.com/ipnexus/ipnexus-backend/internal/services"
	"github.com/ipnexus/ipnexus-backend/internal/utils"
)

// StorageHandler exposes the namespaced per-IP key-value store. Writes are
// restricted to registered module addresses; reads are open.
type StorageHandler struct {
	storageService *services.StorageService
}

func NewStorageHandler(storageService *services.StorageService) *StorageHandler {
	return &StorageHandler{
		storageService: storageService,
	}
}

// PUT /storage/:ipId
func (h *StorageHandler) Set(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	var req struct {
		Key   string `json:"key" validate:"required,min=1,max=255"`
		Value []byte `json:"value" validate:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	err := h.storageService.SetBytes(caller, models.NormalizeAddress(c.Param("ipId")), req.Key, req.Value)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"stored": true})
}

// PUT /storage/:ipId/batch
func (h *StorageHandler) SetBatch(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	var req struct {
		Keys   []string `json:"keys" validate:"required,min=1,max=100"`
		Values [][]byte `json:"values" validate:"required,min=1,max=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}

	err := h.storageService.SetBatchBytes(caller, models.NormalizeAddress(c.Param("ipId")), req.Keys, req.Values)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"stored": len(req.Keys)})
}

// GET /storage/:ipId/:namespace/:key
func (h *StorageHandler) Get(c *gin.Context) {
	value, err := h.storageService.GetBytes(
		models.NormalizeAddress(c.Param("ipId")),
		models.NormalizeAddress(c.Param("namespace")),
		c.Param("key"))
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"value": value})
}

// GET /storage/:ipId/:namespace
func (h *StorageHandler) ListNamespace(c *gin.Context) {
	entries, err := h.storageService.ListNamespace(
		models.NormalizeAddress(c.Param("ipId")),
		models.NormalizeAddress(c.Param("namespace")))
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"entries": entries})
}
