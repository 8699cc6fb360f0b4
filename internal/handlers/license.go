// internal/handlers/license.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ipnexus/ipnexus-backend/internal/models"
	"github.com/ipnexus/ipnexus-backend/internal/services"
	"github.com/ipnexus/ipnexus-backend/internal/utils"
)

type LicenseHandler struct {
	licenseService *services.LicenseService
}

func NewLicenseHandler(licenseService *services.LicenseService) *LicenseHandler {
	return &LicenseHandler{
		licenseService: licenseService,
	}
}

// POST /licenses/terms
func (h *LicenseHandler) RegisterTerms(c *gin.Context) {
	var req services.RegisterTermsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}

	terms, err := h.licenseService.RegisterLicenseTerms(&req)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{"terms": terms})
}

// GET /licenses/terms/:termsId
func (h *LicenseHandler) GetTerms(c *gin.Context) {
	terms, err := h.licenseService.GetLicenseTerms(c.Param("termsId"))
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"terms": terms})
}

// POST /licenses/attachments
func (h *LicenseHandler) Attach(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	var req struct {
		IPAccount string `json:"ip_account" validate:"required,eth_address"`
		TermsID   string `json:"terms_id" validate:"required,hash32"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	attachment, err := h.licenseService.AttachLicenseTerms(caller, models.NormalizeAddress(req.IPAccount), req.TermsID)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{"attachment": attachment})
}

// GET /licenses/attachments/:ipId
func (h *LicenseHandler) ListAttachments(c *gin.Context) {
	attachments, err := h.licenseService.ListAttachments(models.NormalizeAddress(c.Param("ipId")))
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"attachments": attachments})
}

// PUT /licenses/config
func (h *LicenseHandler) SetConfig(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	var req services.SetLicensingConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}

	cfg, err := h.licenseService.SetLicensingConfig(caller, &req)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"config": cfg})
}

// GET /licenses/config/:ipId
func (h *LicenseHandler) GetConfig(c *gin.Context) {
	cfg, err := h.licenseService.GetLicensingConfig(
		models.NormalizeAddress(c.Param("ipId")), c.Query("terms_id"))
	if err != nil {
		utils.NotFoundResponse(c, "licensing config")
		return
	}

	utils.SuccessResponse(c, gin.H{"config": cfg})
}

// POST /licenses/tokens
func (h *LicenseHandler) MintTokens(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	var req services.MintLicenseTokensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}

	tokens, err := h.licenseService.MintLicenseTokens(caller, &req)
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{"tokens": tokens})
}

// GET /licenses/tokens/:tokenId
func (h *LicenseHandler) GetToken(c *gin.Context) {
	tokenID, err := strconv.ParseUint(c.Param("tokenId"), 10, 64)
	if err != nil {
		utils.BadRequestResponse(c, "invalid token id", nil)
		return
	}

	token, err := h.licenseService.GetLicenseToken(tokenID)
	if err != nil {
		utils.NotFoundResponse(c, "license token")
		return
	}

	utils.SuccessResponse(c, gin.H{"token": token})
}

// GET /licenses/tokens
func (h *LicenseHandler) ListTokens(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	holder := caller
	if q := c.Query("holder"); q != "" {
		holder = models.NormalizeAddress(q)
	}

	params := utils.GetPaginationParams(c)
	tokens, total, err := h.licenseService.ListLicenseTokens(holder, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(tokens, total, params))
}

// POST /licenses/tokens/:tokenId/transfer
func (h *LicenseHandler) TransferToken(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	tokenID, err := strconv.ParseUint(c.Param("tokenId"), 10, 64)
	if err != nil {
		utils.BadRequestResponse(c, "invalid token id", nil)
		return
	}

	var req struct {
		To string `json:"to" validate:"required,eth_address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	token, err := h.licenseService.TransferLicenseToken(caller, tokenID, models.NormalizeAddress(req.To))
	if err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"token": token})
}

// POST /licenses/derivatives
func (h *LicenseHandler) RegisterDerivative(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	var req services.RegisterDerivativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}

	if err := h.licenseService.RegisterDerivative(caller, &req); err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{"linked": true})
}

// POST /licenses/derivatives/tokens
func (h *LicenseHandler) RegisterDerivativeWithTokens(c *gin.Context) {
	caller, ok := callerWallet(c)
	if !ok {
		return
	}

	var req services.RegisterDerivativeWithTokensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "invalid input", err.Error())
		return
	}

	if err := h.licenseService.RegisterDerivativeWithLicenseTokens(caller, &req); err != nil {
		serviceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{"linked": true})
}
