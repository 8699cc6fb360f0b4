// internal/handlers/helpers.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/ipnexus/ipnexus-backend/internal/models"
	"github.com/ipnexus/ipnexus-backend/internal/services"
	"github.com/ipnexus/ipnexus-backend/internal/utils"
)

// callerWallet resolves the protocol signer for the request from the
// authenticated user's bound wallet.
func callerWallet(c *gin.Context) (models.Address, bool) {
	wallet, ok := utils.GetWalletFromContext(c)
	if !ok || wallet == "" {
		utils.UnauthorizedResponse(c, "no wallet bound to session")
		return "", false
	}
	return models.NormalizeAddress(wallet), true
}

// serviceErrorResponse maps service sentinel errors onto HTTP statuses.
func serviceErrorResponse(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrPermissionDenied),
		errors.Is(err, services.ErrNotOwnerOrAccount),
		errors.Is(err, services.ErrNotModule),
		errors.Is(err, services.ErrNotAuthorized):
		utils.ForbiddenResponse(c, err.Error())
	case errors.Is(err, services.ErrNotRegistered),
		errors.Is(err, services.ErrTermsNotFound),
		errors.Is(err, services.ErrVaultNotFound):
		utils.NotFoundResponse(c, err.Error())
	case errors.Is(err, services.ErrAlreadyRegistered),
		errors.Is(err, services.ErrAlreadyAttached),
		errors.Is(err, services.ErrAlreadyLinked),
		errors.Is(err, services.ErrAlreadyClaimed),
		errors.Is(err, services.ErrVaultAlreadyExists):
		utils.ConflictResponse(c, err.Error())
	default:
		utils.BadRequestResponse(c, err.Error(), nil)
	}
}
