// internal/services/errors.go
package services

import "errors"

// Authorization errors
var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrNotOwnerOrAccount = errors.New("caller is not the IP account or its owner")
	ErrNotModule         = errors.New("neither target nor signer is a registered module")
	ErrNotAuthorized     = errors.New("caller is not authorized")
	ErrZeroAddress       = errors.New("zero address not allowed")
)

// State-precondition errors
var (
	ErrAlreadyRegistered   = errors.New("already registered")
	ErrNotRegistered       = errors.New("not registered")
	ErrAlreadyAttached     = errors.New("license terms already attached")
	ErrAlreadyLinked       = errors.New("derivative already linked to parents")
	ErrTermsNotFound       = errors.New("license terms not found")
	ErrTermsNotAttached    = errors.New("license terms not attached to licensor")
	ErrLicensingDisabled   = errors.New("licensing is disabled for these terms")
	ErrTokenExpired        = errors.New("license token expired")
	ErrTokenBurned         = errors.New("license token already burned")
	ErrTokenRevoked        = errors.New("license token revoked: licensor is disputed")
	ErrNotTransferable     = errors.New("license token is not transferable")
	ErrIPDisputed          = errors.New("IP asset is tagged by an active dispute")
	ErrIPExpired           = errors.New("IP asset has expired")
	ErrDerivativeOwnTerms  = errors.New("derivative IP cannot attach its own license terms")
	ErrVaultAlreadyExists  = errors.New("royalty vault already deployed")
	ErrVaultNotFound       = errors.New("royalty vault not found")
	ErrSelfParent          = errors.New("IP cannot be its own parent")
	ErrDerivativesDisabled = errors.New("license terms do not allow derivatives")
)

// Bounds errors
var (
	ErrAboveMaxPercent     = errors.New("percentage exceeds the protocol maximum")
	ErrAboveMaxParents     = errors.New("parent count exceeds the protocol maximum")
	ErrAboveMaxAncestors   = errors.New("ancestor count exceeds the protocol maximum")
	ErrAboveMaxPolicies    = errors.New("accumulated policy count exceeds the protocol maximum")
	ErrSharesExceedSupply  = errors.New("required vault shares exceed the total supply")
	ErrStackExceedsPercent = errors.New("royalty stack exceeds 100%")
)

// Consistency errors
var (
	ErrLengthMismatch       = errors.New("array lengths do not match")
	ErrMixedTemplates       = errors.New("license tokens reference mixed terms sets")
	ErrIncompatibleTerms    = errors.New("parent license terms are incompatible")
	ErrIncompatiblePolicies = errors.New("royalty policies cannot be jointly enforced")
	ErrPolicyNotRegistered  = errors.New("royalty policy is neither whitelisted nor registered")
	ErrWildcardMisuse       = errors.New("use the all-permissions entry point for full wildcards")
)

// Resource errors
var (
	ErrZeroAmount          = errors.New("amount must be greater than zero")
	ErrAmountOverflow      = errors.New("token amount arithmetic overflows 256 bits")
	ErrZeroClaimable       = errors.New("nothing to claim")
	ErrAlreadyClaimed      = errors.New("revenue already claimed for this snapshot")
	ErrSnapshotTooSoon     = errors.New("snapshot interval has not elapsed")
	ErrTokenNotWhitelisted = errors.New("payment token is not whitelisted")
	ErrInsufficientBalance = errors.New("insufficient token balance")
)
