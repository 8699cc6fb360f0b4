// internal/services/license_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ipnexus/ipnexus-backend/internal/config"
	"github.com/ipnexus/ipnexus-backend/internal/database"
	"github.com/ipnexus/ipnexus-backend/internal/models"
	"github.com/ipnexus/ipnexus-backend/internal/utils"
)

// LicensingModuleAddress identifies the licensing engine in the module
// registry and in function-level permission entries.
var LicensingModuleAddress = models.NormalizeAddress(utils.DeriveAddress("module:licensing"))

// Selectors for permissioned licensing operations.
var (
	SelAttachLicenseTerms = models.NormalizeSelector(utils.MethodSelector("attachLicenseTerms(address,string)"))
	SelSetLicensingConfig = models.NormalizeSelector(utils.MethodSelector("setLicensingConfig(address,string)"))
	SelRegisterDerivative = models.NormalizeSelector(utils.MethodSelector("registerDerivative(address,address[],string[])"))
)

// LicenseService owns license terms, attachments, minting config, license
// tokens and derivative registration.
type LicenseService struct {
	db      *gorm.DB
	cfg     *config.Config
	perms   *PermissionService
	graph   *GraphService
	royalty *RoyaltyService
	hooks   *HookRegistry
}

func NewLicenseService(db *gorm.DB, cfg *config.Config, perms *PermissionService, graph *GraphService, royalty *RoyaltyService, hooks *HookRegistry) *LicenseService {
	return &LicenseService{
		db:      db,
		cfg:     cfg,
		perms:   perms,
		graph:   graph,
		royalty: royalty,
		hooks:   hooks,
	}
}

type RegisterTermsRequest struct {
	Transferable          bool   `json:"transferable"`
	RoyaltyPolicy         string `json:"royalty_policy" validate:"omitempty,eth_address"`
	MintingFee            string `json:"minting_fee" validate:"required"`
	Expiration            uint64 `json:"expiration"`
	CommercialUse         bool   `json:"commercial_use"`
	CommercialRevShare    uint32 `json:"commercial_rev_share"`
	DerivativesAllowed    bool   `json:"derivatives_allowed"`
	DerivativesApproval   bool   `json:"derivatives_approval"`
	CommercializerChecker string `json:"commercializer_checker" validate:"omitempty,eth_address"`
	Currency              string `json:"currency" validate:"required,eth_address"`
	URI                   string `json:"uri" validate:"omitempty,max=2048"`
}

type SetLicensingConfigRequest struct {
	IPAccount             string       `json:"ip_account" validate:"required,eth_address"`
	TermsID               string       `json:"terms_id" validate:"omitempty,hash32"`
	MintingFeeSet         bool         `json:"minting_fee_set"`
	MintingFee            string       `json:"minting_fee" validate:"omitempty"`
	LicensingHook         string       `json:"licensing_hook" validate:"omitempty,eth_address"`
	HookData              models.JSONB `json:"hook_data"`
	CommercialRevShare    uint32       `json:"commercial_rev_share"`
	Disabled              bool         `json:"disabled"`
	ExpectGroupRewardPool string       `json:"expect_group_reward_pool" validate:"omitempty,eth_address"`
}

type MintLicenseTokensRequest struct {
	LicensorIPID  string `json:"licensor_ip_id" validate:"required,eth_address"`
	TermsID       string `json:"terms_id" validate:"required,hash32"`
	Receiver      string `json:"receiver" validate:"required,eth_address"`
	Amount        int    `json:"amount" validate:"required,min=1,max=1000"`
	MaxMintingFee string `json:"max_minting_fee" validate:"omitempty"`
}

type RegisterDerivativeRequest struct {
	ChildIPID   string   `json:"child_ip_id" validate:"required,eth_address"`
	ParentIPIDs []string `json:"parent_ip_ids" validate:"required,min=1,dive,eth_address"`
	TermsIDs    []string `json:"terms_ids" validate:"required,min=1,dive,hash32"`
}

type RegisterDerivativeWithTokensRequest struct {
	ChildIPID string   `json:"child_ip_id" validate:"required,eth_address"`
	TokenIDs  []uint64 `json:"token_ids" validate:"required,min=1"`
}

// termsContent is the canonical byte encoding hashed into a TermsID. Field
// order is fixed; changing it would re-key every registered terms row.
func termsContent(terms *models.LicenseTerms) []byte {
	return []byte(fmt.Sprintf(
		"terms:v1:%t:%s:%s:%d:%t:%d:%t:%t:%s:%s:%s",
		terms.Transferable,
		terms.RoyaltyPolicy,
		terms.MintingFee.String(),
		terms.Expiration,
		terms.CommercialUse,
		terms.CommercialRevShare,
		terms.DerivativesAllowed,
		terms.DerivativesApproval,
		terms.CommercializerChecker,
		terms.Currency,
		terms.URI,
	))
}

// RegisterLicenseTerms registers an immutable terms row keyed by its
// content hash. Re-registering identical terms returns the existing row.
func (s *LicenseService) RegisterLicenseTerms(req *RegisterTermsRequest) (*models.LicenseTerms, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	fee, err := models.ParseUint256(req.MintingFee)
	if err != nil {
		return nil, err
	}

	if req.CommercialRevShare > models.MaxPercent {
		return nil, fmt.Errorf("%w: rev share %d", ErrAboveMaxPercent, req.CommercialRevShare)
	}
	if req.CommercialUse && models.NormalizeAddress(req.RoyaltyPolicy).IsZero() {
		return nil, errors.New("commercial terms require a royalty policy")
	}
	if !req.CommercialUse && req.CommercialRevShare != 0 {
		return nil, errors.New("non-commercial terms cannot carry a rev share")
	}

	terms := &models.LicenseTerms{
		Transferable:          req.Transferable,
		RoyaltyPolicy:         models.NormalizeAddress(req.RoyaltyPolicy),
		MintingFee:            fee,
		Expiration:            req.Expiration,
		CommercialUse:         req.CommercialUse,
		CommercialRevShare:    req.CommercialRevShare,
		DerivativesAllowed:    req.DerivativesAllowed,
		DerivativesApproval:   req.DerivativesApproval,
		CommercializerChecker: models.NormalizeAddress(req.CommercializerChecker),
		Currency:              models.NormalizeAddress(req.Currency),
		URI:                   req.URI,
	}
	terms.TermsID = utils.ContentHash(termsContent(terms))

	var existing models.LicenseTerms
	err = s.db.Where("terms_id = ?", terms.TermsID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := s.db.Create(terms).Error; err != nil {
		return nil, fmt.Errorf("failed to register license terms: %w", err)
	}
	return terms, nil
}

func (s *LicenseService) GetLicenseTerms(termsID string) (*models.LicenseTerms, error) {
	return getLicenseTerms(s.db, termsID)
}

func getLicenseTerms(tx *gorm.DB, termsID string) (*models.LicenseTerms, error) {
	var terms models.LicenseTerms
	err := tx.Where("terms_id = ?", termsID).First(&terms).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTermsNotFound, termsID)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &terms, nil
}

func isAttached(tx *gorm.DB, ipID models.Address, termsID string) bool {
	var count int64
	tx.Model(&models.LicenseAttachment{}).
		Where("ip_account = ? AND terms_id = ?", ipID, termsID).
		Count(&count)
	return count > 0
}

func hasAttachments(tx *gorm.DB, ipID models.Address) bool {
	var count int64
	tx.Model(&models.LicenseAttachment{}).Where("ip_account = ?", ipID).Count(&count)
	return count > 0
}

// AttachLicenseTerms makes a terms set mintable against an IP. Derivatives
// inherit their terms at link time and cannot attach more.
func (s *LicenseService) AttachLicenseTerms(caller models.Address, ipID models.Address, termsID string) (*models.LicenseAttachment, error) {
	if err := s.perms.CheckPermission(ipID, caller, LicensingModuleAddress, SelAttachLicenseTerms); err != nil {
		return nil, err
	}

	var attachment *models.LicenseAttachment
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		account, err := getIPAccount(tx, ipID)
		if err != nil {
			return err
		}

		tagged, err := isIpTagged(tx, ipID)
		if err != nil {
			return err
		}
		if tagged {
			return fmt.Errorf("%w: %s", ErrIPDisputed, ipID)
		}
		if account.Expired(time.Now()) {
			return fmt.Errorf("%w: %s", ErrIPExpired, ipID)
		}
		if hasParents(tx, ipID) {
			return fmt.Errorf("%w: %s is a derivative", ErrDerivativeOwnTerms, ipID)
		}

		if _, err := getLicenseTerms(tx, termsID); err != nil {
			return err
		}
		if isAttached(tx, ipID, termsID) {
			return fmt.Errorf("%w: terms %s on %s", ErrAlreadyAttached, termsID, ipID)
		}

		attachment = &models.LicenseAttachment{IPAccount: ipID, TermsID: termsID}
		return tx.Create(attachment).Error
	})
	if err != nil {
		return nil, err
	}

	return attachment, nil
}

// SetLicensingConfig upserts the minting config for an IP, either at the
// IP level (empty terms id) or for one attached terms set.
func (s *LicenseService) SetLicensingConfig(caller models.Address, req *SetLicensingConfigRequest) (*models.LicensingConfig, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	ipID := models.NormalizeAddress(req.IPAccount)
	if err := s.perms.CheckPermission(ipID, caller, LicensingModuleAddress, SelSetLicensingConfig); err != nil {
		return nil, err
	}
	if req.CommercialRevShare > models.MaxPercent {
		return nil, fmt.Errorf("%w: rev share %d", ErrAboveMaxPercent, req.CommercialRevShare)
	}

	var fee models.Uint256
	if req.MintingFeeSet {
		parsed, err := models.ParseUint256(req.MintingFee)
		if err != nil {
			return nil, err
		}
		fee = parsed
	}

	var cfg models.LicensingConfig
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if !isRegistered(tx, ipID) {
			return fmt.Errorf("%w: %s", ErrNotRegistered, ipID)
		}
		if req.TermsID != "" {
			if _, err := getLicenseTerms(tx, req.TermsID); err != nil {
				return err
			}
		}

		err := tx.Where("ip_account = ? AND terms_id = ?", ipID, req.TermsID).First(&cfg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			cfg = models.LicensingConfig{IPAccount: ipID, TermsID: req.TermsID}
		} else if err != nil {
			return fmt.Errorf("database error: %w", err)
		}

		cfg.MintingFeeSet = req.MintingFeeSet
		cfg.MintingFee = fee
		cfg.LicensingHook = models.NormalizeAddress(req.LicensingHook)
		cfg.HookData = req.HookData
		cfg.CommercialRevShare = req.CommercialRevShare
		cfg.Disabled = req.Disabled
		cfg.ExpectGroupRewardPool = models.NormalizeAddress(req.ExpectGroupRewardPool)

		return tx.Save(&cfg).Error
	})
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// licensingConfigFor resolves the effective config with the terms-level
// record taking precedence over the IP-level one. Precedence is whole
// record, not per field: once a terms-level row exists, every field in it
// applies as written and the IP-level row is ignored entirely, so a
// terms-level row with MintingFeeSet == false falls back to the fee on the
// terms themselves even when the IP-level row sets one. A nil return means
// no config is set at either level.
func licensingConfigFor(tx *gorm.DB, ipID models.Address, termsID string) (*models.LicensingConfig, error) {
	var cfg models.LicensingConfig
	err := tx.Where("ip_account = ? AND terms_id = ?", ipID, termsID).First(&cfg).Error
	if err == nil {
		return &cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	err = tx.Where("ip_account = ? AND terms_id = ''", ipID).First(&cfg).Error
	if err == nil {
		return &cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return nil, nil
}

// MintLicenseTokens mints license tokens against a licensor IP: fee
// resolution, hook and commercializer checks, royalty preparation and the
// fee payment all commit in one transaction with the minted tokens.
func (s *LicenseService) MintLicenseTokens(caller models.Address, req *MintLicenseTokensRequest) ([]models.LicenseToken, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	licensorIPID := models.NormalizeAddress(req.LicensorIPID)
	receiver := models.NormalizeAddress(req.Receiver)
	if receiver.IsZero() {
		return nil, ErrZeroAddress
	}

	var maxFee *models.Uint256
	if req.MaxMintingFee != "" {
		parsed, err := models.ParseUint256(req.MaxMintingFee)
		if err != nil {
			return nil, err
		}
		maxFee = &parsed
	}

	var tokens []models.LicenseToken
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		account, err := getIPAccount(tx, licensorIPID)
		if err != nil {
			return err
		}

		now := time.Now()
		if account.Expired(now) {
			return fmt.Errorf("%w: licensor %s", ErrIPExpired, licensorIPID)
		}
		tagged, err := isIpTagged(tx, licensorIPID)
		if err != nil {
			return err
		}
		if tagged {
			return fmt.Errorf("%w: licensor %s", ErrIPDisputed, licensorIPID)
		}

		terms, err := getLicenseTerms(tx, req.TermsID)
		if err != nil {
			return err
		}
		if !isAttached(tx, licensorIPID, req.TermsID) {
			return fmt.Errorf("%w: terms %s on %s", ErrTermsNotAttached, req.TermsID, licensorIPID)
		}

		cfg, err := licensingConfigFor(tx, licensorIPID, req.TermsID)
		if err != nil {
			return err
		}
		if cfg != nil && cfg.Disabled {
			return fmt.Errorf("%w: %s", ErrLicensingDisabled, licensorIPID)
		}

		// Per-token fee: config override wins over the terms default, a
		// licensing hook wins over both.
		fee := terms.MintingFee
		if cfg != nil && cfg.MintingFeeSet {
			fee = cfg.MintingFee
		}
		if cfg != nil && !cfg.LicensingHook.IsZero() {
			hook, err := s.hooks.Hook(cfg.LicensingHook)
			if err != nil {
				return err
			}
			hookFee, err := hook.BeforeMintLicenseTokens(&MintContext{
				LicensorIPID: licensorIPID,
				TermsID:      req.TermsID,
				Caller:       caller,
				Receiver:     receiver,
				Amount:       req.Amount,
				Fee:          fee,
				HookData:     cfg.HookData,
			})
			if err != nil {
				return fmt.Errorf("licensing hook rejected mint: %w", err)
			}
			fee = hookFee
		}

		if terms.CommercialUse && !terms.CommercializerChecker.IsZero() {
			checker, err := s.hooks.Checker(terms.CommercializerChecker)
			if err != nil {
				return err
			}
			if err := checker.CheckCommercializer(receiver); err != nil {
				return fmt.Errorf("%w: %v", ErrNotAuthorized, err)
			}
		}

		if terms.CommercialUse {
			percent := terms.CommercialRevShare
			if cfg != nil && cfg.CommercialRevShare > percent {
				percent = cfg.CommercialRevShare
			}
			if err := s.royalty.onLicenseMinting(tx, licensorIPID, terms.RoyaltyPolicy, percent); err != nil {
				return err
			}
		}

		total, err := mulScalar(&fee, uint64(req.Amount))
		if err != nil {
			return err
		}
		if maxFee != nil && total.Gt(&maxFee.Int) {
			return fmt.Errorf("minting fee %s exceeds caller limit %s", total.String(), maxFee.String())
		}
		if !total.IsZero() {
			if err := s.royalty.payLicenseMintingFee(tx, licensorIPID, caller, terms.Currency, &total); err != nil {
				return err
			}
		}

		var expiresAt *time.Time
		if terms.Expiration > 0 {
			t := now.Add(time.Duration(terms.Expiration) * time.Second)
			expiresAt = &t
		}

		for i := 0; i < req.Amount; i++ {
			token := models.LicenseToken{
				LicensorIPID: licensorIPID,
				TermsID:      req.TermsID,
				Holder:       receiver,
				Transferable: terms.Transferable,
				MintedAt:     now,
				ExpiresAt:    expiresAt,
			}
			if err := tx.Create(&token).Error; err != nil {
				return fmt.Errorf("failed to mint license token: %w", err)
			}
			tokens = append(tokens, token)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return tokens, nil
}

func mulScalar(amount *models.Uint256, n uint64) (models.Uint256, error) {
	scale := models.NewUint256(n)
	var out models.Uint256
	if _, overflow := out.MulOverflow(&amount.Int, &scale.Int); overflow {
		return models.Uint256{}, fmt.Errorf("%w: %s * %d", ErrAmountOverflow, amount.Dec(), n)
	}
	return out, nil
}

// TransferLicenseToken moves a live token to a new holder. A dispute
// against the licensor revokes its outstanding tokens.
func (s *LicenseService) TransferLicenseToken(caller models.Address, tokenID uint64, to models.Address) (*models.LicenseToken, error) {
	if models.NormalizeAddress(string(to)).IsZero() {
		return nil, ErrZeroAddress
	}

	var token models.LicenseToken
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&token, tokenID).Error; err != nil {
			return errors.New("license token not found")
		}
		if token.Burned {
			return fmt.Errorf("%w: token %d", ErrTokenBurned, tokenID)
		}
		if token.ExpiredAt(time.Now()) {
			return fmt.Errorf("%w: token %d", ErrTokenExpired, tokenID)
		}
		if token.Holder != caller {
			return fmt.Errorf("%w: %s does not hold token %d", ErrNotAuthorized, caller, tokenID)
		}

		tagged, err := isIpTagged(tx, token.LicensorIPID)
		if err != nil {
			return err
		}
		if tagged {
			return fmt.Errorf("%w: token %d", ErrTokenRevoked, tokenID)
		}

		if !token.Transferable {
			owner, err := getIPAccount(tx, token.LicensorIPID)
			if err != nil {
				return err
			}
			if caller != owner.Owner {
				return fmt.Errorf("%w: token %d", ErrNotTransferable, tokenID)
			}
		}

		token.Holder = models.NormalizeAddress(string(to))
		return tx.Save(&token).Error
	})
	if err != nil {
		return nil, err
	}

	return &token, nil
}

type parentLink struct {
	parent models.Address
	terms  *models.LicenseTerms
}

// RegisterDerivative links a child IP to parents under terms the parents
// have attached. The whole link, including royalty-vault setup, is one
// atomic operation.
func (s *LicenseService) RegisterDerivative(caller models.Address, req *RegisterDerivativeRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if len(req.ParentIPIDs) != len(req.TermsIDs) {
		return fmt.Errorf("%w: %d parents, %d terms", ErrLengthMismatch, len(req.ParentIPIDs), len(req.TermsIDs))
	}

	child := models.NormalizeAddress(req.ChildIPID)
	if err := s.perms.CheckPermission(child, caller, LicensingModuleAddress, SelRegisterDerivative); err != nil {
		return err
	}

	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		links := make([]parentLink, 0, len(req.ParentIPIDs))
		for i := range req.ParentIPIDs {
			parent := models.NormalizeAddress(req.ParentIPIDs[i])
			terms, err := getLicenseTerms(tx, req.TermsIDs[i])
			if err != nil {
				return err
			}
			if !isAttached(tx, parent, terms.TermsID) {
				return fmt.Errorf("%w: terms %s on parent %s", ErrTermsNotAttached, terms.TermsID, parent)
			}
			links = append(links, parentLink{parent: parent, terms: terms})
		}
		return s.linkToParents(tx, child, links)
	})
}

// RegisterDerivativeWithLicenseTokens links a child IP by redeeming
// license tokens the caller holds. Redeemed tokens burn in the same
// transaction as the link.
func (s *LicenseService) RegisterDerivativeWithLicenseTokens(caller models.Address, req *RegisterDerivativeWithTokensRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	child := models.NormalizeAddress(req.ChildIPID)
	if err := s.perms.CheckPermission(child, caller, LicensingModuleAddress, SelRegisterDerivative); err != nil {
		return err
	}

	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		childAccount, err := getIPAccount(tx, child)
		if err != nil {
			return err
		}

		now := time.Now()
		links := make([]parentLink, 0, len(req.TokenIDs))
		termsByParent := make(map[models.Address]string, len(req.TokenIDs))

		for _, tokenID := range req.TokenIDs {
			var token models.LicenseToken
			if err := tx.First(&token, tokenID).Error; err != nil {
				return fmt.Errorf("license token %d not found", tokenID)
			}
			if token.Burned {
				return fmt.Errorf("%w: token %d", ErrTokenBurned, tokenID)
			}
			if token.ExpiredAt(now) {
				return fmt.Errorf("%w: token %d", ErrTokenExpired, tokenID)
			}
			if token.Holder != caller && token.Holder != childAccount.Owner {
				return fmt.Errorf("%w: %s does not hold token %d", ErrNotAuthorized, caller, tokenID)
			}

			tagged, err := isIpTagged(tx, token.LicensorIPID)
			if err != nil {
				return err
			}
			if tagged {
				return fmt.Errorf("%w: token %d", ErrTokenRevoked, tokenID)
			}

			terms, err := getLicenseTerms(tx, token.TermsID)
			if err != nil {
				return err
			}
			if prior, ok := termsByParent[token.LicensorIPID]; ok && prior != token.TermsID {
				return fmt.Errorf("%w: licensor %s", ErrMixedTemplates, token.LicensorIPID)
			}
			termsByParent[token.LicensorIPID] = token.TermsID
			links = append(links, parentLink{parent: token.LicensorIPID, terms: terms})

			token.Burned = true
			if err := tx.Save(&token).Error; err != nil {
				return fmt.Errorf("failed to burn license token: %w", err)
			}
		}

		return s.linkToParents(tx, child, links)
	})
}

// linkToParents performs the shared write-once derivative link: graph
// edges, ancestor closure, royalty vault and stack, terms inheritance and
// expiration propagation.
func (s *LicenseService) linkToParents(tx *gorm.DB, child models.Address, links []parentLink) error {
	if len(links) == 0 {
		return errors.New("parent list must not be empty")
	}
	if len(links) > s.cfg.Protocol.MaxParents {
		return fmt.Errorf("%w: %d parents", ErrAboveMaxParents, len(links))
	}

	account, err := getIPAccount(tx, child)
	if err != nil {
		return err
	}

	now := time.Now()
	if account.Expired(now) {
		return fmt.Errorf("%w: %s", ErrIPExpired, child)
	}
	tagged, err := isIpTagged(tx, child)
	if err != nil {
		return err
	}
	if tagged {
		return fmt.Errorf("%w: %s", ErrIPDisputed, child)
	}
	if hasParents(tx, child) {
		return fmt.Errorf("%w: %s", ErrAlreadyLinked, child)
	}
	if hasAttachments(tx, child) {
		return fmt.Errorf("%w: %s has attached terms", ErrDerivativeOwnTerms, child)
	}

	seen := make(map[models.Address]struct{}, len(links))
	allTerms := make([]*models.LicenseTerms, 0, len(links))
	for _, link := range links {
		if link.parent == child {
			return fmt.Errorf("%w: %s", ErrSelfParent, child)
		}
		if _, dup := seen[link.parent]; dup {
			return fmt.Errorf("duplicate parent %s", link.parent)
		}
		seen[link.parent] = struct{}{}
		allTerms = append(allTerms, link.terms)

		parentAccount, err := getIPAccount(tx, link.parent)
		if err != nil {
			return err
		}
		if parentAccount.Expired(now) {
			return fmt.Errorf("%w: parent %s", ErrIPExpired, link.parent)
		}
		parentTagged, err := isIpTagged(tx, link.parent)
		if err != nil {
			return err
		}
		if parentTagged {
			return fmt.Errorf("%w: parent %s", ErrIPDisputed, link.parent)
		}
		if !link.terms.DerivativesAllowed {
			return fmt.Errorf("%w: terms %s", ErrDerivativesDisabled, link.terms.TermsID)
		}
	}

	if err := checkTermsCompatibility(allTerms); err != nil {
		return err
	}
	commercial := allTerms[0].CommercialUse
	if commercial {
		if err := s.checkPolicyEnforceability(tx, allTerms); err != nil {
			return err
		}
	}

	edges := make([]models.DerivativeEdge, 0, len(links))
	parents := make([]models.Address, 0, len(links))
	for _, link := range links {
		edge := models.DerivativeEdge{
			ChildIPID:     child,
			ParentIPID:    link.parent,
			TermsID:       link.terms.TermsID,
			RoyaltyPolicy: link.terms.RoyaltyPolicy,
			Percent:       link.terms.CommercialRevShare,
		}
		if err := tx.Create(&edge).Error; err != nil {
			return fmt.Errorf("failed to create derivative edge: %w", err)
		}
		edges = append(edges, edge)
		parents = append(parents, link.parent)
	}

	if err := s.graph.addParentIPs(tx, child, parents); err != nil {
		return err
	}

	count, err := ancestorCount(tx, child)
	if err != nil {
		return err
	}
	if count > s.cfg.Protocol.MaxAncestors {
		return fmt.Errorf("%w: %d ancestors", ErrAboveMaxAncestors, count)
	}

	if commercial {
		if err := s.royalty.onLinkToParents(tx, child, edges); err != nil {
			return err
		}
	}

	// The child inherits each parent's terms so licenses can be minted
	// against the derivative under the same conditions.
	for _, link := range links {
		if isAttached(tx, child, link.terms.TermsID) {
			continue
		}
		attachment := models.LicenseAttachment{IPAccount: child, TermsID: link.terms.TermsID}
		if err := tx.Create(&attachment).Error; err != nil {
			return fmt.Errorf("failed to inherit license terms: %w", err)
		}
	}

	return s.propagateExpiration(tx, account, links)
}

// propagateExpiration tightens the child's expiry to the earliest parent
// expiry, so a derivative never outlives its lineage.
func (s *LicenseService) propagateExpiration(tx *gorm.DB, child *models.IPAccount, links []parentLink) error {
	earliest := child.ExpiresAt
	for _, link := range links {
		parentAccount, err := getIPAccount(tx, link.parent)
		if err != nil {
			return err
		}
		if parentAccount.ExpiresAt == nil {
			continue
		}
		if earliest == nil || parentAccount.ExpiresAt.Before(*earliest) {
			t := *parentAccount.ExpiresAt
			earliest = &t
		}
	}

	if earliest == child.ExpiresAt {
		return nil
	}
	child.ExpiresAt = earliest
	return tx.Save(child).Error
}

// checkTermsCompatibility enforces the parent-set rule that needs no
// registry state: all parent terms must agree on the commercial flag.
func checkTermsCompatibility(terms []*models.LicenseTerms) error {
	if len(terms) == 0 {
		return nil
	}

	commercial := terms[0].CommercialUse
	for _, t := range terms[1:] {
		if t.CommercialUse != commercial {
			return fmt.Errorf("%w: mixed commercial and non-commercial terms", ErrIncompatibleTerms)
		}
	}
	return nil
}

// checkPolicyEnforceability verifies that the parents' royalty policies
// can be jointly enforced on one child vault. Registered policies of
// different kinds may coexist; a stack-accumulating whitelisted policy
// cannot share a child with a policy lacking a registered interface.
func (s *LicenseService) checkPolicyEnforceability(tx *gorm.DB, terms []*models.LicenseTerms) error {
	seen := make(map[models.Address]struct{}, len(terms))
	hasWhitelisted := false
	var unregistered []models.Address

	for _, t := range terms {
		policy := t.RoyaltyPolicy
		if policy.IsZero() {
			continue
		}
		if _, ok := seen[policy]; ok {
			continue
		}
		seen[policy] = struct{}{}

		kind, err := s.royalty.policyKind(tx, policy)
		if err != nil {
			if errors.Is(err, ErrPolicyNotRegistered) {
				unregistered = append(unregistered, policy)
				continue
			}
			return err
		}
		if kind == models.PolicyKindWhitelisted {
			hasWhitelisted = true
		}
	}

	if len(unregistered) == 0 {
		return nil
	}
	if hasWhitelisted {
		return fmt.Errorf("%w: %s lacks a registered interface", ErrIncompatiblePolicies, unregistered[0])
	}
	return fmt.Errorf("%w: %s", ErrPolicyNotRegistered, unregistered[0])
}

// Queries

func (s *LicenseService) GetLicenseToken(tokenID uint64) (*models.LicenseToken, error) {
	var token models.LicenseToken
	if err := s.db.First(&token, tokenID).Error; err != nil {
		return nil, errors.New("license token not found")
	}
	return &token, nil
}

func (s *LicenseService) ListLicenseTokens(holder models.Address, params utils.PaginationParams) ([]models.LicenseToken, int64, error) {
	query := s.db.Model(&models.LicenseToken{}).Where("holder = ? AND burned = false", holder)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count license tokens: %w", err)
	}

	var tokens []models.LicenseToken
	if err := utils.ApplyPagination(query.Order("token_id DESC"), params).Find(&tokens).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch license tokens: %w", err)
	}
	return tokens, total, nil
}

func (s *LicenseService) ListAttachments(ipID models.Address) ([]models.LicenseAttachment, error) {
	var attachments []models.LicenseAttachment
	if err := s.db.Where("ip_account = ?", ipID).Order("created_at").Find(&attachments).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch attachments: %w", err)
	}
	return attachments, nil
}

func (s *LicenseService) GetLicensingConfig(ipID models.Address, termsID string) (*models.LicensingConfig, error) {
	cfg, err := licensingConfigFor(s.db, ipID, termsID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errors.New("licensing config not found")
	}
	return cfg, nil
}
