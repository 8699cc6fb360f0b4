// internal/services/royalty_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"gorm.io/gorm"

	"github.com/ipnexus/ipnexus-backend/internal/config"
	"github.com/ipnexus/ipnexus-backend/internal/database"
	"github.com/ipnexus/ipnexus-backend/internal/models"
	"github.com/ipnexus/ipnexus-backend/internal/utils"
)

// RoyaltyService owns vault lifecycle, royalty-stack accounting, payment
// routing and claim reconciliation. Its linking entry points are callable
// only from the licensing engine, inside the licensing transaction.
type RoyaltyService struct {
	db       *gorm.DB
	cfg      *config.Config
	registry *RegistryService
	graph    *GraphService
	policies *PolicyRegistry
}

type PayRoyaltyRequest struct {
	ReceiverIPID string `json:"receiver_ip_id" validate:"required,eth_address"`
	PayerIPID    string `json:"payer_ip_id" validate:"omitempty,eth_address"`
	Token        string `json:"token" validate:"required,eth_address"`
	Amount       string `json:"amount" validate:"required"`
}

func NewRoyaltyService(db *gorm.DB, cfg *config.Config, registry *RegistryService, graph *GraphService, policies *PolicyRegistry) *RoyaltyService {
	return &RoyaltyService{
		db:       db,
		cfg:      cfg,
		registry: registry,
		graph:    graph,
		policies: policies,
	}
}

// percentOf computes amount * percent / MaxPercent with floor division at
// full 512-bit intermediate precision. Rounding dust stays in the vault;
// no compensation is attempted.
func percentOf(amount *models.Uint256, percent uint32) (models.Uint256, error) {
	var out models.Uint256
	_, overflow := out.MulDivOverflow(&amount.Int, uint256.NewInt(uint64(percent)), uint256.NewInt(uint64(models.MaxPercent)))
	if overflow {
		return models.Uint256{}, fmt.Errorf("%w: %s * %d", ErrAmountOverflow, amount.Dec(), percent)
	}
	return out, nil
}

// proRata computes amount * shares / VaultTotalShares with floor division.
func proRata(amount *models.Uint256, shares uint64) (models.Uint256, error) {
	var out models.Uint256
	_, overflow := out.MulDivOverflow(&amount.Int, uint256.NewInt(shares), uint256.NewInt(models.VaultTotalShares))
	if overflow {
		return models.Uint256{}, fmt.Errorf("%w: %s * %d", ErrAmountOverflow, amount.Dec(), shares)
	}
	return out, nil
}

// Vault lifecycle

func vaultAddressFor(ipID models.Address) models.Address {
	return models.NormalizeAddress(utils.DeriveAddress("vault:" + string(ipID)))
}

func (s *RoyaltyService) getVault(tx *gorm.DB, ipID models.Address) (*models.RoyaltyVault, error) {
	var vault models.RoyaltyVault
	err := tx.Where("ip_id = ?", ipID).First(&vault).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: IP %s", ErrVaultNotFound, ipID)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &vault, nil
}

func (s *RoyaltyService) hasVault(tx *gorm.DB, ipID models.Address) bool {
	var count int64
	tx.Model(&models.RoyaltyVault{}).Where("ip_id = ?", ipID).Count(&count)
	return count > 0
}

// deployVault creates the fixed-supply share ledger for an IP, assigning
// the entire supply to the initial holder (the IP's owner, its group
// reward pool, or the vault itself while a link splits shares out).
func (s *RoyaltyService) deployVault(tx *gorm.DB, account *models.IPAccount, initialHolder models.Address) (*models.RoyaltyVault, error) {
	vault := &models.RoyaltyVault{
		IPID:    account.Address,
		Address: vaultAddressFor(account.Address),
	}
	if err := tx.Create(vault).Error; err != nil {
		return nil, fmt.Errorf("failed to deploy royalty vault: %w", err)
	}

	balance := models.VaultShareBalance{
		IPID:   account.Address,
		Holder: initialHolder,
		Shares: models.VaultTotalShares,
	}
	if err := tx.Create(&balance).Error; err != nil {
		return nil, fmt.Errorf("failed to seed vault shares: %w", err)
	}

	return vault, nil
}

// shareRecipient picks where unallocated vault shares go: the group reward
// pool for group IPs, the owner otherwise.
func shareRecipient(account *models.IPAccount) models.Address {
	if account.IsGroup && !account.RewardPool.IsZero() {
		return account.RewardPool
	}
	return account.Owner
}

func (s *RoyaltyService) transferShares(tx *gorm.DB, ipID, from, to models.Address, shares uint64) error {
	if shares == 0 {
		return nil
	}

	var fromBalance models.VaultShareBalance
	err := tx.Where("ip_id = ? AND holder = ?", ipID, from).First(&fromBalance).Error
	if err != nil || fromBalance.Shares < shares {
		return fmt.Errorf("%w: vault shares of %s", ErrInsufficientBalance, from)
	}

	fromBalance.Shares -= shares
	if err := tx.Save(&fromBalance).Error; err != nil {
		return fmt.Errorf("failed to debit vault shares: %w", err)
	}

	var toBalance models.VaultShareBalance
	err = tx.Where("ip_id = ? AND holder = ?", ipID, to).First(&toBalance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		toBalance = models.VaultShareBalance{IPID: ipID, Holder: to}
	} else if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	toBalance.Shares += shares
	if err := tx.Save(&toBalance).Error; err != nil {
		return fmt.Errorf("failed to credit vault shares: %w", err)
	}
	return nil
}

// Policy registration

func (s *RoyaltyService) policyKind(tx *gorm.DB, policy models.Address) (models.PolicyKind, error) {
	var record models.RoyaltyPolicyRecord
	err := tx.Where("address = ?", policy).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: %s", ErrPolicyNotRegistered, policy)
		}
		return "", fmt.Errorf("database error: %w", err)
	}
	return record.Kind, nil
}

func (s *RoyaltyService) RegisterPolicy(address models.Address, kind models.PolicyKind, name string) (*models.RoyaltyPolicyRecord, error) {
	if address.IsZero() || !address.Valid() {
		return nil, ErrZeroAddress
	}
	if kind == models.PolicyKindWhitelisted {
		if _, err := s.policies.Get(address); err != nil {
			return nil, err
		}
	}

	var count int64
	s.db.Model(&models.RoyaltyPolicyRecord{}).Where("address = ?", address).Count(&count)
	if count > 0 {
		return nil, fmt.Errorf("%w: policy %s", ErrAlreadyRegistered, address)
	}

	record := &models.RoyaltyPolicyRecord{Address: address, Kind: kind, Name: name}
	if err := s.db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to register policy: %w", err)
	}
	return record, nil
}

func (s *RoyaltyService) WhitelistToken(address models.Address, symbol string) (*models.WhitelistedToken, error) {
	if address.IsZero() || !address.Valid() {
		return nil, ErrZeroAddress
	}

	var count int64
	s.db.Model(&models.WhitelistedToken{}).Where("address = ?", address).Count(&count)
	if count > 0 {
		return nil, fmt.Errorf("%w: token %s", ErrAlreadyRegistered, address)
	}

	token := &models.WhitelistedToken{Address: address, Symbol: symbol}
	if err := s.db.Create(token).Error; err != nil {
		return nil, fmt.Errorf("failed to whitelist token: %w", err)
	}
	return token, nil
}

func isTokenWhitelisted(tx *gorm.DB, token models.Address) bool {
	var count int64
	tx.Model(&models.WhitelistedToken{}).Where("address = ?", token).Count(&count)
	return count > 0
}

// Licensing-engine entry points

// onLicenseMinting prepares royalty state for a mint: bounds the license
// percentage, checks the ancestor ceiling, lazily deploys the vault and
// forwards to the whitelisted policy for its own accumulation checks.
// Runs inside the licensing transaction.
func (s *RoyaltyService) onLicenseMinting(tx *gorm.DB, ipID, policy models.Address, percent uint32) error {
	if percent > models.MaxPercent {
		return fmt.Errorf("%w: license percent %d", ErrAboveMaxPercent, percent)
	}

	kind, err := s.policyKind(tx, policy)
	if err != nil {
		return err
	}

	// An IP at the ancestor ceiling has no room for a license layer
	// beneath it.
	count, err := ancestorCount(tx, ipID)
	if err != nil {
		return err
	}
	if count >= s.cfg.Protocol.MaxAncestors {
		return fmt.Errorf("%w: %d ancestors", ErrAboveMaxAncestors, count)
	}

	if !s.hasVault(tx, ipID) {
		account, err := getIPAccount(tx, ipID)
		if err != nil {
			return err
		}
		if _, err := s.deployVault(tx, account, shareRecipient(account)); err != nil {
			return err
		}
	}

	if kind == models.PolicyKindWhitelisted {
		impl, err := s.policies.Get(policy)
		if err != nil {
			return err
		}
		if err := impl.OnLicenseMinting(tx, ipID, percent); err != nil {
			return err
		}
	}

	return nil
}

// onLinkToParents deploys the child's vault and distributes its shares to
// every accumulated ancestor policy, then fixes the child's global royalty
// stack. Runs inside the licensing transaction, after the derivative edges
// and the ancestor closure have been written.
func (s *RoyaltyService) onLinkToParents(tx *gorm.DB, child models.Address, edges []models.DerivativeEdge) error {
	if s.hasVault(tx, child) {
		return fmt.Errorf("%w: IP %s", ErrVaultAlreadyExists, child)
	}

	parents := parentSet(edges)
	if len(parents) == 0 {
		return errors.New("parent list must not be empty")
	}
	if len(parents) > s.cfg.Protocol.MaxParents {
		return fmt.Errorf("%w: %d parents", ErrAboveMaxParents, len(parents))
	}

	count, err := ancestorCount(tx, child)
	if err != nil {
		return err
	}
	if count > s.cfg.Protocol.MaxAncestors {
		return fmt.Errorf("%w: %d ancestors", ErrAboveMaxAncestors, count)
	}

	accumulated, err := s.accumulatePolicies(tx, parents, edges)
	if err != nil {
		return err
	}
	if len(accumulated) > s.cfg.Protocol.MaxAccumulatedPolicies {
		return fmt.Errorf("%w: %d policies", ErrAboveMaxPolicies, len(accumulated))
	}

	account, err := getIPAccount(tx, child)
	if err != nil {
		return err
	}

	// The vault holds the full supply while shares are being split out.
	if _, err := s.deployVault(tx, account, models.Address("")); err != nil {
		return err
	}

	var totalShares uint64
	type allocation struct {
		policy models.Address
		shares uint64
	}
	var allocations []allocation

	for _, policy := range accumulated {
		kind, err := s.policyKind(tx, policy)
		if err != nil {
			return err
		}

		var rts uint64
		if kind == models.PolicyKindWhitelisted {
			impl, err := s.policies.Get(policy)
			if err != nil {
				return err
			}
			rts, err = impl.RtsRequiredToLink(tx, child, parents, edges)
			if err != nil {
				return err
			}
			if err := impl.OnLinkToParents(tx, child, parents, edges); err != nil {
				return err
			}
		} else {
			// External policies are not called back into; their claim is
			// the sum of the direct edge percentages they enforce.
			for _, edge := range edges {
				if edge.RoyaltyPolicy == policy {
					rts += uint64(edge.Percent)
				}
			}
		}

		totalShares += rts
		if totalShares > models.VaultTotalShares {
			return fmt.Errorf("%w: %d shares required", ErrSharesExceedSupply, totalShares)
		}
		allocations = append(allocations, allocation{policy: policy, shares: rts})
	}

	for _, alloc := range allocations {
		if err := s.transferShares(tx, child, models.Address(""), alloc.policy, alloc.shares); err != nil {
			return err
		}
	}

	// Remaining shares go to the child itself (or its group pool).
	remaining := models.VaultTotalShares - totalShares
	if err := s.transferShares(tx, child, models.Address(""), shareRecipient(account), remaining); err != nil {
		return err
	}

	for _, policy := range accumulated {
		row := models.AccumulatedPolicy{IPID: child, Policy: policy}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to record accumulated policy: %w", err)
		}
	}

	// Global stack covers whitelisted policies only; external policies are
	// settled off-protocol.
	var stack uint64
	for _, policy := range accumulated {
		kind, err := s.policyKind(tx, policy)
		if err != nil {
			return err
		}
		if kind != models.PolicyKindWhitelisted {
			continue
		}
		impl, err := s.policies.Get(policy)
		if err != nil {
			return err
		}
		share, err := impl.RoyaltyStack(tx, child)
		if err != nil {
			return err
		}
		stack += uint64(share)
	}
	if stack > uint64(models.MaxPercent) {
		return fmt.Errorf("%w: global stack %d", ErrStackExceedsPercent, stack)
	}

	record := models.RoyaltyStack{IPID: child, Percent: uint32(stack)}
	if err := tx.Create(&record).Error; err != nil {
		return fmt.Errorf("failed to record royalty stack: %w", err)
	}

	return nil
}

func parentSet(edges []models.DerivativeEdge) []models.Address {
	seen := make(map[models.Address]struct{})
	var parents []models.Address
	for _, edge := range edges {
		if _, ok := seen[edge.ParentIPID]; ok {
			continue
		}
		seen[edge.ParentIPID] = struct{}{}
		parents = append(parents, edge.ParentIPID)
	}
	return parents
}

// accumulatePolicies unions the parents' inherited policy sets with the
// policies on the direct edges, in a stable order.
func (s *RoyaltyService) accumulatePolicies(tx *gorm.DB, parents []models.Address, edges []models.DerivativeEdge) ([]models.Address, error) {
	seen := make(map[models.Address]struct{})
	var policies []models.Address

	add := func(policy models.Address) {
		if policy.IsZero() {
			return
		}
		if _, ok := seen[policy]; ok {
			return
		}
		seen[policy] = struct{}{}
		policies = append(policies, policy)
	}

	for _, edge := range edges {
		add(edge.RoyaltyPolicy)
	}

	for _, parent := range parents {
		var rows []models.AccumulatedPolicy
		if err := tx.Where("ip_id = ?", parent).Order("policy").Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to read accumulated policies: %w", err)
		}
		for _, row := range rows {
			add(row.Policy)
		}
	}

	return policies, nil
}

// Payment routing

// PayRoyaltyOnBehalf routes a revenue payment from a payer wallet to a
// receiver IP's royalty graph.
func (s *RoyaltyService) PayRoyaltyOnBehalf(payer models.Address, req *PayRoyaltyRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	amount, err := models.ParseUint256(req.Amount)
	if err != nil {
		return err
	}

	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		// When the payment is attributed to a payer IP, that IP must exist.
		if req.PayerIPID != "" {
			if _, err := getIPAccount(tx, models.NormalizeAddress(req.PayerIPID)); err != nil {
				return err
			}
		}
		return s.routePayment(tx, models.NormalizeAddress(req.ReceiverIPID), payer,
			models.NormalizeAddress(req.Token), &amount)
	})
}

// payLicenseMintingFee settles a minting fee through the same routing as
// royalty payments. Runs inside the licensing transaction.
func (s *RoyaltyService) payLicenseMintingFee(tx *gorm.DB, receiverIPID, payer, token models.Address, amount *models.Uint256) error {
	return s.routePayment(tx, receiverIPID, payer, token, amount)
}

// routePayment is the single internal payment routine: treasury fee first,
// then live per-policy splits bounded by the recorded global stack, then
// the remainder to the receiver's vault.
func (s *RoyaltyService) routePayment(tx *gorm.DB, receiverIPID, payer, token models.Address, amount *models.Uint256) error {
	if amount.IsZero() {
		return ErrZeroAmount
	}
	if !isTokenWhitelisted(tx, token) {
		return fmt.Errorf("%w: %s", ErrTokenNotWhitelisted, token)
	}

	tagged, err := isIpTagged(tx, receiverIPID)
	if err != nil {
		return err
	}
	if tagged {
		return fmt.Errorf("%w: receiver %s", ErrIPDisputed, receiverIPID)
	}

	account, err := getIPAccount(tx, receiverIPID)
	if err != nil {
		return err
	}

	// Treasury fee comes off the top.
	fee, err := percentOf(amount, s.cfg.Protocol.TreasuryFeePercent)
	if err != nil {
		return err
	}
	if !fee.IsZero() {
		if err := s.transferTokens(tx, token, payer, models.NormalizeAddress(string(s.cfg.Protocol.TreasuryAddress)), &fee); err != nil {
			return err
		}
	}

	var remainder models.Uint256
	remainder.Sub(&amount.Int, &fee.Int)

	// Split to accumulated whitelisted policies at their live stack
	// shares, clamped by the stack recorded at link time.
	recordedStack := s.royaltyStackPercent(tx, receiverIPID)
	maxToPolicies, err := percentOf(&remainder, recordedStack)
	if err != nil {
		return err
	}

	var paidToPolicies models.Uint256
	var accumulated []models.AccumulatedPolicy
	if err := tx.Where("ip_id = ?", receiverIPID).Order("policy").Find(&accumulated).Error; err != nil {
		return fmt.Errorf("failed to read accumulated policies: %w", err)
	}

	for _, row := range accumulated {
		kind, err := s.policyKind(tx, row.Policy)
		if err != nil {
			return err
		}
		if kind != models.PolicyKindWhitelisted {
			continue
		}

		impl, err := s.policies.Get(row.Policy)
		if err != nil {
			return err
		}
		live, err := impl.RoyaltyStack(tx, receiverIPID)
		if err != nil {
			return err
		}

		share, err := percentOf(&remainder, live)
		if err != nil {
			return err
		}

		// Clamp so live drift never pays out more than the recorded stack.
		var headroom models.Uint256
		headroom.Sub(&maxToPolicies.Int, &paidToPolicies.Int)
		if share.Gt(&headroom.Int) {
			share = headroom
		}
		if share.IsZero() {
			continue
		}

		if err := s.transferTokens(tx, token, payer, row.Policy, &share); err != nil {
			return err
		}
		paidToPolicies.Add(&paidToPolicies.Int, &share.Int)
	}

	// Remainder lands in the receiver's own vault.
	var rest models.Uint256
	rest.Sub(&remainder.Int, &paidToPolicies.Int)

	if !s.hasVault(tx, receiverIPID) {
		if _, err := s.deployVault(tx, account, shareRecipient(account)); err != nil {
			return err
		}
	}
	vault, err := s.getVault(tx, receiverIPID)
	if err != nil {
		return err
	}

	if !rest.IsZero() {
		if err := s.transferTokens(tx, token, payer, vault.Address, &rest); err != nil {
			return err
		}
		if err := s.creditPending(tx, receiverIPID, token, &rest); err != nil {
			return err
		}
	}

	// Lifetime total tracks the post-fee amount regardless of the split.
	return s.creditLifetime(tx, receiverIPID, token, &remainder)
}

func (s *RoyaltyService) royaltyStackPercent(tx *gorm.DB, ipID models.Address) uint32 {
	var record models.RoyaltyStack
	if err := tx.Where("ip_id = ?", ipID).First(&record).Error; err != nil {
		return 0
	}
	return record.Percent
}

func (s *RoyaltyService) creditPending(tx *gorm.DB, ipID, token models.Address, amount *models.Uint256) error {
	var pending models.VaultPendingBalance
	err := tx.Where("ip_id = ? AND token = ?", ipID, token).First(&pending).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		pending = models.VaultPendingBalance{IPID: ipID, Token: token}
	} else if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	pending.Amount.Add(&pending.Amount.Int, &amount.Int)
	if err := tx.Save(&pending).Error; err != nil {
		return fmt.Errorf("failed to credit vault pending balance: %w", err)
	}
	return nil
}

func (s *RoyaltyService) creditLifetime(tx *gorm.DB, ipID, token models.Address, amount *models.Uint256) error {
	var revenue models.LifetimeRevenue
	err := tx.Where("ip_id = ? AND token = ?", ipID, token).First(&revenue).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		revenue = models.LifetimeRevenue{IPID: ipID, Token: token}
	} else if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	revenue.Amount.Add(&revenue.Amount.Int, &amount.Int)
	if err := tx.Save(&revenue).Error; err != nil {
		return fmt.Errorf("failed to update lifetime revenue: %w", err)
	}
	return nil
}

// Token ledger

func (s *RoyaltyService) transferTokens(tx *gorm.DB, token, from, to models.Address, amount *models.Uint256) error {
	if amount.IsZero() {
		return nil
	}

	var fromBalance models.TokenBalance
	err := tx.Where("token = ? AND holder = ?", token, from).First(&fromBalance).Error
	if err != nil || fromBalance.Amount.Lt(&amount.Int) {
		return fmt.Errorf("%w: %s holds too little %s", ErrInsufficientBalance, from, token)
	}

	fromBalance.Amount.Sub(&fromBalance.Amount.Int, &amount.Int)
	if err := tx.Save(&fromBalance).Error; err != nil {
		return fmt.Errorf("failed to debit tokens: %w", err)
	}

	return s.creditTokens(tx, token, to, amount)
}

func (s *RoyaltyService) creditTokens(tx *gorm.DB, token, holder models.Address, amount *models.Uint256) error {
	var balance models.TokenBalance
	err := tx.Where("token = ? AND holder = ?", token, holder).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		balance = models.TokenBalance{Token: token, Holder: holder}
	} else if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	balance.Amount.Add(&balance.Amount.Int, &amount.Int)
	if err := tx.Save(&balance).Error; err != nil {
		return fmt.Errorf("failed to credit tokens: %w", err)
	}
	return nil
}

// DepositTokens credits a holder's ledger balance; this is the bridge leg
// where funds enter the protocol ledger. Admin-gated at the API layer.
func (s *RoyaltyService) DepositTokens(token, holder models.Address, amount *models.Uint256) error {
	if amount.IsZero() {
		return ErrZeroAmount
	}
	if !isTokenWhitelisted(s.db, token) {
		return fmt.Errorf("%w: %s", ErrTokenNotWhitelisted, token)
	}
	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		return s.creditTokens(tx, token, holder, amount)
	})
}

// Claim engine

// SnapshotVault freezes the vault's pending balances for claiming. A new
// snapshot cannot be taken before the configured interval has elapsed.
func (s *RoyaltyService) SnapshotVault(ipID models.Address) (*models.VaultSnapshot, error) {
	var snapshot models.VaultSnapshot
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		vault, err := s.getVault(tx, ipID)
		if err != nil {
			return err
		}

		now := time.Now()
		if vault.LastSnapshotAt != nil {
			elapsed := now.Sub(*vault.LastSnapshotAt)
			if elapsed < time.Duration(s.cfg.Protocol.SnapshotInterval)*time.Second {
				return fmt.Errorf("%w: %s since last snapshot", ErrSnapshotTooSoon, elapsed)
			}
		}

		var pending []models.VaultPendingBalance
		if err := tx.Where("ip_id = ?", ipID).Find(&pending).Error; err != nil {
			return fmt.Errorf("failed to read pending balances: %w", err)
		}
		if len(pending) == 0 {
			return ErrZeroClaimable
		}

		snapshot = models.VaultSnapshot{IPID: ipID, TakenAt: now}
		if err := tx.Create(&snapshot).Error; err != nil {
			return fmt.Errorf("failed to create snapshot: %w", err)
		}

		for i := range pending {
			row := models.SnapshotAmount{
				SnapshotID: snapshot.SnapshotID,
				Token:      pending[i].Token,
				Amount:     pending[i].Amount,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to freeze pending balance: %w", err)
			}
		}

		if err := tx.Where("ip_id = ?", ipID).Delete(&models.VaultPendingBalance{}).Error; err != nil {
			return fmt.Errorf("failed to clear pending balances: %w", err)
		}

		vault.LastSnapshotAt = &now
		return tx.Save(vault).Error
	})
	if err != nil {
		return nil, err
	}

	return &snapshot, nil
}

// ClaimableRevenue reports what a holder could claim from one snapshot
// slice without mutating anything.
func (s *RoyaltyService) ClaimableRevenue(snapshotID uint64, token, claimer models.Address) (models.Uint256, error) {
	var zero models.Uint256

	var snapshot models.VaultSnapshot
	if err := s.db.First(&snapshot, snapshotID).Error; err != nil {
		return zero, errors.New("snapshot not found")
	}

	var claimed int64
	s.db.Model(&models.SnapshotClaim{}).
		Where("snapshot_id = ? AND token = ? AND claimer = ?", snapshotID, token, claimer).
		Count(&claimed)
	if claimed > 0 {
		return zero, nil
	}

	var amount models.SnapshotAmount
	if err := s.db.Where("snapshot_id = ? AND token = ?", snapshotID, token).First(&amount).Error; err != nil {
		return zero, nil
	}

	var shares models.VaultShareBalance
	if err := s.db.Where("ip_id = ? AND holder = ?", snapshot.IPID, claimer).First(&shares).Error; err != nil {
		return zero, nil
	}

	return proRata(&amount.Amount, shares.Shares)
}

// ClaimRevenue pays out a holder's pro-rata slice of a snapshot. The claim
// mark is committed in the same transaction as the transfer, so the
// operation cannot be replayed.
func (s *RoyaltyService) ClaimRevenue(snapshotID uint64, token, claimer models.Address) (models.Uint256, error) {
	var payout models.Uint256
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var snapshot models.VaultSnapshot
		if err := tx.First(&snapshot, snapshotID).Error; err != nil {
			return errors.New("snapshot not found")
		}

		var claimed int64
		tx.Model(&models.SnapshotClaim{}).
			Where("snapshot_id = ? AND token = ? AND claimer = ?", snapshotID, token, claimer).
			Count(&claimed)
		if claimed > 0 {
			return ErrAlreadyClaimed
		}

		var amount models.SnapshotAmount
		if err := tx.Where("snapshot_id = ? AND token = ?", snapshotID, token).First(&amount).Error; err != nil {
			return ErrZeroClaimable
		}

		var shares models.VaultShareBalance
		if err := tx.Where("ip_id = ? AND holder = ?", snapshot.IPID, claimer).First(&shares).Error; err != nil {
			return ErrZeroClaimable
		}

		var proErr error
		payout, proErr = proRata(&amount.Amount, shares.Shares)
		if proErr != nil {
			return proErr
		}
		if payout.IsZero() {
			return ErrZeroClaimable
		}

		claim := models.SnapshotClaim{
			SnapshotID: snapshotID,
			Token:      token,
			Claimer:    claimer,
			Amount:     payout,
		}
		if err := tx.Create(&claim).Error; err != nil {
			return fmt.Errorf("failed to record claim: %w", err)
		}

		vault, err := s.getVault(tx, snapshot.IPID)
		if err != nil {
			return err
		}
		return s.transferTokens(tx, token, vault.Address, claimer, &payout)
	})
	if err != nil {
		return models.Uint256{}, err
	}

	return payout, nil
}

// Queries

func (s *RoyaltyService) GetVault(ipID models.Address) (*models.RoyaltyVault, error) {
	return s.getVault(s.db, ipID)
}

func (s *RoyaltyService) GetVaultBalances(ipID models.Address) ([]models.VaultShareBalance, error) {
	var balances []models.VaultShareBalance
	if err := s.db.Where("ip_id = ?", ipID).Order("holder").Find(&balances).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch vault balances: %w", err)
	}
	return balances, nil
}

func (s *RoyaltyService) GetRoyaltyStack(ipID models.Address) (uint32, error) {
	return s.royaltyStackPercent(s.db, ipID), nil
}

func (s *RoyaltyService) GetLifetimeRevenue(ipID, token models.Address) (models.Uint256, error) {
	var revenue models.LifetimeRevenue
	err := s.db.Where("ip_id = ? AND token = ?", ipID, token).First(&revenue).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Uint256{}, nil
		}
		return models.Uint256{}, fmt.Errorf("database error: %w", err)
	}
	return revenue.Amount, nil
}

func (s *RoyaltyService) GetTokenBalance(token, holder models.Address) (models.Uint256, error) {
	var balance models.TokenBalance
	err := s.db.Where("token = ? AND holder = ?", token, holder).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Uint256{}, nil
		}
		return models.Uint256{}, fmt.Errorf("database error: %w", err)
	}
	return balance.Amount, nil
}
