// internal/services/registry_service.go
package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ipnexus/ipnexus-backend/internal/config"
	"github.com/ipnexus/ipnexus-backend/internal/models"
	"github.com/ipnexus/ipnexus-backend/internal/utils"
)

// RegistryService owns the IP account registry and the module registry.
// Every other engine resolves accounts, owners and module membership
// through it.
type RegistryService struct {
	db  *gorm.DB
	cfg *config.Config
}

type RegisterIPAccountRequest struct {
	ChainID       uint64 `json:"chain_id" validate:"required"`
	TokenContract string `json:"token_contract" validate:"required,eth_address"`
	TokenID       string `json:"token_id" validate:"required"`
	Owner         string `json:"owner" validate:"required,eth_address"`
	IsGroup       bool   `json:"is_group,omitempty"`
	RewardPool    string `json:"reward_pool,omitempty" validate:"omitempty,eth_address"`
}

type RegisterModuleRequest struct {
	Name      string   `json:"name" validate:"required,min=2,max=100"`
	Address   string   `json:"address" validate:"required,eth_address"`
	Selectors []string `json:"selectors,omitempty" validate:"omitempty,dive,func_selector"`
}

func NewRegistryService(db *gorm.DB, cfg *config.Config) *RegistryService {
	return &RegistryService{
		db:  db,
		cfg: cfg,
	}
}

// RegisterIPAccount binds a new programmable account to a
// (chain, token contract, token id) triple. The derived address is
// deterministic, so the same token always maps to the same account; a
// second registration for the triple is rejected.
func (s *RegistryService) RegisterIPAccount(req *RegisterIPAccountRequest) (*models.IPAccount, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	tokenContract := models.NormalizeAddress(req.TokenContract)
	owner := models.NormalizeAddress(req.Owner)
	if owner.IsZero() {
		return nil, ErrZeroAddress
	}

	if req.IsGroup && models.NormalizeAddress(req.RewardPool).IsZero() {
		return nil, errors.New("group IP requires a reward pool address")
	}

	address := models.NormalizeAddress(utils.DeriveAddress(
		fmt.Sprintf("ipaccount:%d:%s:%s", req.ChainID, tokenContract, req.TokenID)))

	var existing models.IPAccount
	err := s.db.Where("address = ?", address).First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("%w: token already bound to account %s", ErrAlreadyRegistered, address)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	account := &models.IPAccount{
		Address:       address,
		ChainID:       req.ChainID,
		TokenContract: tokenContract,
		TokenID:       req.TokenID,
		Owner:         owner,
		IsGroup:       req.IsGroup,
		RewardPool:    models.NormalizeAddress(req.RewardPool),
	}

	if err := s.db.Create(account).Error; err != nil {
		return nil, fmt.Errorf("failed to register IP account: %w", err)
	}

	return account, nil
}

// TransferOwnership follows the bound token to a new holder. Only the
// current owner may record the transfer. Permission entries are keyed
// owner-exclusively and survive the transfer.
func (s *RegistryService) TransferOwnership(ipID, caller, newOwner models.Address) (*models.IPAccount, error) {
	account, err := s.GetIPAccount(ipID)
	if err != nil {
		return nil, err
	}

	if account.Owner != caller {
		return nil, ErrNotAuthorized
	}
	if newOwner.IsZero() || !newOwner.Valid() {
		return nil, ErrZeroAddress
	}

	account.Owner = newOwner
	if err := s.db.Save(account).Error; err != nil {
		return nil, fmt.Errorf("failed to transfer ownership: %w", err)
	}

	return account, nil
}

func (s *RegistryService) GetIPAccount(ipID models.Address) (*models.IPAccount, error) {
	return getIPAccount(s.db, ipID)
}

func getIPAccount(tx *gorm.DB, ipID models.Address) (*models.IPAccount, error) {
	var account models.IPAccount
	if err := tx.Where("address = ?", ipID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: IP account %s", ErrNotRegistered, ipID)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &account, nil
}

func (s *RegistryService) IsRegistered(ipID models.Address) bool {
	return isRegistered(s.db, ipID)
}

func isRegistered(tx *gorm.DB, ipID models.Address) bool {
	var count int64
	tx.Model(&models.IPAccount{}).Where("address = ?", ipID).Count(&count)
	return count > 0
}

// Owner resolves the current signing authority of an IP account.
func (s *RegistryService) Owner(ipID models.Address) (models.Address, error) {
	account, err := s.GetIPAccount(ipID)
	if err != nil {
		return models.ZeroAddress, err
	}
	return account.Owner, nil
}

func (s *RegistryService) ListIPAccounts(params utils.PaginationParams) ([]models.IPAccount, int64, error) {
	query := s.db.Model(&models.IPAccount{})

	if params.Search != "" {
		query = query.Where("address = ? OR owner = ?",
			models.NormalizeAddress(params.Search), models.NormalizeAddress(params.Search))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count IP accounts: %w", err)
	}

	allowedSortFields := []string{"created_at", "chain_id", "owner"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var accounts []models.IPAccount
	if err := query.Find(&accounts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch IP accounts: %w", err)
	}

	return accounts, total, nil
}

// Module registry

func (s *RegistryService) RegisterModule(req *RegisterModuleRequest) (*models.Module, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	address := models.NormalizeAddress(req.Address)
	if address.IsZero() {
		return nil, ErrZeroAddress
	}

	var count int64
	s.db.Model(&models.Module{}).Where("address = ? OR name = ?", address, req.Name).Count(&count)
	if count > 0 {
		return nil, fmt.Errorf("%w: module %s", ErrAlreadyRegistered, req.Name)
	}

	module := &models.Module{
		Address:   address,
		Name:      req.Name,
		Selectors: req.Selectors,
	}

	if err := s.db.Create(module).Error; err != nil {
		return nil, fmt.Errorf("failed to register module: %w", err)
	}

	return module, nil
}

func (s *RegistryService) RemoveModule(address models.Address) error {
	result := s.db.Where("address = ?", address).Delete(&models.Module{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove module: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: module %s", ErrNotRegistered, address)
	}
	return nil
}

func (s *RegistryService) IsModule(address models.Address) bool {
	return isModule(s.db, address)
}

func isModule(tx *gorm.DB, address models.Address) bool {
	var count int64
	tx.Model(&models.Module{}).Where("address = ?", address).Count(&count)
	return count > 0
}

func (s *RegistryService) ListModules() ([]models.Module, error) {
	var modules []models.Module
	if err := s.db.Order("name").Find(&modules).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch modules: %w", err)
	}
	return modules, nil
}
