// internal/services/permission_service.go
package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ipnexus/ipnexus-backend/internal/database"
	"github.com/ipnexus/ipnexus-backend/internal/models"
	"github.com/ipnexus/ipnexus-backend/internal/utils"
)

// PermissionLookup resolves a single permission entry; absence must be
// reported as PermissionAbstain, never as an error.
type PermissionLookup func(ipAccount, signer, to models.Address, fn models.Selector) (models.PermissionLevel, error)

// ResolvePermission runs the layered wildcard resolution: exact entry,
// module wildcard (any function on the target), then global signer
// wildcard. The first non-abstain level wins; abstain through all three
// fails closed.
func ResolvePermission(ipAccount, signer, to models.Address, fn models.Selector, lookup PermissionLookup) (models.PermissionLevel, error) {
	keys := []struct {
		to models.Address
		fn models.Selector
	}{
		{to, fn},
		{to, models.ZeroSelector},
		{models.ZeroAddress, models.ZeroSelector},
	}

	for _, key := range keys {
		level, err := lookup(ipAccount, signer, key.to, key.fn)
		if err != nil {
			return models.PermissionAbstain, err
		}
		if level != models.PermissionAbstain {
			return level, nil
		}
	}

	return models.PermissionAbstain, nil
}

type PermissionService struct {
	db       *gorm.DB
	registry *RegistryService
}

type SetPermissionRequest struct {
	IPAccount string `json:"ip_account" validate:"required,eth_address"`
	Signer    string `json:"signer" validate:"required,eth_address"`
	To        string `json:"to" validate:"omitempty,eth_address"`
	Func      string `json:"func" validate:"omitempty,func_selector"`
	Level     uint8  `json:"level"`
}

type SetAllPermissionsRequest struct {
	IPAccount string `json:"ip_account" validate:"required,eth_address"`
	Signer    string `json:"signer" validate:"required,eth_address"`
	Level     uint8  `json:"level"`
}

func NewPermissionService(db *gorm.DB, registry *RegistryService) *PermissionService {
	return &PermissionService{
		db:       db,
		registry: registry,
	}
}

// CheckPermission gates a cross-account call. The account's current owner
// always passes; otherwise either the target or the signer must be a
// registered module, and the layered permission table decides.
func (s *PermissionService) CheckPermission(ipAccount, signer, to models.Address, fn models.Selector) error {
	account, err := s.registry.GetIPAccount(ipAccount)
	if err != nil {
		return err
	}

	if signer == account.Owner {
		return nil
	}

	// Keep arbitrary external contracts unreachable through the account.
	if !s.registry.IsModule(to) && !s.registry.IsModule(signer) {
		return fmt.Errorf("%w: to=%s signer=%s", ErrNotModule, to, signer)
	}

	level, err := ResolvePermission(ipAccount, signer, to, fn, s.lookup)
	if err != nil {
		return err
	}

	if level != models.PermissionAllow {
		return fmt.Errorf("%w: signer %s on %s.%s", ErrPermissionDenied, signer, to, fn)
	}
	return nil
}

func (s *PermissionService) lookup(ipAccount, signer, to models.Address, fn models.Selector) (models.PermissionLevel, error) {
	var entry models.Permission
	err := s.db.Where("ip_account = ? AND signer = ? AND \"to\" = ? AND func = ?",
		ipAccount, signer, to, fn).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.PermissionAbstain, nil
		}
		return models.PermissionAbstain, fmt.Errorf("database error: %w", err)
	}
	return entry.Level, nil
}

// SetPermission writes one permission entry. The caller must be the IP
// account itself or its current owner. A request carrying both wildcards
// must go through SetAllPermissions instead.
func (s *PermissionService) SetPermission(caller models.Address, req *SetPermissionRequest) (*models.Permission, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	to := models.NormalizeAddress(req.To)
	if req.To == "" {
		to = models.ZeroAddress
	}
	fn := models.NormalizeSelector(req.Func)

	if to.IsZero() && fn.IsZero() {
		return nil, ErrWildcardMisuse
	}

	return s.setEntry(s.db, caller, models.NormalizeAddress(req.IPAccount),
		models.NormalizeAddress(req.Signer), to, fn, models.PermissionLevel(req.Level))
}

// SetAllPermissions writes the explicit global wildcard entry for a signer.
func (s *PermissionService) SetAllPermissions(caller models.Address, req *SetAllPermissionsRequest) (*models.Permission, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return s.setEntry(s.db, caller, models.NormalizeAddress(req.IPAccount),
		models.NormalizeAddress(req.Signer), models.ZeroAddress, models.ZeroSelector,
		models.PermissionLevel(req.Level))
}

// SetBatchPermissions applies a batch atomically: one invalid entry aborts
// the whole batch.
func (s *PermissionService) SetBatchPermissions(caller models.Address, reqs []SetPermissionRequest) ([]models.Permission, error) {
	if len(reqs) == 0 {
		return nil, errors.New("empty permission batch")
	}

	var entries []models.Permission
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		for i := range reqs {
			req := &reqs[i]
			if err := utils.ValidateStruct(req); err != nil {
				return fmt.Errorf("entry %d: validation failed: %w", i, err)
			}

			to := models.NormalizeAddress(req.To)
			if req.To == "" {
				to = models.ZeroAddress
			}
			fn := models.NormalizeSelector(req.Func)
			if to.IsZero() && fn.IsZero() {
				return fmt.Errorf("entry %d: %w", i, ErrWildcardMisuse)
			}

			entry, err := s.setEntry(tx, caller, models.NormalizeAddress(req.IPAccount),
				models.NormalizeAddress(req.Signer), to, fn, models.PermissionLevel(req.Level))
			if err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
			entries = append(entries, *entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (s *PermissionService) setEntry(tx *gorm.DB, caller, ipAccount, signer, to models.Address, fn models.Selector, level models.PermissionLevel) (*models.Permission, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("invalid permission level %d", level)
	}
	if signer.IsZero() {
		return nil, ErrZeroAddress
	}

	account, err := getIPAccount(tx, ipAccount)
	if err != nil {
		return nil, err
	}

	if caller != account.Address && caller != account.Owner {
		return nil, ErrNotOwnerOrAccount
	}

	var entry models.Permission
	err = tx.Where("ip_account = ? AND signer = ? AND \"to\" = ? AND func = ?",
		ipAccount, signer, to, fn).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		entry = models.Permission{
			IPAccount: ipAccount,
			Signer:    signer,
			To:        to,
			Func:      fn,
		}
	} else if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	entry.Level = level
	// Audit records the owner resolved at call time; the key itself is
	// owner-exclusive.
	entry.SetByOwner = account.Owner

	if err := tx.Save(&entry).Error; err != nil {
		return nil, fmt.Errorf("failed to save permission: %w", err)
	}

	return &entry, nil
}

func (s *PermissionService) GetPermissions(ipAccount models.Address, params utils.PaginationParams) ([]models.Permission, int64, error) {
	query := s.db.Model(&models.Permission{}).Where("ip_account = ?", ipAccount)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count permissions: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "signer"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var entries []models.Permission
	if err := query.Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch permissions: %w", err)
	}

	return entries, total, nil
}
