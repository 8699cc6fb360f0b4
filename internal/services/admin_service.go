// internal/services/admin_service.go
package services

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ipnexus/ipnexus-backend/internal/models"
	"github.com/ipnexus/ipnexus-backend/internal/utils"
)

// AdminService backs the operator console: protocol-wide stats, user
// management and the audit trail.
type AdminService struct {
	db *gorm.DB
}

type ProtocolStats struct {
	IPAccounts      int64 `json:"ip_accounts"`
	Modules         int64 `json:"modules"`
	LicenseTerms    int64 `json:"license_terms"`
	LicenseTokens   int64 `json:"license_tokens"`
	DerivativeEdges int64 `json:"derivative_edges"`
	Vaults          int64 `json:"vaults"`
	ActiveDisputes  int64 `json:"active_disputes"`
	Users           int64 `json:"users"`
}

func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{db: db}
}

func (s *AdminService) GetProtocolStats() (*ProtocolStats, error) {
	stats := &ProtocolStats{}

	counts := []struct {
		model interface{}
		dst   *int64
	}{
		{&models.IPAccount{}, &stats.IPAccounts},
		{&models.Module{}, &stats.Modules},
		{&models.LicenseTerms{}, &stats.LicenseTerms},
		{&models.LicenseToken{}, &stats.LicenseTokens},
		{&models.DerivativeEdge{}, &stats.DerivativeEdges},
		{&models.RoyaltyVault{}, &stats.Vaults},
		{&models.User{}, &stats.Users},
	}
	for _, c := range counts {
		if err := s.db.Model(c.model).Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("failed to collect stats: %w", err)
		}
	}

	err := s.db.Model(&models.Dispute{}).
		Where("phase = ? AND current_tag <> ''", models.DisputePhaseJudged).
		Count(&stats.ActiveDisputes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to collect stats: %w", err)
	}

	return stats, nil
}

func (s *AdminService) GetUsers(params utils.PaginationParams) ([]models.User, int64, error) {
	query := s.db.Model(&models.User{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	var users []models.User
	if err := utils.ApplyPagination(query.Order("created_at DESC"), params).Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}
	return users, total, nil
}

func (s *AdminService) UpdateUserStatus(userID uuid.UUID, status models.UserStatus) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, fmt.Errorf("user not found")
	}

	user.Status = status
	if err := s.db.Save(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to update user status: %w", err)
	}
	return &user, nil
}

func (s *AdminService) GetAuditLogs(params utils.PaginationParams) ([]models.AuditLog, int64, error) {
	query := s.db.Model(&models.AuditLog{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	var logs []models.AuditLog
	if err := utils.ApplyPagination(query.Order("created_at DESC"), params).Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}
	return logs, total, nil
}
