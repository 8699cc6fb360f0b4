// internal/services/dispute_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ipnexus/ipnexus-backend/internal/database"
	"github.com/ipnexus/ipnexus-backend/internal/models"
	"github.com/ipnexus/ipnexus-backend/internal/utils"
)

// DisputeService maintains dispute records and the per-IP active-tag
// counter the licensing and royalty engines consult. Counter updates are
// committed in the same transaction as the phase change, before any
// caller-visible effect.
type DisputeService struct {
	db       *gorm.DB
	registry *RegistryService
	graph    *GraphService
}

type RaiseDisputeRequest struct {
	TargetIPID        string `json:"target_ip_id" validate:"required,eth_address"`
	ArbitrationPolicy string `json:"arbitration_policy" validate:"required,eth_address"`
	EvidenceHash      string `json:"evidence_hash" validate:"required,hash32"`
	TargetTag         string `json:"target_tag" validate:"required,min=2,max=32"`
}

func NewDisputeService(db *gorm.DB, registry *RegistryService, graph *GraphService) *DisputeService {
	return &DisputeService{
		db:       db,
		registry: registry,
		graph:    graph,
	}
}

// RaiseDispute opens a dispute against a registered IP. Several disputes
// may be open against the same target.
func (s *DisputeService) RaiseDispute(initiator models.Address, req *RaiseDisputeRequest) (*models.Dispute, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	target := models.NormalizeAddress(req.TargetIPID)
	if !s.registry.IsRegistered(target) {
		return nil, fmt.Errorf("%w: IP account %s", ErrNotRegistered, target)
	}

	dispute := &models.Dispute{
		TargetIPID:        target,
		Initiator:         initiator,
		ArbitrationPolicy: models.NormalizeAddress(req.ArbitrationPolicy),
		EvidenceHash:      req.EvidenceHash,
		TargetTag:         req.TargetTag,
		Phase:             models.DisputePhaseRaised,
	}

	if err := s.db.Create(dispute).Error; err != nil {
		return nil, fmt.Errorf("failed to raise dispute: %w", err)
	}

	return dispute, nil
}

// JudgeDispute records the arbitration verdict. A true decision sets the
// tag and increments the target's active-dispute counter atomically.
func (s *DisputeService) JudgeDispute(disputeID uuid.UUID, decision bool) (*models.Dispute, error) {
	var dispute models.Dispute
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&dispute, disputeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("dispute not found")
			}
			return fmt.Errorf("database error: %w", err)
		}

		if dispute.Phase != models.DisputePhaseRaised {
			return errors.New("dispute already processed")
		}

		dispute.Phase = models.DisputePhaseJudged
		if decision {
			dispute.CurrentTag = dispute.TargetTag
			if err := bumpActiveDisputes(tx, dispute.TargetIPID, +1); err != nil {
				return err
			}
		} else {
			dispute.Phase = models.DisputePhaseCancelled
		}

		return tx.Save(&dispute).Error
	})
	if err != nil {
		return nil, err
	}

	return &dispute, nil
}

// CancelDispute withdraws a still-pending dispute; only the initiator may
// cancel.
func (s *DisputeService) CancelDispute(disputeID uuid.UUID, caller models.Address) (*models.Dispute, error) {
	var dispute models.Dispute
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&dispute, disputeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("dispute not found")
			}
			return fmt.Errorf("database error: %w", err)
		}

		if dispute.Initiator != caller {
			return ErrNotAuthorized
		}
		if dispute.Phase != models.DisputePhaseRaised {
			return errors.New("only pending disputes can be cancelled")
		}

		dispute.Phase = models.DisputePhaseCancelled
		return tx.Save(&dispute).Error
	})
	if err != nil {
		return nil, err
	}

	return &dispute, nil
}

// ResolveDispute closes a judged-true dispute, clearing its tag and
// decrementing the counter. Only the initiator may resolve.
func (s *DisputeService) ResolveDispute(disputeID uuid.UUID, caller models.Address) (*models.Dispute, error) {
	var dispute models.Dispute
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.First(&dispute, disputeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("dispute not found")
			}
			return fmt.Errorf("database error: %w", err)
		}

		if dispute.Initiator != caller {
			return ErrNotAuthorized
		}
		if !dispute.Active() {
			return errors.New("only active judged disputes can be resolved")
		}

		dispute.Phase = models.DisputePhaseResolved
		dispute.CurrentTag = ""
		if err := bumpActiveDisputes(tx, dispute.TargetIPID, -1); err != nil {
			return err
		}

		return tx.Save(&dispute).Error
	})
	if err != nil {
		return nil, err
	}

	return &dispute, nil
}

// TagDerivative propagates an active dispute onto a descendant of the
// disputed IP, creating a linked judged dispute against the derivative.
func (s *DisputeService) TagDerivative(parentDisputeID uuid.UUID, derivativeIPID models.Address, caller models.Address) (*models.Dispute, error) {
	var child models.Dispute
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var parent models.Dispute
		if err := tx.First(&parent, parentDisputeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("parent dispute not found")
			}
			return fmt.Errorf("database error: %w", err)
		}

		if !parent.Active() {
			return errors.New("parent dispute is not active")
		}

		isDescendant, err := s.graph.HasAncestorIP(derivativeIPID, parent.TargetIPID)
		if err != nil {
			return err
		}
		if !isDescendant {
			return fmt.Errorf("%s is not a descendant of %s", derivativeIPID, parent.TargetIPID)
		}

		parentID := parent.ID
		child = models.Dispute{
			TargetIPID:        derivativeIPID,
			Initiator:         caller,
			ArbitrationPolicy: parent.ArbitrationPolicy,
			EvidenceHash:      parent.EvidenceHash,
			TargetTag:         parent.TargetTag,
			CurrentTag:        parent.TargetTag,
			Phase:             models.DisputePhaseJudged,
			ParentDisputeID:   &parentID,
		}

		if err := bumpActiveDisputes(tx, derivativeIPID, +1); err != nil {
			return err
		}
		return tx.Create(&child).Error
	})
	if err != nil {
		return nil, err
	}

	return &child, nil
}

// IsIpTagged reports whether the IP currently carries at least one
// successful dispute.
func (s *DisputeService) IsIpTagged(ipID models.Address) (bool, error) {
	return isIpTagged(s.db, ipID)
}

func isIpTagged(tx *gorm.DB, ipID models.Address) (bool, error) {
	account, err := getIPAccount(tx, ipID)
	if err != nil {
		return false, err
	}
	return account.Tagged(), nil
}

func bumpActiveDisputes(tx *gorm.DB, ipID models.Address, delta int) error {
	result := tx.Model(&models.IPAccount{}).Where("address = ?", ipID).
		UpdateColumn("active_disputes", gorm.Expr("active_disputes + ?", delta))
	if result.Error != nil {
		return fmt.Errorf("failed to update dispute counter: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: IP account %s", ErrNotRegistered, ipID)
	}
	return nil
}

func (s *DisputeService) GetDispute(disputeID uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := s.db.First(&dispute, disputeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("dispute not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &dispute, nil
}

func (s *DisputeService) ListDisputes(target models.Address, params utils.PaginationParams) ([]models.Dispute, int64, error) {
	query := s.db.Model(&models.Dispute{})
	if !target.IsZero() {
		query = query.Where("target_ip_id = ?", target)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count disputes: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "phase"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var disputes []models.Dispute
	if err := query.Find(&disputes).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch disputes: %w", err)
	}

	return disputes, total, nil
}
