// internal/services/graph_service.go
package services

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/ipnexus/ipnexus-backend/internal/models"
)

// GraphService is the ancestor-relationship index. The closure is written
// incrementally when a derivative links to its parents; queries never
// traverse the graph. The licensing and royalty engines treat its answers
// as authoritative.
type GraphService struct {
	db *gorm.DB
}

func NewGraphService(db *gorm.DB) *GraphService {
	return &GraphService{db: db}
}

// addParentIPs records the child's parent set and extends the transitive
// closure with every ancestor reachable through those parents. Must run
// inside the linking transaction.
func (s *GraphService) addParentIPs(tx *gorm.DB, child models.Address, parents []models.Address) error {
	ancestors, err := s.ancestorSetFor(tx, parents)
	if err != nil {
		return err
	}

	for ancestor := range ancestors {
		edge := models.AncestorEdge{IPID: child, AncestorID: ancestor}
		if err := tx.Create(&edge).Error; err != nil {
			return fmt.Errorf("failed to extend ancestor closure: %w", err)
		}
	}
	return nil
}

// ancestorSetFor computes the ancestor set a child would have after linking
// to the given parents, without writing anything.
func (s *GraphService) ancestorSetFor(tx *gorm.DB, parents []models.Address) (map[models.Address]struct{}, error) {
	ancestors := make(map[models.Address]struct{})
	for _, parent := range parents {
		ancestors[parent] = struct{}{}

		var rows []models.AncestorEdge
		if err := tx.Where("ip_id = ?", parent).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to read ancestor closure: %w", err)
		}
		for _, row := range rows {
			ancestors[row.AncestorID] = struct{}{}
		}
	}
	return ancestors, nil
}

func (s *GraphService) GetAncestorCount(ipID models.Address) (int, error) {
	return ancestorCount(s.db, ipID)
}

func ancestorCount(tx *gorm.DB, ipID models.Address) (int, error) {
	var count int64
	if err := tx.Model(&models.AncestorEdge{}).Where("ip_id = ?", ipID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count ancestors: %w", err)
	}
	return int(count), nil
}

func (s *GraphService) HasAncestorIP(ipID, candidate models.Address) (bool, error) {
	var count int64
	if err := s.db.Model(&models.AncestorEdge{}).
		Where("ip_id = ? AND ancestor_id = ?", ipID, candidate).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to query ancestor closure: %w", err)
	}
	return count > 0, nil
}

func (s *GraphService) IsParentIP(parent, child models.Address) (bool, error) {
	var count int64
	if err := s.db.Model(&models.DerivativeEdge{}).
		Where("child_ip_id = ? AND parent_ip_id = ?", child, parent).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to query parent edges: %w", err)
	}
	return count > 0, nil
}

func (s *GraphService) GetParents(ipID models.Address) ([]models.DerivativeEdge, error) {
	var edges []models.DerivativeEdge
	if err := s.db.Where("child_ip_id = ?", ipID).Order("parent_ip_id").Find(&edges).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch parent edges: %w", err)
	}
	return edges, nil
}

func (s *GraphService) GetChildren(ipID models.Address) ([]models.DerivativeEdge, error) {
	var edges []models.DerivativeEdge
	if err := s.db.Where("parent_ip_id = ?", ipID).Order("child_ip_id").Find(&edges).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch child edges: %w", err)
	}
	return edges, nil
}

func hasParents(tx *gorm.DB, ipID models.Address) bool {
	var count int64
	tx.Model(&models.DerivativeEdge{}).Where("child_ip_id = ?", ipID).Count(&count)
	return count > 0
}
