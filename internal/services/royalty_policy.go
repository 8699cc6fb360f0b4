// internal/services/royalty_policy.go
package services

import (
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/ipnexus/ipnexus-backend/internal/models"
)

// RoyaltyPolicy is the callback surface of a whitelisted policy. The
// royalty engine forwards licensing and linking events so the policy can
// run its own stack accumulation, and asks it for the vault shares
// required to link and for an IP's current stack share.
type RoyaltyPolicy interface {
	Address() models.Address

	// OnLicenseMinting verifies the policy can still take another license
	// layer beneath the IP at the given percentage.
	OnLicenseMinting(tx *gorm.DB, ipID models.Address, percent uint32) error

	// RtsRequiredToLink computes the vault shares the policy claims when
	// the child links, given the direct edges routed through this policy.
	RtsRequiredToLink(tx *gorm.DB, child models.Address, parents []models.Address, edges []models.DerivativeEdge) (uint64, error)

	// OnLinkToParents commits the policy's accumulated stack for the child.
	OnLinkToParents(tx *gorm.DB, child models.Address, parents []models.Address, edges []models.DerivativeEdge) error

	// RoyaltyStack returns the IP's current stack share under this policy,
	// out of MaxPercent. Read live at payment time.
	RoyaltyStack(tx *gorm.DB, ipID models.Address) (uint32, error)
}

// PolicyRegistry holds the in-process implementations of whitelisted
// policies, keyed by policy address.
type PolicyRegistry struct {
	mu       sync.RWMutex
	policies map[models.Address]RoyaltyPolicy
}

func NewPolicyRegistry() *PolicyRegistry {
	return &PolicyRegistry{
		policies: make(map[models.Address]RoyaltyPolicy),
	}
}

func (r *PolicyRegistry) Register(policy RoyaltyPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[policy.Address()] = policy
}

func (r *PolicyRegistry) Get(address models.Address) (RoyaltyPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	policy, ok := r.policies[address]
	if !ok {
		return nil, fmt.Errorf("no implementation registered for whitelisted policy %s", address)
	}
	return policy, nil
}

// LAPPolicy is the built-in absolute-percentage policy: a child owes every
// ancestor the full negotiated percentage, so its stack is the sum of each
// parent edge's percentage plus that parent's own accumulated stack.
type LAPPolicy struct {
	address models.Address
}

func NewLAPPolicy(address models.Address) *LAPPolicy {
	return &LAPPolicy{address: address}
}

func (p *LAPPolicy) Address() models.Address {
	return p.address
}

func (p *LAPPolicy) OnLicenseMinting(tx *gorm.DB, ipID models.Address, percent uint32) error {
	stack, err := p.RoyaltyStack(tx, ipID)
	if err != nil {
		return err
	}

	// A further derivative layer must still fit under 100%.
	if uint64(stack)+uint64(percent) > uint64(models.MaxPercent) {
		return fmt.Errorf("%w: stack %d + license %d", ErrAboveMaxPercent, stack, percent)
	}
	return nil
}

func (p *LAPPolicy) accumulatedFor(tx *gorm.DB, parents []models.Address, edges []models.DerivativeEdge) (uint64, error) {
	var total uint64

	for _, edge := range edges {
		if edge.RoyaltyPolicy != p.address {
			continue
		}
		total += uint64(edge.Percent)
	}

	for _, parent := range parents {
		stack, err := p.RoyaltyStack(tx, parent)
		if err != nil {
			return 0, err
		}
		total += uint64(stack)
	}

	return total, nil
}

func (p *LAPPolicy) RtsRequiredToLink(tx *gorm.DB, child models.Address, parents []models.Address, edges []models.DerivativeEdge) (uint64, error) {
	return p.accumulatedFor(tx, parents, edges)
}

func (p *LAPPolicy) OnLinkToParents(tx *gorm.DB, child models.Address, parents []models.Address, edges []models.DerivativeEdge) error {
	total, err := p.accumulatedFor(tx, parents, edges)
	if err != nil {
		return err
	}

	if total > uint64(models.MaxPercent) {
		return fmt.Errorf("%w: accumulated LAP stack %d", ErrStackExceedsPercent, total)
	}

	entry := models.PolicyStack{
		Policy:  p.address,
		IPID:    child,
		Percent: uint32(total),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record policy stack: %w", err)
	}
	return nil
}

func (p *LAPPolicy) RoyaltyStack(tx *gorm.DB, ipID models.Address) (uint32, error) {
	var entry models.PolicyStack
	err := tx.Where("policy = ? AND ip_id = ?", p.address, ipID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("database error: %w", err)
	}
	return entry.Percent, nil
}
