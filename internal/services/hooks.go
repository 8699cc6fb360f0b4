// internal/services/hooks.go
package services

import (
	"fmt"
	"sync"

	"github.com/ipnexus/ipnexus-backend/internal/models"
)

// MintContext carries the inputs a licensing hook may inspect when a mint
// is about to happen. Hooks run synchronously inside the mint operation
// and abort it by returning an error.
type MintContext struct {
	LicensorIPID models.Address
	TermsID      string
	Caller       models.Address
	Receiver     models.Address
	Amount       int
	// Per-token fee resolved from config/terms before the hook runs.
	Fee      models.Uint256
	HookData models.JSONB
}

// LicensingHook prices or vetoes a license-token mint. The returned fee
// replaces the configured per-token fee.
type LicensingHook interface {
	BeforeMintLicenseTokens(ctx *MintContext) (models.Uint256, error)
}

// CommercializerChecker gates who may receive commercial license tokens.
type CommercializerChecker interface {
	CheckCommercializer(receiver models.Address) error
}

// HookRegistry maps hook addresses to in-process implementations. It is
// the only component with process-local mutable state, hence the lock.
type HookRegistry struct {
	mu       sync.RWMutex
	hooks    map[models.Address]LicensingHook
	checkers map[models.Address]CommercializerChecker
}

func NewHookRegistry() *HookRegistry {
	return &HookRegistry{
		hooks:    make(map[models.Address]LicensingHook),
		checkers: make(map[models.Address]CommercializerChecker),
	}
}

func (r *HookRegistry) RegisterHook(address models.Address, hook LicensingHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[address] = hook
}

func (r *HookRegistry) RegisterChecker(address models.Address, checker CommercializerChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[address] = checker
}

func (r *HookRegistry) Hook(address models.Address) (LicensingHook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hook, ok := r.hooks[address]
	if !ok {
		return nil, fmt.Errorf("licensing hook %s is not registered", address)
	}
	return hook, nil
}

func (r *HookRegistry) Checker(address models.Address) (CommercializerChecker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	checker, ok := r.checkers[address]
	if !ok {
		return nil, fmt.Errorf("commercializer checker %s is not registered", address)
	}
	return checker, nil
}

// FixedFeeHook overrides the configured minting fee with a flat per-token
// fee.
type FixedFeeHook struct {
	Fee models.Uint256
}

func (h *FixedFeeHook) BeforeMintLicenseTokens(ctx *MintContext) (models.Uint256, error) {
	return h.Fee, nil
}

// AllowlistChecker admits only pre-approved commercializer addresses.
type AllowlistChecker struct {
	Allowed map[models.Address]bool
}

func (c *AllowlistChecker) CheckCommercializer(receiver models.Address) error {
	if !c.Allowed[receiver] {
		return fmt.Errorf("receiver %s is not an approved commercializer", receiver)
	}
	return nil
}
