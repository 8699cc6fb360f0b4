// internal/models/account.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// IPAccount is the programmable identity bound one-to-one to a
// (chain, token contract, token id) triple. The derived Address is the
// protocol-wide id of the IP asset; Owner tracks the bound token's current
// holder and is the only mutable identity field.
type IPAccount struct {
	BaseModel
	Address       Address `json:"address" gorm:"size:42;not null;uniqueIndex"`
	ChainID       uint64  `json:"chain_id" gorm:"not null"`
	TokenContract Address `json:"token_contract" gorm:"size:42;not null;index:idx_ip_accounts_token,unique"`
	TokenID       string  `json:"token_id" gorm:"size:78;not null;index:idx_ip_accounts_token,unique"`
	Owner         Address `json:"owner" gorm:"size:42;not null;index"`

	// Group IPs route vault shares and rewards to a pool instead of Owner.
	IsGroup    bool    `json:"is_group" gorm:"default:false"`
	RewardPool Address `json:"reward_pool,omitempty" gorm:"size:42"`

	// Effective expiration, propagated from parents at link time. Zero means
	// no expiration.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// Count of currently-successful disputes; the IP is tagged while > 0.
	ActiveDisputes int `json:"active_disputes" gorm:"default:0"`
}

func (ip *IPAccount) Tagged() bool {
	return ip.ActiveDisputes > 0
}

func (ip *IPAccount) Expired(now time.Time) bool {
	return ip.ExpiresAt != nil && now.After(*ip.ExpiresAt)
}

// Module is an entry in the module registry. Only registered modules (and
// the registries themselves) may write account storage, and cross-account
// calls must target or originate from a registered module.
type Module struct {
	BaseModel
	Address      Address   `json:"address" gorm:"size:42;not null;uniqueIndex"`
	Name         string    `json:"name" gorm:"size:100;not null;uniqueIndex"`
	RegisteredBy uuid.UUID `json:"registered_by" gorm:"type:uuid"`

	// Function selectors the module exposes, informational only. The
	// permission engine never consults this list.
	Selectors pq.StringArray `json:"selectors,omitempty" gorm:"type:text[]"`
}

// StorageEntry is one row of the namespaced per-account key/value store.
// Namespace is the writing module's address; reads are unrestricted.
type StorageEntry struct {
	BaseModel
	IPAccount Address `json:"ip_account" gorm:"size:42;not null;index:idx_storage_entry,unique"`
	Namespace Address `json:"namespace" gorm:"size:42;not null;index:idx_storage_entry,unique"`
	Key       string  `json:"key" gorm:"size:255;not null;index:idx_storage_entry,unique"`
	Value     []byte  `json:"value" gorm:"type:bytea"`
}
