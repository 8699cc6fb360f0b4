// internal/models/royalty.go
package models

import (
	"time"
)

// RoyaltyVault is the fixed-supply share ledger deployed lazily per IP on
// its first licensing or linking event. Share supply is constant after
// deployment; only balances move.
type RoyaltyVault struct {
	BaseModel
	IPID    Address `json:"ip_id" gorm:"size:42;not null;uniqueIndex"`
	Address Address `json:"address" gorm:"size:42;not null;uniqueIndex"`

	LastSnapshotAt *time.Time `json:"last_snapshot_at,omitempty"`
}

// VaultShareBalance tracks royalty-vault share holdings. The sum over all
// holders of one vault always equals VaultTotalShares.
type VaultShareBalance struct {
	BaseModel
	IPID   Address `json:"ip_id" gorm:"size:42;not null;index:idx_vault_share_balances,unique"`
	Holder Address `json:"holder" gorm:"size:42;not null;index:idx_vault_share_balances,unique"`
	Shares uint64  `json:"shares" gorm:"not null;default:0"`
}

// VaultPendingBalance is revenue received by a vault since the last
// snapshot, per payment token.
type VaultPendingBalance struct {
	BaseModel
	IPID   Address `json:"ip_id" gorm:"size:42;not null;index:idx_vault_pending,unique"`
	Token  Address `json:"token" gorm:"size:42;not null;index:idx_vault_pending,unique"`
	Amount Uint256 `json:"amount" gorm:"type:numeric(78,0);not null"`
}

// VaultSnapshot freezes pending balances for pro-rata claiming. Snapshots
// are interval-gated per vault.
type VaultSnapshot struct {
	SnapshotID uint64    `json:"snapshot_id" gorm:"primaryKey;autoIncrement"`
	CreatedAt  time.Time `json:"created_at"`
	IPID       Address   `json:"ip_id" gorm:"size:42;not null;index"`
	TakenAt    time.Time `json:"taken_at" gorm:"not null"`
}

type SnapshotAmount struct {
	BaseModel
	SnapshotID uint64  `json:"snapshot_id" gorm:"not null;index:idx_snapshot_amounts,unique"`
	Token      Address `json:"token" gorm:"size:42;not null;index:idx_snapshot_amounts,unique"`
	Amount     Uint256 `json:"amount" gorm:"type:numeric(78,0);not null"`
}

// SnapshotClaim marks a holder's claim of one (snapshot, token) slice;
// claiming is once-only per slice.
type SnapshotClaim struct {
	BaseModel
	SnapshotID uint64  `json:"snapshot_id" gorm:"not null;index:idx_snapshot_claims,unique"`
	Token      Address `json:"token" gorm:"size:42;not null;index:idx_snapshot_claims,unique"`
	Claimer    Address `json:"claimer" gorm:"size:42;not null;index:idx_snapshot_claims,unique"`
	Amount     Uint256 `json:"amount" gorm:"type:numeric(78,0);not null"`
}

// RoyaltyPolicyRecord registers a royalty policy address as either
// whitelisted (engine calls back into it) or external (interface
// conformance trusted at registration only).
type RoyaltyPolicyRecord struct {
	BaseModel
	Address Address    `json:"address" gorm:"size:42;not null;uniqueIndex"`
	Kind    PolicyKind `json:"kind" gorm:"type:varchar(20);not null"`
	Name    string     `json:"name" gorm:"size:100"`
}

// AccumulatedPolicy is one member of an IP's inherited royalty-policy set,
// built transitively from its parents at link time.
type AccumulatedPolicy struct {
	BaseModel
	IPID   Address `json:"ip_id" gorm:"size:42;not null;index:idx_accumulated_policies,unique"`
	Policy Address `json:"policy" gorm:"size:42;not null;index:idx_accumulated_policies,unique"`
}

// RoyaltyStack records the global percentage obligation of an IP to its
// whitelisted ancestor policies, fixed at link time and bounded by
// MaxPercent.
type RoyaltyStack struct {
	BaseModel
	IPID    Address `json:"ip_id" gorm:"size:42;not null;uniqueIndex"`
	Percent uint32  `json:"percent" gorm:"not null"`
}

// PolicyStack is the per-policy accumulated royalty stack maintained by
// whitelisted (LAP-style) policies.
type PolicyStack struct {
	BaseModel
	Policy  Address `json:"policy" gorm:"size:42;not null;index:idx_policy_stacks,unique"`
	IPID    Address `json:"ip_id" gorm:"size:42;not null;index:idx_policy_stacks,unique"`
	Percent uint32  `json:"percent" gorm:"not null"`
}

// LifetimeRevenue is the running post-fee total received per (IP, token),
// incremented on every routed payment regardless of the split.
type LifetimeRevenue struct {
	BaseModel
	IPID   Address `json:"ip_id" gorm:"size:42;not null;index:idx_lifetime_revenues,unique"`
	Token  Address `json:"token" gorm:"size:42;not null;index:idx_lifetime_revenues,unique"`
	Amount Uint256 `json:"amount" gorm:"type:numeric(78,0);not null"`
}

// WhitelistedToken marks a payment token the royalty engine accepts.
type WhitelistedToken struct {
	BaseModel
	Address Address `json:"address" gorm:"size:42;not null;uniqueIndex"`
	Symbol  string  `json:"symbol" gorm:"size:20"`
}

// TokenBalance is the payment-token ledger the royalty engine settles
// against: treasury fees, policy payouts and vault credits all move rows
// here.
type TokenBalance struct {
	BaseModel
	Token  Address `json:"token" gorm:"size:42;not null;index:idx_token_balances,unique"`
	Holder Address `json:"holder" gorm:"size:42;not null;index:idx_token_balances,unique"`
	Amount Uint256 `json:"amount" gorm:"type:numeric(78,0);not null"`
}
