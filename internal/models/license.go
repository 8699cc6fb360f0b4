// internal/models/license.go
package models

import (
	"time"
)

// LicenseTerms is an immutable, content-addressed rule set. TermsID is
// derived from the field contents, so registering identical terms twice
// yields the same id. Rows are never updated after creation.
type LicenseTerms struct {
	BaseModel
	TermsID string `json:"terms_id" gorm:"size:66;not null;uniqueIndex"`

	Transferable  bool    `json:"transferable" gorm:"not null"`
	RoyaltyPolicy Address `json:"royalty_policy" gorm:"size:42;not null"`
	MintingFee    Uint256 `json:"minting_fee" gorm:"type:numeric(78,0);not null"`

	// Duration in seconds applied at mint time; zero means the minted
	// license tokens never expire.
	Expiration uint64 `json:"expiration" gorm:"not null;default:0"`

	CommercialUse         bool    `json:"commercial_use" gorm:"not null"`
	CommercialRevShare    uint32  `json:"commercial_rev_share" gorm:"not null;default:0"`
	DerivativesAllowed    bool    `json:"derivatives_allowed" gorm:"not null"`
	DerivativesApproval   bool    `json:"derivatives_approval" gorm:"not null;default:false"`
	CommercializerChecker Address `json:"commercializer_checker,omitempty" gorm:"size:42"`

	Currency Address `json:"currency" gorm:"size:42;not null"`
	URI      string  `json:"uri" gorm:"type:text"`
}

// LicenseAttachment records a (license terms, IP) pair. Attachment is
// idempotent per pair and forbidden once the IP is a derivative.
type LicenseAttachment struct {
	BaseModel
	IPAccount Address `json:"ip_account" gorm:"size:42;not null;index:idx_license_attachments,unique"`
	TermsID   string  `json:"terms_id" gorm:"size:66;not null;index:idx_license_attachments,unique"`
}

// LicensingConfig overrides minting behavior at the IP level
// (TermsID == "") or per attached terms; the terms-level record wins.
type LicensingConfig struct {
	BaseModel
	IPAccount Address `json:"ip_account" gorm:"size:42;not null;index:idx_licensing_configs,unique"`
	TermsID   string  `json:"terms_id" gorm:"size:66;not null;default:'';index:idx_licensing_configs,unique"`

	MintingFeeSet bool    `json:"minting_fee_set" gorm:"default:false"`
	MintingFee    Uint256 `json:"minting_fee" gorm:"type:numeric(78,0)"`

	LicensingHook      Address `json:"licensing_hook,omitempty" gorm:"size:42"`
	HookData           JSONB   `json:"hook_data,omitempty" gorm:"type:jsonb"`
	CommercialRevShare uint32  `json:"commercial_rev_share" gorm:"default:0"`
	Disabled           bool    `json:"disabled" gorm:"default:false"`

	ExpectGroupRewardPool Address `json:"expect_group_reward_pool,omitempty" gorm:"size:42"`
}

// LicenseToken is a transferable, burn-on-use credential. Transferability
// and expiry are snapshotted from the terms at mint time; terms are
// immutable so the snapshot never drifts.
type LicenseToken struct {
	TokenID   uint64    `json:"token_id" gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	LicensorIPID Address `json:"licensor_ip_id" gorm:"size:42;not null;index"`
	TermsID      string  `json:"terms_id" gorm:"size:66;not null"`
	Holder       Address `json:"holder" gorm:"size:42;not null;index"`
	Transferable bool    `json:"transferable" gorm:"not null"`

	MintedAt  time.Time  `json:"minted_at" gorm:"not null"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	Burned bool `json:"burned" gorm:"default:false;index"`
}

func (t *LicenseToken) ExpiredAt(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// DerivativeEdge is one write-once parent link of a derivative IP, carrying
// the royalty policy and percentage negotiated at registration time.
type DerivativeEdge struct {
	BaseModel
	ChildIPID  Address `json:"child_ip_id" gorm:"size:42;not null;index:idx_derivative_edges,unique"`
	ParentIPID Address `json:"parent_ip_id" gorm:"size:42;not null;index:idx_derivative_edges,unique"`
	TermsID    string  `json:"terms_id" gorm:"size:66;not null"`

	RoyaltyPolicy Address `json:"royalty_policy" gorm:"size:42;not null"`
	Percent       uint32  `json:"percent" gorm:"not null"`
}

// AncestorEdge is one row of the incrementally-maintained transitive
// ancestor closure, written when the derivative link is created. The
// licensing and royalty engines only ever read this index.
type AncestorEdge struct {
	BaseModel
	IPID       Address `json:"ip_id" gorm:"size:42;not null;index:idx_ancestor_edges,unique"`
	AncestorID Address `json:"ancestor_id" gorm:"size:42;not null;index:idx_ancestor_edges,unique"`
}
