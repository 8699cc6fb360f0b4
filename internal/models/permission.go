// internal/models/permission.go
package models

// Permission is one entry of the layered access-control table, keyed by
// (ip_account, signer, to, func). Wildcards: To == ZeroAddress and/or
// Func == ZeroSelector denote "any". Keying is owner-exclusive: entries
// survive ownership transfer of the bound token and must be revoked
// explicitly.
type Permission struct {
	BaseModel
	IPAccount Address         `json:"ip_account" gorm:"size:42;not null;index:idx_permissions_key,unique"`
	Signer    Address         `json:"signer" gorm:"size:42;not null;index:idx_permissions_key,unique"`
	To        Address         `json:"to" gorm:"size:42;not null;index:idx_permissions_key,unique"`
	Func      Selector        `json:"func" gorm:"size:10;not null;index:idx_permissions_key,unique"`
	Level     PermissionLevel `json:"level" gorm:"type:smallint;not null"`

	// Owner of the account when the entry was last written, for audit only.
	SetByOwner Address `json:"set_by_owner" gorm:"size:42"`
}
