// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Address is a lowercase 0x-prefixed 20-byte hex address. Protocol entities
// (IP accounts, modules, policies, tokens, vaults) are all addressed this way.
type Address string

const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

var addressPattern = regexp.MustCompile("^0x[0-9a-f]{40}$")

func NormalizeAddress(s string) Address {
	return Address(strings.ToLower(strings.TrimSpace(s)))
}

func (a Address) IsZero() bool {
	return a == "" || a == ZeroAddress
}

func (a Address) Valid() bool {
	return addressPattern.MatchString(string(a))
}

func (a Address) String() string {
	return string(a)
}

// Selector is a 0x-prefixed 4-byte function selector. The zero selector
// denotes "any function" in permission entries.
type Selector string

const ZeroSelector Selector = "0x00000000"

var selectorPattern = regexp.MustCompile("^0x[0-9a-f]{8}$")

func NormalizeSelector(s string) Selector {
	sel := Selector(strings.ToLower(strings.TrimSpace(s)))
	if sel == "" {
		return ZeroSelector
	}
	return sel
}

func (s Selector) IsZero() bool {
	return s == "" || s == ZeroSelector
}

func (s Selector) Valid() bool {
	return selectorPattern.MatchString(string(s))
}

// Uint256 wraps holiman/uint256 for token amounts, stored as numeric(78,0).
type Uint256 struct {
	uint256.Int
}

func NewUint256(v uint64) Uint256 {
	var u Uint256
	u.SetUint64(v)
	return u
}

func ParseUint256(s string) (Uint256, error) {
	var u Uint256
	if s == "" {
		return u, nil
	}
	i, err := uint256.FromDecimal(s)
	if err != nil {
		return u, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	u.Set(i)
	return u, nil
}

func (u Uint256) Value() (driver.Value, error) {
	return u.Dec(), nil
}

func (u *Uint256) Scan(value interface{}) error {
	if value == nil {
		u.Clear()
		return nil
	}

	var s string
	switch v := value.(type) {
	case []byte:
		s = string(v)
	case string:
		s = v
	case int64:
		u.SetUint64(uint64(v))
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Uint256", value)
	}

	i, err := uint256.FromDecimal(s)
	if err != nil {
		return err
	}
	u.Set(i)
	return nil
}

func (u Uint256) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.Dec())
}

func (u *Uint256) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseUint256(s)
	if err != nil {
		return err
	}
	u.Set(&parsed.Int)
	return nil
}

func (u Uint256) GormDataType() string {
	return "numeric(78,0)"
}

// Protocol-wide fixed-point percentage denominator: 100_000_000 == 100%.
const MaxPercent uint32 = 100_000_000

// Royalty vault share supply; one share unit per percentage unit.
const VaultTotalShares uint64 = uint64(MaxPercent)

// Enums
type UserType string

const (
	UserTypeOperator UserType = "operator"
	UserTypeAdmin    UserType = "admin"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

// Permission levels for the layered access-control table. Absence of an
// entry is equivalent to abstain.
type PermissionLevel uint8

const (
	PermissionAbstain PermissionLevel = 0
	PermissionAllow   PermissionLevel = 1
	PermissionDeny    PermissionLevel = 2
)

func (p PermissionLevel) Valid() bool {
	return p <= PermissionDeny
}

type DisputePhase string

const (
	DisputePhaseRaised    DisputePhase = "raised"
	DisputePhaseJudged    DisputePhase = "judged"
	DisputePhaseCancelled DisputePhase = "cancelled"
	DisputePhaseResolved  DisputePhase = "resolved"
)

type PolicyKind string

const (
	// Whitelisted policies are actively called back into by the royalty
	// engine for stack accumulation.
	PolicyKindWhitelisted PolicyKind = "whitelisted"
	// External policies are trusted via interface-conformance registration
	// only; the engine never forwards accumulation calls to them.
	PolicyKindExternal PolicyKind = "external"
)
