// internal/models/dispute.go
package models

import (
	"github.com/google/uuid"
)

// Dispute is one dispute record against a target IP. An IP is tagged while
// it has at least one judged-true, unresolved dispute (counter semantics on
// IPAccount.ActiveDisputes).
type Dispute struct {
	BaseModel
	TargetIPID        Address      `json:"target_ip_id" gorm:"size:42;not null;index"`
	Initiator         Address      `json:"initiator" gorm:"size:42;not null;index"`
	ArbitrationPolicy Address      `json:"arbitration_policy" gorm:"size:42;not null"`
	EvidenceHash      string       `json:"evidence_hash" gorm:"size:66;not null"`
	TargetTag         string       `json:"target_tag" gorm:"size:32;not null"`
	CurrentTag        string       `json:"current_tag" gorm:"size:32"`
	Phase             DisputePhase `json:"phase" gorm:"type:varchar(20);not null;default:'raised';index"`

	// Set when this dispute was propagated onto a derivative from an
	// ancestor's active dispute.
	ParentDisputeID *uuid.UUID `json:"parent_dispute_id,omitempty" gorm:"type:uuid"`
}

func (d *Dispute) Active() bool {
	return d.Phase == DisputePhaseJudged && d.CurrentTag != ""
}
