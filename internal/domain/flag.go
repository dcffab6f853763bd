package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Flag statuses.
const (
	FlagStatusPending     = "pending"
	FlagStatusRemediating = "remediating"
	FlagStatusClosed      = "closed"
)

// AI rulings.
const (
	RulingCompliant = "compliant"
	RulingViolation = "violation"
)

// Resolution methods. Non-empty only when the auto-bypass engine resolved the
// flag; human review writes the manual methods (out of core scope).
const (
	ResolutionAIAutoClose     = "ai_auto_close"
	ResolutionAIAutoRemediate = "ai_auto_remediate"
	ResolutionManualClose     = "manual_close"
	ResolutionManualRemediate = "manual_remediate"
)

// Flag is a persisted compliance finding. RuleVersionApplied never changes
// after creation even if the rule is later revised.
type Flag struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OrganizationID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"organization_id"`
	ContentItemID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"content_item_id"`
	RuleID             uuid.UUID      `gorm:"type:uuid;not null;index" json:"rule_id"`
	RuleVersionApplied string         `gorm:"column:rule_version_applied;not null" json:"rule_version_applied"`
	RuleScope          string         `gorm:"column:rule_scope;not null" json:"rule_scope"`
	ProductID          *uuid.UUID     `gorm:"type:uuid;index" json:"product_id,omitempty"`
	SourceLocation     string         `gorm:"column:source_location;not null" json:"source_location"`
	Context            string         `gorm:"column:context" json:"context"`
	Confidence         float64        `gorm:"column:confidence;not null" json:"confidence"`
	Ruling             string         `gorm:"column:ruling;not null" json:"ruling"`
	AIReasoning        string         `gorm:"column:ai_reasoning" json:"ai_reasoning"`
	Status             string         `gorm:"column:status;not null;index" json:"status"`
	ResolutionMethod   *string        `gorm:"column:resolution_method;index" json:"resolution_method,omitempty"`
	HumanVerdict       *string        `gorm:"column:human_verdict" json:"human_verdict,omitempty"`
	HumanReviewerID    *uuid.UUID     `gorm:"type:uuid;column:human_reviewer_id" json:"human_reviewer_id,omitempty"`
	CreatedAt          time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Flag) TableName() string { return "flag" }

// AutoResolved reports whether the flag still carries an unmodified AI
// auto-resolution. Reverts only ever target these.
func (f *Flag) AutoResolved() bool {
	if f == nil || f.ResolutionMethod == nil {
		return false
	}
	switch *f.ResolutionMethod {
	case ResolutionAIAutoClose, ResolutionAIAutoRemediate:
		return true
	default:
		return false
	}
}

// FlagProposal is the evaluator's transient output: one candidate ruling for
// one mention against one applicable rule, before bypass decisioning.
type FlagProposal struct {
	RuleID      uuid.UUID `json:"rule_id"`
	RuleVersion string    `json:"rule_version"`
	RuleScope   string    `json:"rule_scope"`
	Ruling      string    `json:"ruling"`
	Confidence  float64   `json:"confidence"`
	Reasoning   string    `json:"reasoning"`
}
