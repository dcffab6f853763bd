package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReviewExample is a human-reviewed precedent the librarian serves back to
// the evaluator when the model asks for help on a rule.
type ReviewExample struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OrganizationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"organization_id"`
	RuleID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"rule_id"`
	RuleVersion    string         `gorm:"column:rule_version;not null" json:"rule_version"`
	ContentSnippet string         `gorm:"column:content_snippet;not null" json:"content_snippet"`
	HumanVerdict   string         `gorm:"column:human_verdict;not null" json:"human_verdict"`
	ReviewerNotes  string         `gorm:"column:reviewer_notes" json:"reviewer_notes,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ReviewExample) TableName() string { return "review_example" }
