package domain

import (
	"time"

	"github.com/google/uuid"
)

// BypassSettings is the per-organization auto-bypass configuration.
// Threshold is stored normalized to [0,1]; nil disables auto-bypass entirely
// and forces both action booleans false.
type BypassSettings struct {
	ID                     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OrganizationID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"organization_id"`
	Threshold              *float64  `gorm:"column:threshold" json:"threshold,omitempty"`
	AutoCloseCompliant     bool      `gorm:"column:auto_close_compliant;not null;default:false" json:"auto_close_compliant"`
	AutoRemediateViolation bool      `gorm:"column:auto_remediate_violation;not null;default:false" json:"auto_remediate_violation"`
	CreatedAt              time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt              time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (BypassSettings) TableName() string { return "bypass_settings" }

// Enabled reports whether any auto-resolution can happen at all.
func (s *BypassSettings) Enabled() bool {
	return s != nil && s.Threshold != nil
}
