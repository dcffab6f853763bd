package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Audit actions. Prefix queries rely on the dotted hierarchy.
const (
	AuditBypassSettingsUpdated = "bypass_settings.updated"
	AuditFlagAutoClosed        = "flag.auto_closed"
	AuditFlagAutoRemediated    = "flag.auto_remediated"
	AuditFlagReverted          = "flag.reverted"
	AuditFlagActionPrefix      = "flag."
)

// AuditLogEntry is append-only. TriggeringEventLogID links a flag mutation to
// the settings-change entry that caused it; that back-reference is the only
// mechanism the revert engine has.
type AuditLogEntry struct {
	ID                   uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OrganizationID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"organization_id"`
	Action               string         `gorm:"column:action;not null;index" json:"action"`
	Actor                string         `gorm:"column:actor;not null" json:"actor"`
	Detail               datatypes.JSON `gorm:"column:detail;type:jsonb" json:"detail,omitempty"`
	TriggeringEventLogID *uuid.UUID     `gorm:"type:uuid;column:triggering_event_log_id;index" json:"triggering_event_log_id,omitempty"`
	CreatedAt            time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (AuditLogEntry) TableName() string { return "audit_log_entry" }
