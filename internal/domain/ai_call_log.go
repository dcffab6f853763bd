package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AICallLog records every gateway invocation for cost and latency auditing.
type AICallLog struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OrganizationID *uuid.UUID     `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	ContentItemID  *uuid.UUID     `gorm:"type:uuid;index" json:"content_item_id,omitempty"`
	CallType       string         `gorm:"column:call_type;not null;index" json:"call_type"`
	Model          string         `gorm:"column:model;not null" json:"model"`
	Success        bool           `gorm:"column:success;not null" json:"success"`
	Error          string         `gorm:"column:error" json:"error,omitempty"`
	Usage          datatypes.JSON `gorm:"column:usage;type:jsonb" json:"usage,omitempty"`
	LatencyMS      int64          `gorm:"column:latency_ms;not null;default:0" json:"latency_ms"`
	CreatedAt      time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (AICallLog) TableName() string { return "ai_call_log" }
