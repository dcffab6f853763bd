package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RuleScopeProduct = "product"
	RuleScopeChannel = "channel"
)

const (
	OverrideInclude = "include"
	OverrideExclude = "exclude"
)

// Rule is a single compliance requirement. Rules are immutable once a flag
// pins their version; edits bump Version instead of mutating in place.
type Rule struct {
	ID                  uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OrganizationID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"organization_id"`
	Name                string         `gorm:"column:name;not null" json:"name"`
	Description         string         `gorm:"column:description" json:"description"`
	Scope               string         `gorm:"column:scope;not null;index" json:"scope"`
	Version             string         `gorm:"column:version;not null;default:'1'" json:"version"`
	BypassThreshold     *string        `gorm:"column:bypass_threshold" json:"bypass_threshold,omitempty"`
	ApplicablePlatforms datatypes.JSON `gorm:"column:applicable_platforms;type:jsonb" json:"applicable_platforms,omitempty"`
	CreatedAt           time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Rule) TableName() string { return "rule" }

// ThresholdValue parses the stored bypass threshold. ok is false when the
// threshold is absent, unparsable, or outside [0,1]; an unparsable value
// disables auto-bypass for this rule without failing resolution.
func (r *Rule) ThresholdValue() (float64, bool) {
	if r == nil || r.BypassThreshold == nil {
		return 0, false
	}
	raw := strings.TrimSpace(*r.BypassThreshold)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}

// HasThresholdField reports whether a threshold value is set at all,
// regardless of whether it parses. A set-but-invalid threshold disables
// auto-bypass for the rule instead of falling back to org settings.
func (r *Rule) HasThresholdField() bool {
	return r != nil && r.BypassThreshold != nil && strings.TrimSpace(*r.BypassThreshold) != ""
}

// PlatformList decodes the applicable-platform list. Empty means the rule
// applies on every platform.
func (r *Rule) PlatformList() []string {
	if r == nil || len(r.ApplicablePlatforms) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(r.ApplicablePlatforms, &out); err != nil {
		return nil
	}
	return out
}

// AppliesToPlatform applies channel-rule platform filtering. Product-scoped
// rules always apply.
func (r *Rule) AppliesToPlatform(platform string) bool {
	if r == nil {
		return false
	}
	if r.Scope != RuleScopeChannel {
		return true
	}
	list := r.PlatformList()
	if len(list) == 0 {
		return true
	}
	for _, p := range list {
		if strings.EqualFold(strings.TrimSpace(p), strings.TrimSpace(platform)) {
			return true
		}
	}
	return false
}

// RuleSet is a named, reusable bundle of rules of mixed scope.
type RuleSet struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OrganizationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"organization_id"`
	AdvertiserID   *uuid.UUID     `gorm:"type:uuid;index" json:"advertiser_id,omitempty"`
	Name           string         `gorm:"column:name;not null" json:"name"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (RuleSet) TableName() string { return "rule_set" }

type RuleSetRule struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RuleSetID uuid.UUID `gorm:"type:uuid;not null;index:idx_rule_set_rule,unique" json:"rule_set_id"`
	RuleID    uuid.UUID `gorm:"type:uuid;not null;index:idx_rule_set_rule,unique" json:"rule_id"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (RuleSetRule) TableName() string { return "rule_set_rule" }

// RuleSetAssignment attaches a reusable set to a product. Position fixes the
// overlay order so later assignments override earlier ones deterministically.
type RuleSetAssignment struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index" json:"product_id"`
	RuleSetID uuid.UUID `gorm:"type:uuid;not null;index" json:"rule_set_id"`
	Position  int       `gorm:"column:position;not null;default:0" json:"position"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (RuleSetAssignment) TableName() string { return "rule_set_assignment" }

// RuleOverride is a per-product include/exclude layered after set membership.
type RuleOverride struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index:idx_rule_override,unique" json:"product_id"`
	RuleID    uuid.UUID `gorm:"type:uuid;not null;index:idx_rule_override,unique" json:"rule_id"`
	Kind      string    `gorm:"column:kind;not null" json:"kind"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (RuleOverride) TableName() string { return "rule_override" }
