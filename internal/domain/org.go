package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Organization struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name      string         `gorm:"column:name;not null" json:"name"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Organization) TableName() string { return "organization" }

// Advertiser owns products and the default rule sets seeded into resolution.
// The three default set references are nullable; an advertiser without them
// simply contributes nothing at the default layer.
type Advertiser struct {
	ID                      uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OrganizationID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"organization_id"`
	Name                    string         `gorm:"column:name;not null" json:"name"`
	DefaultProductRuleSetID *uuid.UUID     `gorm:"type:uuid;column:default_product_rule_set_id" json:"default_product_rule_set_id,omitempty"`
	DefaultChannelRuleSetID *uuid.UUID     `gorm:"type:uuid;column:default_channel_rule_set_id" json:"default_channel_rule_set_id,omitempty"`
	GlobalRuleSetID         *uuid.UUID     `gorm:"type:uuid;column:global_rule_set_id" json:"global_rule_set_id,omitempty"`
	CreatedAt               time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt               time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt               gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Advertiser) TableName() string { return "advertiser" }

type Product struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	AdvertiserID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"advertiser_id"`
	Name           string         `gorm:"column:name;not null" json:"name"`
	AnnualFee      string         `gorm:"column:annual_fee" json:"annual_fee,omitempty"`
	FeatureBullets datatypes.JSON `gorm:"column:feature_bullets;type:jsonb" json:"feature_bullets,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Product) TableName() string { return "product" }
