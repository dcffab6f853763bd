package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

// ContentItem is one piece of already-acquired marketing content. Capture
// (crawling, frame extraction, transcription) happens upstream; the scanner
// only reads.
type ContentItem struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OrganizationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"organization_id"`
	AdvertiserID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"advertiser_id"`
	Platform       string         `gorm:"column:platform;not null;index" json:"platform"`
	Title          string         `gorm:"column:title" json:"title"`
	Caption        string         `gorm:"column:caption" json:"caption"`
	Transcript     string         `gorm:"column:transcript" json:"transcript"`
	Media          []ContentMedia `gorm:"foreignKey:ContentItemID" json:"media,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ContentItem) TableName() string { return "content_item" }

// ContentMedia references a stored image or video. Position is the stable
// index the pipeline uses to tie mentions back to their originating media.
type ContentMedia struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ContentItemID uuid.UUID `gorm:"type:uuid;not null;index" json:"content_item_id"`
	MediaType     string    `gorm:"column:media_type;not null" json:"media_type"`
	Location      string    `gorm:"column:location;not null" json:"location"`
	Position      int       `gorm:"column:position;not null;default:0" json:"position"`
	CreatedAt     time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ContentMedia) TableName() string { return "content_media" }
