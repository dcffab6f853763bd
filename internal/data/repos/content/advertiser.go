package content

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/apperr"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

type AdvertiserRepo interface {
	Create(dbc dbctx.Context, row *domain.Advertiser) error
	// GetByID returns apperr.ErrNotFound for a missing row, never (nil, nil).
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Advertiser, error)
	UpdateDefaults(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error
}

type advertiserRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAdvertiserRepo(db *gorm.DB, baseLog *logger.Logger) AdvertiserRepo {
	return &advertiserRepo{db: db, log: baseLog.With("repo", "AdvertiserRepo")}
}

func (r *advertiserRepo) Create(dbc dbctx.Context, row *domain.Advertiser) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).Create(row).Error
}

func (r *advertiserRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Advertiser, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, fmt.Errorf("advertiser: %w", apperr.ErrNotFound)
	}
	var row domain.Advertiser
	err := t.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, fmt.Errorf("advertiser %s: %w", id, apperr.ErrNotFound)
	}
	return &row, nil
}

func (r *advertiserRepo) UpdateDefaults(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).
		Model(&domain.Advertiser{}).
		Where("id = ?", id).
		Updates(updates).Error
}
