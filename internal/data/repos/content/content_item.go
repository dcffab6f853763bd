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

type ContentItemRepo interface {
	Create(dbc dbctx.Context, row *domain.ContentItem) error
	// GetByID preloads media ordered by position so media indexes carried in
	// mentions stay stable. A missing row is apperr.ErrNotFound, never
	// (nil, nil).
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.ContentItem, error)
}

type contentItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContentItemRepo(db *gorm.DB, baseLog *logger.Logger) ContentItemRepo {
	return &contentItemRepo{db: db, log: baseLog.With("repo", "ContentItemRepo")}
}

func (r *contentItemRepo) Create(dbc dbctx.Context, row *domain.ContentItem) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).Create(row).Error
}

func (r *contentItemRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.ContentItem, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, fmt.Errorf("content item: %w", apperr.ErrNotFound)
	}
	var row domain.ContentItem
	err := t.WithContext(dbc.Ctx).
		Preload("Media", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, fmt.Errorf("content item %s: %w", id, apperr.ErrNotFound)
	}
	return &row, nil
}
