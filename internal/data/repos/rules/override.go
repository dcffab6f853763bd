package rules

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

type RuleOverrideRepo interface {
	Create(dbc dbctx.Context, row *domain.RuleOverride) error
	GetByProductID(dbc dbctx.Context, productID uuid.UUID) ([]*domain.RuleOverride, error)
}

type ruleOverrideRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRuleOverrideRepo(db *gorm.DB, baseLog *logger.Logger) RuleOverrideRepo {
	return &ruleOverrideRepo{db: db, log: baseLog.With("repo", "RuleOverrideRepo")}
}

func (r *ruleOverrideRepo) Create(dbc dbctx.Context, row *domain.RuleOverride) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).Create(row).Error
}

func (r *ruleOverrideRepo) GetByProductID(dbc dbctx.Context, productID uuid.UUID) ([]*domain.RuleOverride, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*domain.RuleOverride
	if productID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
