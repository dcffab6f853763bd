package rules

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

type RuleAssignmentRepo interface {
	Create(dbc dbctx.Context, row *domain.RuleSetAssignment) error
	// GetByProductID returns assignments ordered by position so the overlay
	// order during resolution is deterministic.
	GetByProductID(dbc dbctx.Context, productID uuid.UUID) ([]*domain.RuleSetAssignment, error)
}

type ruleAssignmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRuleAssignmentRepo(db *gorm.DB, baseLog *logger.Logger) RuleAssignmentRepo {
	return &ruleAssignmentRepo{db: db, log: baseLog.With("repo", "RuleAssignmentRepo")}
}

func (r *ruleAssignmentRepo) Create(dbc dbctx.Context, row *domain.RuleSetAssignment) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).Create(row).Error
}

func (r *ruleAssignmentRepo) GetByProductID(dbc dbctx.Context, productID uuid.UUID) ([]*domain.RuleSetAssignment, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*domain.RuleSetAssignment
	if productID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("product_id = ?", productID).
		Order("position ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
