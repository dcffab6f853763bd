package rules

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/apperr"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

type RuleSetRepo interface {
	Create(dbc dbctx.Context, row *domain.RuleSet) error
	AddRule(dbc dbctx.Context, setID, ruleID uuid.UUID) error
	// GetByID returns apperr.ErrNotFound for a missing row, never (nil, nil).
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.RuleSet, error)
}

type ruleSetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRuleSetRepo(db *gorm.DB, baseLog *logger.Logger) RuleSetRepo {
	return &ruleSetRepo{db: db, log: baseLog.With("repo", "RuleSetRepo")}
}

func (r *ruleSetRepo) Create(dbc dbctx.Context, row *domain.RuleSet) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).Create(row).Error
}

func (r *ruleSetRepo) AddRule(dbc dbctx.Context, setID, ruleID uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if setID == uuid.Nil || ruleID == uuid.Nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).Create(&domain.RuleSetRule{
		RuleSetID: setID,
		RuleID:    ruleID,
	}).Error
}

func (r *ruleSetRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.RuleSet, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, fmt.Errorf("rule set: %w", apperr.ErrNotFound)
	}
	var row domain.RuleSet
	err := t.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, fmt.Errorf("rule set %s: %w", id, apperr.ErrNotFound)
	}
	return &row, nil
}
