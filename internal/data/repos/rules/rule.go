package rules

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

type RuleRepo interface {
	Create(dbc dbctx.Context, rows []*domain.Rule) ([]*domain.Rule, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Rule, error)
	GetBySetID(dbc dbctx.Context, setID uuid.UUID) ([]*domain.Rule, error)
}

type ruleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRuleRepo(db *gorm.DB, baseLog *logger.Logger) RuleRepo {
	return &ruleRepo{db: db, log: baseLog.With("repo", "RuleRepo")}
}

func (r *ruleRepo) Create(dbc dbctx.Context, rows []*domain.Rule) ([]*domain.Rule, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*domain.Rule{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ruleRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Rule, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*domain.Rule
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ruleRepo) GetBySetID(dbc dbctx.Context, setID uuid.UUID) ([]*domain.Rule, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*domain.Rule
	if setID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Joins("JOIN rule_set_rule ON rule_set_rule.rule_id = rule.id").
		Where("rule_set_rule.rule_set_id = ?", setID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
