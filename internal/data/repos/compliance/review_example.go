package compliance

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

type ReviewExampleRepo interface {
	Create(dbc dbctx.Context, rows []*domain.ReviewExample) ([]*domain.ReviewExample, error)
	// ListByRuleID returns newest-first candidates for librarian ranking.
	ListByRuleID(dbc dbctx.Context, ruleID uuid.UUID, limit int) ([]*domain.ReviewExample, error)
}

type reviewExampleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReviewExampleRepo(db *gorm.DB, baseLog *logger.Logger) ReviewExampleRepo {
	return &reviewExampleRepo{db: db, log: baseLog.With("repo", "ReviewExampleRepo")}
}

func (r *reviewExampleRepo) Create(dbc dbctx.Context, rows []*domain.ReviewExample) ([]*domain.ReviewExample, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*domain.ReviewExample{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *reviewExampleRepo) ListByRuleID(dbc dbctx.Context, ruleID uuid.UUID, limit int) ([]*domain.ReviewExample, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*domain.ReviewExample
	if ruleID == uuid.Nil {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).
		Where("rule_id = ?", ruleID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
