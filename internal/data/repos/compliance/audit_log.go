package compliance

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

type AuditLogRepo interface {
	Create(dbc dbctx.Context, row *domain.AuditLogEntry) error
	// LatestByAction returns the newest entry for the organization with the
	// exact action, or nil when none exists.
	LatestByAction(dbc dbctx.Context, organizationID uuid.UUID, action string) (*domain.AuditLogEntry, error)
	ListByActionPrefix(dbc dbctx.Context, organizationID uuid.UUID, prefix string, limit int) ([]*domain.AuditLogEntry, error)
	ListByTriggeringEventLogID(dbc dbctx.Context, triggeringID uuid.UUID) ([]*domain.AuditLogEntry, error)
}

type auditLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditLogRepo(db *gorm.DB, baseLog *logger.Logger) AuditLogRepo {
	return &auditLogRepo{db: db, log: baseLog.With("repo", "AuditLogRepo")}
}

func (r *auditLogRepo) Create(dbc dbctx.Context, row *domain.AuditLogEntry) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).Create(row).Error
}

func (r *auditLogRepo) LatestByAction(dbc dbctx.Context, organizationID uuid.UUID, action string) (*domain.AuditLogEntry, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if organizationID == uuid.Nil || action == "" {
		return nil, nil
	}
	var row domain.AuditLogEntry
	err := t.WithContext(dbc.Ctx).
		Where("organization_id = ? AND action = ?", organizationID, action).
		Order("created_at DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *auditLogRepo) ListByActionPrefix(dbc dbctx.Context, organizationID uuid.UUID, prefix string, limit int) ([]*domain.AuditLogEntry, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*domain.AuditLogEntry
	if organizationID == uuid.Nil || prefix == "" {
		return out, nil
	}
	q := t.WithContext(dbc.Ctx).
		Where("organization_id = ? AND action LIKE ?", organizationID, prefix+"%").
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *auditLogRepo) ListByTriggeringEventLogID(dbc dbctx.Context, triggeringID uuid.UUID) ([]*domain.AuditLogEntry, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*domain.AuditLogEntry
	if triggeringID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("triggering_event_log_id = ?", triggeringID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
