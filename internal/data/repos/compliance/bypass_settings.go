package compliance

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

type BypassSettingsRepo interface {
	// GetByOrganizationID returns (nil, nil) when the organization has never
	// configured settings; missing settings is the valid disabled state, not
	// an error. Callers go through BypassSettings.Enabled(), which is
	// nil-safe.
	GetByOrganizationID(dbc dbctx.Context, organizationID uuid.UUID) (*domain.BypassSettings, error)
	Upsert(dbc dbctx.Context, row *domain.BypassSettings) error
}

type bypassSettingsRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBypassSettingsRepo(db *gorm.DB, baseLog *logger.Logger) BypassSettingsRepo {
	return &bypassSettingsRepo{db: db, log: baseLog.With("repo", "BypassSettingsRepo")}
}

func (r *bypassSettingsRepo) GetByOrganizationID(dbc dbctx.Context, organizationID uuid.UUID) (*domain.BypassSettings, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if organizationID == uuid.Nil {
		return nil, nil
	}
	var row domain.BypassSettings
	err := t.WithContext(dbc.Ctx).
		Where("organization_id = ?", organizationID).
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

func (r *bypassSettingsRepo) Upsert(dbc dbctx.Context, row *domain.BypassSettings) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.OrganizationID == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	return t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "organization_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"threshold", "auto_close_compliant", "auto_remediate_violation", "updated_at",
			}),
		}).
		Create(row).Error
}
