package compliance

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

type FlagRepo interface {
	Create(dbc dbctx.Context, rows []*domain.Flag) ([]*domain.Flag, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Flag, error)
	GetByStatus(dbc dbctx.Context, organizationID uuid.UUID, status string) ([]*domain.Flag, error)
	// ApplyAutoResolution moves a flag out of pending with the given status
	// and resolution method. It only touches flags still pending so a racing
	// human review wins.
	ApplyAutoResolution(dbc dbctx.Context, id uuid.UUID, status, method string) (bool, error)
	// ResetToPending reverts flags to pending with the resolution method
	// cleared, guarded so only unmodified AI auto-resolutions are touched.
	// Returns the ids actually reset.
	ResetToPending(dbc dbctx.Context, ids []uuid.UUID) ([]uuid.UUID, error)
}

type flagRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFlagRepo(db *gorm.DB, baseLog *logger.Logger) FlagRepo {
	return &flagRepo{db: db, log: baseLog.With("repo", "FlagRepo")}
}

func (r *flagRepo) Create(dbc dbctx.Context, rows []*domain.Flag) ([]*domain.Flag, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*domain.Flag{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *flagRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Flag, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*domain.Flag
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

func (r *flagRepo) GetByStatus(dbc dbctx.Context, organizationID uuid.UUID, status string) ([]*domain.Flag, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*domain.Flag
	if organizationID == uuid.Nil || status == "" {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("organization_id = ? AND status = ?", organizationID, status).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *flagRepo) ApplyAutoResolution(dbc dbctx.Context, id uuid.UUID, status, method string) (bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	res := t.WithContext(dbc.Ctx).
		Model(&domain.Flag{}).
		Where("id = ? AND status = ?", id, domain.FlagStatusPending).
		Updates(map[string]any{
			"status":            status,
			"resolution_method": method,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *flagRepo) ResetToPending(dbc dbctx.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(ids) == 0 {
		return nil, nil
	}
	// Re-select under the same guard the update uses so the returned ids
	// match the rows actually reset.
	var eligible []*domain.Flag
	if err := t.WithContext(dbc.Ctx).
		Where("id IN ? AND resolution_method IN ?", ids,
			[]string{domain.ResolutionAIAutoClose, domain.ResolutionAIAutoRemediate}).
		Find(&eligible).Error; err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, nil
	}
	resetIDs := make([]uuid.UUID, 0, len(eligible))
	for _, f := range eligible {
		resetIDs = append(resetIDs, f.ID)
	}
	if err := t.WithContext(dbc.Ctx).
		Model(&domain.Flag{}).
		Where("id IN ?", resetIDs).
		Updates(map[string]any{
			"status":            domain.FlagStatusPending,
			"resolution_method": nil,
			"updated_at":        time.Now().UTC(),
		}).Error; err != nil {
		return nil, err
	}
	return resetIDs, nil
}
