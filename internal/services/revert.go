package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vantler/adcomply-backend/internal/data/repos/compliance"
	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/apperr"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

// RevertEngine rolls back the auto-resolutions caused by an organization's
// most recent settings change, using only audit lineage. Nothing to revert is
// a zero-count success, never an error.
type RevertEngine interface {
	RevertLastSettingsChange(ctx context.Context, organizationID uuid.UUID, actor string) (int, error)
}

type revertEngine struct {
	db    *gorm.DB
	log   *logger.Logger
	flags compliance.FlagRepo
	audit compliance.AuditLogRepo
}

func NewRevertEngine(db *gorm.DB, baseLog *logger.Logger, flags compliance.FlagRepo, audit compliance.AuditLogRepo) RevertEngine {
	return &revertEngine{
		db:    db,
		log:   baseLog.With("service", "RevertEngine"),
		flags: flags,
		audit: audit,
	}
}

func (e *revertEngine) RevertLastSettingsChange(ctx context.Context, organizationID uuid.UUID, actor string) (int, error) {
	if organizationID == uuid.Nil {
		return 0, fmt.Errorf("%w: missing organization id", apperr.ErrInvalidArgument)
	}
	dbc := dbctx.Context{Ctx: ctx}

	settingsEntry, err := e.audit.LatestByAction(dbc, organizationID, domain.AuditBypassSettingsUpdated)
	if err != nil {
		return 0, err
	}
	if settingsEntry == nil {
		return 0, nil
	}

	caused, err := e.audit.ListByTriggeringEventLogID(dbc, settingsEntry.ID)
	if err != nil {
		return 0, err
	}
	flagIDs := collectFlagIDs(e.log, caused)
	if len(flagIDs) == 0 {
		return 0, nil
	}

	flags, err := e.flags.GetByIDs(dbc, flagIDs)
	if err != nil {
		return 0, err
	}
	// Only flags still carrying an untouched AI auto-resolution revert; a
	// human decision since then takes the flag out of scope.
	var targets []*domain.Flag
	for _, f := range flags {
		if f.AutoResolved() {
			targets = append(targets, f)
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}

	var reverted []uuid.UUID
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		ids := make([]uuid.UUID, len(targets))
		for i, f := range targets {
			ids[i] = f.ID
		}
		resetIDs, resetErr := e.flags.ResetToPending(txc, ids)
		if resetErr != nil {
			return resetErr
		}
		for _, id := range resetIDs {
			detail, _ := json.Marshal(map[string]any{
				"flag_id": id,
				"to":      domain.FlagStatusPending,
			})
			if aErr := e.audit.Create(txc, &domain.AuditLogEntry{
				OrganizationID:       organizationID,
				Action:               domain.AuditFlagReverted,
				Actor:                actor,
				Detail:               datatypes.JSON(detail),
				TriggeringEventLogID: &settingsEntry.ID,
			}); aErr != nil {
				return aErr
			}
		}
		reverted = resetIDs
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.log.Info("Revert complete",
		"organization_id", organizationID,
		"settings_audit_id", settingsEntry.ID,
		"reverted", len(reverted),
	)
	return len(reverted), nil
}

// collectFlagIDs pulls the flag id out of each caused-transition entry's
// detail payload. Entries without one are skipped.
func collectFlagIDs(log *logger.Logger, entries []*domain.AuditLogEntry) []uuid.UUID {
	var out []uuid.UUID
	seen := map[uuid.UUID]bool{}
	for _, entry := range entries {
		if entry.Action != domain.AuditFlagAutoClosed && entry.Action != domain.AuditFlagAutoRemediated {
			continue
		}
		var detail struct {
			FlagID uuid.UUID `json:"flag_id"`
		}
		if err := json.Unmarshal(entry.Detail, &detail); err != nil || detail.FlagID == uuid.Nil {
			log.Warn("Audit entry missing flag id, skipping in revert", "audit_id", entry.ID)
			continue
		}
		if !seen[detail.FlagID] {
			seen[detail.FlagID] = true
			out = append(out, detail.FlagID)
		}
	}
	return out
}
