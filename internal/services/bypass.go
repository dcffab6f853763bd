package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vantler/adcomply-backend/internal/data/repos/compliance"
	"github.com/vantler/adcomply-backend/internal/data/repos/ops"
	"github.com/vantler/adcomply-backend/internal/data/repos/rules"
	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/apperr"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
)

// BypassDecision is the outcome of applying auto-bypass policy to one flag
// proposal.
type BypassDecision struct {
	Status           string
	ResolutionMethod *string
	AuditAction      string
}

// UpdateSettingsInput carries an API-facing settings change. ThresholdPercent
// uses the external 0-100 scale; nil disables auto-bypass.
type UpdateSettingsInput struct {
	ThresholdPercent       *float64
	AutoCloseCompliant     bool
	AutoRemediateViolation bool
	ApplyRetroactively     bool
	Actor                  string
}

// BypassEngine owns the flag auto-resolution state machine and the
// organization settings that drive it.
type BypassEngine interface {
	// Decide returns the initial state for a new flag given current settings
	// and the flag's rule. It never touches storage.
	Decide(settings *domain.BypassSettings, rule *domain.Rule, ruling string, confidence float64) BypassDecision
	// GetSettings returns the stored settings, or a disabled zero-value row
	// for an organization that never configured any.
	GetSettings(ctx context.Context, organizationID uuid.UUID) (*domain.BypassSettings, error)
	// UpdateSettings validates and persists a settings change together with
	// its audit entry in one transaction, optionally enqueueing the
	// retroactive sweep job.
	UpdateSettings(ctx context.Context, organizationID uuid.UUID, in UpdateSettingsInput) (*domain.BypassSettings, *domain.AuditLogEntry, error)
	// RetroApply re-runs the state machine over all currently pending flags,
	// auditing each transition against the given settings-change entry.
	RetroApply(ctx context.Context, organizationID uuid.UUID, settingsAuditID uuid.UUID) (int, error)
}

type bypassEngine struct {
	db       *gorm.DB
	log      *logger.Logger
	settings compliance.BypassSettingsRepo
	flags    compliance.FlagRepo
	audit    compliance.AuditLogRepo
	rules    rules.RuleRepo
	jobRuns  ops.JobRunRepo
}

func NewBypassEngine(db *gorm.DB, baseLog *logger.Logger, settings compliance.BypassSettingsRepo, flags compliance.FlagRepo, audit compliance.AuditLogRepo, ruleRepo rules.RuleRepo, jobRuns ops.JobRunRepo) BypassEngine {
	return &bypassEngine{
		db:       db,
		log:      baseLog.With("service", "BypassEngine"),
		settings: settings,
		flags:    flags,
		audit:    audit,
		rules:    ruleRepo,
		jobRuns:  jobRuns,
	}
}

func (e *bypassEngine) Decide(settings *domain.BypassSettings, rule *domain.Rule, ruling string, confidence float64) BypassDecision {
	pending := BypassDecision{Status: domain.FlagStatusPending}
	if !settings.Enabled() {
		return pending
	}

	// A rule-level threshold overrides the org default. A threshold that is
	// set but unparsable disables auto-bypass for this rule only.
	threshold := *settings.Threshold
	if rule.HasThresholdField() {
		v, ok := rule.ThresholdValue()
		if !ok {
			return pending
		}
		threshold = v
	}
	if confidence < threshold {
		return pending
	}

	switch ruling {
	case domain.RulingCompliant:
		if !settings.AutoCloseCompliant {
			return pending
		}
		method := domain.ResolutionAIAutoClose
		return BypassDecision{
			Status:           domain.FlagStatusClosed,
			ResolutionMethod: &method,
			AuditAction:      domain.AuditFlagAutoClosed,
		}
	case domain.RulingViolation:
		if !settings.AutoRemediateViolation {
			return pending
		}
		method := domain.ResolutionAIAutoRemediate
		return BypassDecision{
			Status:           domain.FlagStatusRemediating,
			ResolutionMethod: &method,
			AuditAction:      domain.AuditFlagAutoRemediated,
		}
	default:
		return pending
	}
}

func (e *bypassEngine) GetSettings(ctx context.Context, organizationID uuid.UUID) (*domain.BypassSettings, error) {
	if organizationID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing organization id", apperr.ErrInvalidArgument)
	}
	row, err := e.settings.GetByOrganizationID(dbctx.Context{Ctx: ctx}, organizationID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		// Never configured: auto-bypass disabled.
		return &domain.BypassSettings{OrganizationID: organizationID}, nil
	}
	return row, nil
}

func (e *bypassEngine) UpdateSettings(ctx context.Context, organizationID uuid.UUID, in UpdateSettingsInput) (*domain.BypassSettings, *domain.AuditLogEntry, error) {
	if organizationID == uuid.Nil {
		return nil, nil, fmt.Errorf("%w: missing organization id", apperr.ErrInvalidArgument)
	}
	var threshold *float64
	if in.ThresholdPercent != nil {
		pct := *in.ThresholdPercent
		if pct < 0 || pct > 100 {
			return nil, nil, fmt.Errorf("%w: threshold %v outside [0,100]", apperr.ErrInvalidArgument, pct)
		}
		normalized := pct / 100
		threshold = &normalized
	}

	row := &domain.BypassSettings{
		OrganizationID:         organizationID,
		Threshold:              threshold,
		AutoCloseCompliant:     in.AutoCloseCompliant,
		AutoRemediateViolation: in.AutoRemediateViolation,
	}
	// Disabling halts all future auto-resolution; the booleans cannot stay
	// latched on underneath.
	if threshold == nil {
		row.AutoCloseCompliant = false
		row.AutoRemediateViolation = false
	}

	detail, _ := json.Marshal(map[string]any{
		"threshold":                threshold,
		"auto_close_compliant":     row.AutoCloseCompliant,
		"auto_remediate_violation": row.AutoRemediateViolation,
		"apply_retroactively":      in.ApplyRetroactively,
	})
	entry := &domain.AuditLogEntry{
		OrganizationID: organizationID,
		Action:         domain.AuditBypassSettingsUpdated,
		Actor:          in.Actor,
		Detail:         datatypes.JSON(detail),
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := e.settings.Upsert(dbc, row); err != nil {
			return err
		}
		return e.audit.Create(dbc, entry)
	})
	if err != nil {
		return nil, nil, err
	}

	if in.ApplyRetroactively {
		payload, _ := json.Marshal(map[string]any{"settings_audit_id": entry.ID})
		if _, jErr := e.jobRuns.Create(dbctx.Context{Ctx: ctx}, []*domain.JobRun{{
			OrganizationID: organizationID,
			JobType:        domain.JobTypeBypassRetroApply,
			Status:         domain.JobStatusQueued,
			Payload:        datatypes.JSON(payload),
		}}); jErr != nil {
			// The settings change itself is committed; surface the failed
			// sweep enqueue instead of pretending it will run.
			return nil, nil, fmt.Errorf("settings saved but retro sweep enqueue failed: %w", jErr)
		}
	}

	e.log.Info("Bypass settings updated",
		"organization_id", organizationID,
		"enabled", row.Enabled(),
		"apply_retroactively", in.ApplyRetroactively,
	)
	return row, entry, nil
}

func (e *bypassEngine) RetroApply(ctx context.Context, organizationID uuid.UUID, settingsAuditID uuid.UUID) (int, error) {
	if organizationID == uuid.Nil || settingsAuditID == uuid.Nil {
		return 0, fmt.Errorf("%w: missing ids", apperr.ErrInvalidArgument)
	}
	dbc := dbctx.Context{Ctx: ctx}
	settings, err := e.settings.GetByOrganizationID(dbc, organizationID)
	if err != nil {
		return 0, err
	}
	if !settings.Enabled() {
		return 0, nil
	}

	pending, err := e.flags.GetByStatus(dbc, organizationID, domain.FlagStatusPending)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	ruleIDs := make([]uuid.UUID, 0, len(pending))
	seen := map[uuid.UUID]bool{}
	for _, f := range pending {
		if !seen[f.RuleID] {
			seen[f.RuleID] = true
			ruleIDs = append(ruleIDs, f.RuleID)
		}
	}
	ruleRows, err := e.rules.GetByIDs(dbc, ruleIDs)
	if err != nil {
		return 0, err
	}
	ruleByID := map[uuid.UUID]*domain.Rule{}
	for _, r := range ruleRows {
		ruleByID[r.ID] = r
	}

	applied := 0
	for _, flag := range pending {
		rule := ruleByID[flag.RuleID]
		if rule == nil {
			e.log.Warn("Pending flag references missing rule, skipping in sweep",
				"flag_id", flag.ID, "rule_id", flag.RuleID)
			continue
		}
		decision := e.Decide(settings, rule, flag.Ruling, flag.Confidence)
		if decision.ResolutionMethod == nil {
			continue
		}
		if err := e.applyTransition(ctx, flag, decision, settingsAuditID); err != nil {
			e.log.Warn("Retro sweep transition failed, continuing",
				"flag_id", flag.ID, "error", err)
			continue
		}
		applied++
	}
	e.log.Info("Retroactive bypass sweep complete",
		"organization_id", organizationID,
		"pending_examined", len(pending),
		"transitions", applied,
	)
	return applied, nil
}

// applyTransition moves one flag and writes its audit entry atomically.
func (e *bypassEngine) applyTransition(ctx context.Context, flag *domain.Flag, decision BypassDecision, settingsAuditID uuid.UUID) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		moved, err := e.flags.ApplyAutoResolution(dbc, flag.ID, decision.Status, *decision.ResolutionMethod)
		if err != nil {
			return err
		}
		if !moved {
			// Someone (a human, a racing sweep) got there first.
			return nil
		}
		detail, _ := json.Marshal(map[string]any{
			"flag_id":    flag.ID,
			"from":       domain.FlagStatusPending,
			"to":         decision.Status,
			"method":     *decision.ResolutionMethod,
			"confidence": flag.Confidence,
			"applied_at": time.Now().UTC(),
		})
		return e.audit.Create(dbc, &domain.AuditLogEntry{
			OrganizationID:       flag.OrganizationID,
			Action:               decision.AuditAction,
			Actor:                "system",
			Detail:               datatypes.JSON(detail),
			TriggeringEventLogID: &settingsAuditID,
		})
	})
}
