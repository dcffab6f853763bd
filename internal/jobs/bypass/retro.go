package bypass

import (
	"fmt"

	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/jobs/runtime"
	"github.com/vantler/adcomply-backend/internal/platform/logger"
	"github.com/vantler/adcomply-backend/internal/services"
)

// RetroApplyHandler runs the retroactive bypass sweep enqueued by a settings
// change with apply_retroactively set.
type RetroApplyHandler struct {
	log    *logger.Logger
	engine services.BypassEngine
}

func NewRetroApplyHandler(baseLog *logger.Logger, engine services.BypassEngine) *RetroApplyHandler {
	return &RetroApplyHandler{
		log:    baseLog.With("handler", "BypassRetroApply"),
		engine: engine,
	}
}

func (h *RetroApplyHandler) Type() string { return domain.JobTypeBypassRetroApply }

func (h *RetroApplyHandler) Run(jc *runtime.Context) error {
	settingsAuditID, ok := jc.PayloadUUID("settings_audit_id")
	if !ok {
		return fmt.Errorf("payload missing settings_audit_id")
	}
	jc.Heartbeat()

	applied, err := h.engine.RetroApply(jc.Ctx, jc.Job.OrganizationID, settingsAuditID)
	if err != nil {
		return err
	}
	h.log.Info("Retro sweep job finished",
		"organization_id", jc.Job.OrganizationID,
		"settings_audit_id", settingsAuditID,
		"transitions", applied,
	)
	jc.Succeed(map[string]any{"transitions": applied})
	return nil
}
