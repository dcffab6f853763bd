package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vantler/adcomply-backend/internal/platform/apperr"
	"github.com/vantler/adcomply-backend/internal/requestdata"
	"github.com/vantler/adcomply-backend/internal/services"
)

type BypassHandler struct {
	engine services.BypassEngine
	revert services.RevertEngine
}

func NewBypassHandler(engine services.BypassEngine, revert services.RevertEngine) *BypassHandler {
	return &BypassHandler{engine: engine, revert: revert}
}

type updateSettingsRequest struct {
	// Threshold uses the external 0-100 scale; null disables auto-bypass.
	Threshold              *float64 `json:"threshold"`
	AutoCloseCompliant     bool     `json:"auto_close_compliant"`
	AutoRemediateViolation bool     `json:"auto_remediate_violation"`
	ApplyRetroactively     bool     `json:"apply_retroactively"`
	Actor                  string   `json:"actor"`
}

// GetSettings returns the organization's bypass settings.
// GET /api/orgs/:id/bypass-settings
func (bh *BypassHandler) GetSettings(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	settings, err := bh.engine.GetSettings(c.Request.Context(), orgID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "settings_fetch_failed", err)
		return
	}
	RespondOK(c, gin.H{"settings": settings})
}

// UpdateSettings validates and applies a settings change, optionally kicking
// off the retroactive sweep.
// PUT /api/orgs/:id/bypass-settings
func (bh *BypassHandler) UpdateSettings(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = requestdata.Actor(c.Request.Context(), "api")
	}
	settings, entry, err := bh.engine.UpdateSettings(c.Request.Context(), orgID, services.UpdateSettingsInput{
		ThresholdPercent:       req.Threshold,
		AutoCloseCompliant:     req.AutoCloseCompliant,
		AutoRemediateViolation: req.AutoRemediateViolation,
		ApplyRetroactively:     req.ApplyRetroactively,
		Actor:                  actor,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidArgument) {
			RespondError(c, http.StatusBadRequest, "invalid_settings", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "settings_update_failed", err)
		return
	}
	RespondOK(c, gin.H{"settings": settings, "audit_id": entry.ID})
}

// RevertLastChange rolls back auto-resolutions caused by the most recent
// settings change. Nothing to revert returns reverted=0, not an error.
// POST /api/orgs/:id/bypass-revert
func (bh *BypassHandler) RevertLastChange(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	var req struct {
		Actor string `json:"actor"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Actor == "" {
		req.Actor = requestdata.Actor(c.Request.Context(), "api")
	}
	count, err := bh.revert.RevertLastSettingsChange(c.Request.Context(), orgID, req.Actor)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "revert_failed", err)
		return
	}
	RespondOK(c, gin.H{"reverted": count})
}
