package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vantler/adcomply-backend/internal/data/repos/compliance"
	"github.com/vantler/adcomply-backend/internal/domain"
	"github.com/vantler/adcomply-backend/internal/platform/dbctx"
)

const maxAuditPageSize = 500

type AuditHandler struct {
	audit compliance.AuditLogRepo
}

func NewAuditHandler(audit compliance.AuditLogRepo) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// ListAuditTrail returns the organization's newest audit entries, filtered by
// action prefix. The default prefix covers the flag lifecycle actions.
// GET /api/orgs/:id/audit?action_prefix=flag.&limit=50
func (ah *AuditHandler) ListAuditTrail(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	prefix := c.DefaultQuery("action_prefix", domain.AuditFlagActionPrefix)
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > maxAuditPageSize {
		RespondError(c, http.StatusBadRequest, "invalid_limit",
			fmt.Errorf("limit must be between 1 and %d", maxAuditPageSize))
		return
	}
	entries, err := ah.audit.ListByActionPrefix(dbctx.Context{Ctx: c.Request.Context()}, orgID, prefix, limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "audit_fetch_failed", err)
		return
	}
	RespondOK(c, gin.H{"entries": entries})
}
