package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vantler/adcomply-backend/internal/modules/scan"
	"github.com/vantler/adcomply-backend/internal/platform/apperr"
)

type ScanHandler struct {
	scanService scan.Service
}

func NewScanHandler(scanService scan.Service) *ScanHandler {
	return &ScanHandler{scanService: scanService}
}

// ScanContentItem runs the full pipeline synchronously for one content item.
// POST /api/content/:id/scan
func (sh *ScanHandler) ScanContentItem(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	result, err := sh.scanService.ScanContentItem(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "scan_failed", err)
		return
	}
	RespondOK(c, gin.H{"result": result})
}
