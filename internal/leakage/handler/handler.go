package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"leadflow_backend/internal/leakage/repository"
	"leadflow_backend/internal/leakage/service"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/httpkit"
)

const defaultEventLimit = 20

type Handler struct {
	monitor *service.Monitor
	repo    *repository.Repository
}

func New(monitor *service.Monitor, repo *repository.Repository) *Handler {
	return &Handler{monitor: monitor, repo: repo}
}

// ListForLead returns the lead's most recent leakage events.
// GET /api/v1/leads/:id/leakage-events
func (h *Handler) ListForLead(c *gin.Context) {
	leadID, ok := httpkit.ParamUUID(c, "id", "lead ID")
	if !ok {
		return
	}
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			httpkit.Error(c, http.StatusBadRequest, "limit must be between 1 and 200", nil)
			return
		}
		limit = n
	}

	items, err := h.repo.ListForLead(c.Request.Context(), tenantID, leadID, limit)
	if err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindUnavailable, "leakage events unavailable", err))
		return
	}
	httpkit.OK(c, gin.H{"items": items})
}

// Scan runs one monitor pass immediately.
// POST /api/v1/admin/leakage/scan
func (h *Handler) Scan(c *gin.Context) {
	processed, failed, err := h.monitor.Tick(c.Request.Context())
	if err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindUnavailable, "leakage scan failed", err))
		return
	}
	httpkit.OK(c, gin.H{"processed": processed, "failed": failed})
}
