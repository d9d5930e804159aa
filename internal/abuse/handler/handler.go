package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"leadflow_backend/internal/abuse/service"
	"leadflow_backend/platform/httpkit"
)

type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Detect runs detection for the tenant named in the query.
// GET /api/v1/admin/abuse/detect?tenantId=
func (h *Handler) Detect(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}
	report, err := h.svc.DetectAbusePatterns(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// Lift ends a pause early.
// DELETE /api/v1/admin/abuse/pause?tenantId=
func (h *Handler) Lift(c *gin.Context) {
	tenantID, ok := tenantParam(c)
	if !ok {
		return
	}
	if httpkit.HandleError(c, h.svc.Lift(c.Request.Context(), tenantID)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// Status reports the caller's own pause window.
// GET /api/v1/abuse/status
func (h *Handler) Status(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	report, err := h.svc.Status(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"paused": report.Paused, "pausedUntil": report.PausedUntil})
}

func tenantParam(c *gin.Context) (uuid.UUID, bool) {
	tenantID, err := uuid.Parse(c.Query("tenantId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid tenant ID", nil)
		return uuid.Nil, false
	}
	return tenantID, true
}
