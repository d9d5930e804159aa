package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"leadflow_backend/internal/routing/service"
	"leadflow_backend/internal/routing/transport"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Route assigns a lead to an agent.
// POST /api/v1/leads/:id/route
func (h *Handler) Route(c *gin.Context) {
	leadID, ok := httpkit.ParamUUID(c, "id", "lead ID")
	if !ok {
		return
	}
	var req transport.RouteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
			return
		}
	}
	if httpkit.HandleError(c, h.val.Check(req)) {
		return
	}
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	d, err := h.svc.Route(c.Request.Context(), service.RouteRequest{
		TenantID: tenantID,
		LeadID:   leadID,
		Score:    req.Score,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(d))
}

func toResponse(d service.Decision) transport.RouteResponse {
	resp := transport.RouteResponse{
		LeadID:            d.LeadID.String(),
		Score:             d.Score,
		Tier:              string(d.Tier),
		Priority:          string(d.Priority),
		SLAMinutes:        int(d.SLA / time.Minute),
		SLADeadline:       d.SLADeadline,
		RecoveryScheduled: d.RecoveryScheduled,
		Assigned:          d.AgentID != nil,
	}
	if d.AgentID != nil {
		id := d.AgentID.String()
		resp.AgentID = &id
	}
	if d.PreviousAgentID != nil {
		id := d.PreviousAgentID.String()
		resp.PreviousAgentID = &id
	}
	return resp
}
