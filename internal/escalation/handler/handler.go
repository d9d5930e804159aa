package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"leadflow_backend/internal/escalation/service"
	"leadflow_backend/internal/escalation/transport"
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

// Check evaluates the conversation signals and escalates on any trigger.
// POST /api/v1/leads/:id/escalation/check
func (h *Handler) Check(c *gin.Context) {
	leadID, tenantID, ok := h.ids(c)
	if !ok {
		return
	}
	var req transport.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if httpkit.HandleError(c, h.val.Check(req)) {
		return
	}

	out, err := h.svc.CheckEscalation(c.Request.Context(), tenantID, leadID, service.Signals{
		Confidence:     req.Confidence,
		DealSize:       req.DealSize,
		Message:        req.Message,
		ObjectionCount: req.ObjectionCount,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(out))
}

// Escalate reassigns the lead with caller supplied triggers.
// POST /api/v1/leads/:id/escalate
func (h *Handler) Escalate(c *gin.Context) {
	leadID, tenantID, ok := h.ids(c)
	if !ok {
		return
	}
	var req transport.EscalateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if httpkit.HandleError(c, h.val.Check(req)) {
		return
	}

	out, err := h.svc.Escalate(c.Request.Context(), tenantID, leadID, req.Triggers)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(out))
}

func (h *Handler) ids(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	leadID, ok := httpkit.ParamUUID(c, "id", "lead ID")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	tenantID, ok := httpkit.MustGetTenantID(c)
	return leadID, tenantID, ok
}

func toResponse(out service.Outcome) transport.OutcomeResponse {
	resp := transport.OutcomeResponse{
		LeadID:    out.LeadID.String(),
		Escalated: out.Escalated,
		Triggers:  out.Triggers,
	}
	if out.AgentID != nil {
		id := out.AgentID.String()
		resp.AgentID = &id
	}
	return resp
}
