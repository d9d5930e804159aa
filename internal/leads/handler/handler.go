package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"leadflow_backend/internal/leads/scoring"
	"leadflow_backend/internal/leads/transport"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"
)

const (
	msgInvalidRequest = "invalid request"
)

// Handler serves the lead scoring endpoints.
type Handler struct {
	scoring *scoring.Service
	val     *validator.Validator
}

func New(scoringSvc *scoring.Service, val *validator.Validator) *Handler {
	return &Handler{scoring: scoringSvc, val: val}
}

// Score recomputes and persists a lead's score.
// POST /api/v1/leads/:id/score
func (h *Handler) Score(c *gin.Context) {
	leadID, ok := httpkit.ParamUUID(c, "id", "lead ID")
	if !ok {
		return
	}
	var req transport.ScoreLeadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
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

	res, err := h.scoring.ScoreLead(c.Request.Context(), tenantID, leadID, scoring.Options{
		IncludeModelScore: req.IncludeModelScore,
		CampaignContext:   req.CampaignContext,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toScoreResponse(leadID, res))
}

// ScoreBatch scores several leads; per-lead failures are reported inline.
// POST /api/v1/leads/score-batch
func (h *Handler) ScoreBatch(c *gin.Context) {
	var req transport.ScoreBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if httpkit.HandleError(c, h.val.Check(req)) {
		return
	}
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}

	items := h.scoring.ScoreBatch(c.Request.Context(), tenantID, req.LeadIDs, scoring.Options{
		IncludeModelScore: req.IncludeModelScore,
		CampaignContext:   req.CampaignContext,
	})
	resp := transport.ScoreBatchResponse{Items: make([]transport.ScoreBatchItem, 0, len(items))}
	for _, item := range items {
		out := transport.ScoreBatchItem{LeadID: item.LeadID}
		if item.Err != nil {
			out.Error = item.Err.Error()
			out.Code = apperr.GetKind(item.Err).Code()
			resp.Failed++
		} else {
			out.Result = toScoreResponse(item.LeadID, item.Result)
			resp.Succeeded++
		}
		resp.Items = append(resp.Items, out)
	}
	httpkit.OK(c, resp)
}

func toScoreResponse(leadID uuid.UUID, res *scoring.Result) *transport.ScoreResponse {
	return &transport.ScoreResponse{
		LeadID:    leadID,
		Score:     res.Score,
		Category:  string(res.Category),
		Tier:      string(res.Tier),
		Breakdown: res.Breakdown,
	}
}
