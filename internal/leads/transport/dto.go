package transport

import "github.com/google/uuid"

// ScoreLeadRequest controls a single scoring run.
type ScoreLeadRequest struct {
	IncludeModelScore bool   `json:"includeModelScore"`
	CampaignContext   string `json:"campaignContext,omitempty" validate:"omitempty,max=2000"`
}

// ScoreBatchRequest scores up to 100 leads independently.
type ScoreBatchRequest struct {
	LeadIDs           []uuid.UUID `json:"leadIds" validate:"required,min=1,max=100,dive,required"`
	IncludeModelScore bool        `json:"includeModelScore"`
	CampaignContext   string      `json:"campaignContext,omitempty" validate:"omitempty,max=2000"`
}

type ScoreResponse struct {
	LeadID    uuid.UUID `json:"leadId"`
	Score     int       `json:"score"`
	Category  string    `json:"category"`
	Tier      string    `json:"tier"`
	Breakdown any       `json:"breakdown"`
}

type ScoreBatchItem struct {
	LeadID uuid.UUID      `json:"leadId"`
	Result *ScoreResponse `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
	Code   string         `json:"code,omitempty"`
}

type ScoreBatchResponse struct {
	Items     []ScoreBatchItem `json:"items"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
}
