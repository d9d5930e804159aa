package transport

import "time"

// RouteRequest optionally overrides the stored score.
type RouteRequest struct {
	Score *int `json:"score" validate:"omitempty,min=0,max=100"`
}

type RouteResponse struct {
	LeadID            string     `json:"leadId"`
	AgentID           *string    `json:"agentId"`
	PreviousAgentID   *string    `json:"previousAgentId,omitempty"`
	Score             int        `json:"score"`
	Tier              string     `json:"tier"`
	Priority          string     `json:"priority"`
	SLAMinutes        int        `json:"slaMinutes"`
	SLADeadline       *time.Time `json:"slaDeadline,omitempty"`
	RecoveryScheduled bool       `json:"recoveryScheduled"`
	Assigned          bool       `json:"assigned"`
}
