package transport

type CheckRequest struct {
	Confidence     *float64 `json:"confidence" validate:"omitempty,min=0,max=1"`
	DealSize       *float64 `json:"dealSize" validate:"omitempty,min=0"`
	Message        string   `json:"message" validate:"max=10000"`
	ObjectionCount int      `json:"objectionCount" validate:"min=0"`
}

type EscalateRequest struct {
	Triggers []string `json:"triggers" validate:"required,min=1,max=10,dive,required,max=64"`
}

type OutcomeResponse struct {
	LeadID    string   `json:"leadId"`
	Escalated bool     `json:"escalated"`
	Triggers  []string `json:"triggers"`
	AgentID   *string  `json:"agentId,omitempty"`
}
