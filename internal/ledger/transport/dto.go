package transport

import "github.com/google/uuid"

// TopUpRequest credits a tenant after a confirmed payment.
type TopUpRequest struct {
	TenantID           uuid.UUID `json:"tenantId" validate:"required"`
	Amount             int64     `json:"amount" validate:"required,min=1"`
	PaymentReferenceID string    `json:"paymentReferenceId" validate:"required,max=200"`
	Description        string    `json:"description,omitempty" validate:"omitempty,max=500"`
}

// ListEntriesRequest pages the recent ledger entries.
type ListEntriesRequest struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=500"`
}

type BalanceResponse struct {
	Balance  int64 `json:"balance"`
	IsPaused bool  `json:"isPaused"`
}

type EntryResponse struct {
	ID            uuid.UUID `json:"id"`
	Amount        int64     `json:"amount"`
	OperationType string    `json:"operationType"`
	Description   string    `json:"description"`
	ReferenceID   *string   `json:"referenceId,omitempty"`
	CreatedAt     string    `json:"createdAt"`
}

type EntryListResponse struct {
	Items []EntryResponse `json:"items"`
	Total int             `json:"total"`
}
