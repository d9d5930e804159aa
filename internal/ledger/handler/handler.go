package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"leadflow_backend/internal/ledger/service"
	"leadflow_backend/internal/ledger/transport"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"
)

const (
	msgInvalidRequest = "invalid request"
	defaultEntryLimit = 50
)

// Handler serves the token balance and ledger endpoints.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// GetBalance returns the caller's token balance.
// GET /api/v1/tokens/balance
func (h *Handler) GetBalance(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	b, err := h.svc.GetBalance(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.BalanceResponse{Balance: b.Balance, IsPaused: b.IsPaused})
}

// ListEntries returns the most recent ledger entries.
// GET /api/v1/tokens/ledger
func (h *Handler) ListEntries(c *gin.Context) {
	var req transport.ListEntriesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
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
	limit := req.Limit
	if limit == 0 {
		limit = defaultEntryLimit
	}

	entries, err := h.svc.Entries(c.Request.Context(), tenantID, limit)
	if httpkit.HandleError(c, err) {
		return
	}
	items := make([]transport.EntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, transport.EntryResponse{
			ID:            e.ID,
			Amount:        e.Amount,
			OperationType: e.OperationType,
			Description:   e.Description,
			ReferenceID:   e.ReferenceID,
			CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	httpkit.OK(c, transport.EntryListResponse{Items: items, Total: len(items)})
}

// TopUp credits a tenant (admin only).
// POST /api/v1/admin/tokens/top-up
func (h *Handler) TopUp(c *gin.Context) {
	var req transport.TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if httpkit.HandleError(c, h.val.Check(req)) {
		return
	}

	b, err := h.svc.TopUp(c.Request.Context(), service.TopUpParams{
		TenantID:           req.TenantID,
		Amount:             req.Amount,
		PaymentReferenceID: req.PaymentReferenceID,
		Description:        req.Description,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.BalanceResponse{Balance: b.Balance, IsPaused: b.IsPaused})
}
