// Package service implements the token ledger: tenant-scoped, append-only
// accounting of the consumable tokens that fund every automated action.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/ledger/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/metrics"
	"leadflow_backend/platform/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ErrInsufficientBalance is wrapped by the payment-required error Deduct
// returns when the balance cannot cover the amount.
var ErrInsufficientBalance = errors.New("insufficient token balance")

const (
	opDeduct    = "ledger.Deduct"
	opTopUp     = "ledger.TopUp"
	opReconcile = "ledger.Reconcile"
	opBalance   = "ledger.GetBalance"

	actorSystem = "system"
)

// AuditLogger records ledger movements. Implementations must not block.
type AuditLogger interface {
	Log(ctx context.Context, tenantID uuid.UUID, actor, action, entityID string, metadata map[string]any)
}

// Balance is the caller-facing balance view.
type Balance struct {
	Balance  int64 `json:"balance"`
	IsPaused bool  `json:"isPaused"`
}

type DeductParams struct {
	TenantID      uuid.UUID
	Amount        int64
	OperationType string
	Description   string
	ReferenceID   string
}

type TopUpParams struct {
	TenantID           uuid.UUID
	Amount             int64
	PaymentReferenceID string
	Description        string
}

// ReconcileResult reports what a reconciliation found.
type ReconcileResult struct {
	Materialized int64 `json:"materialized"`
	FromEntries  int64 `json:"fromEntries"`
	Drift        int64 `json:"drift"`
	IsPaused     bool  `json:"isPaused"`
}

type Service struct {
	store repository.Store
	audit AuditLogger
	bus   events.Bus
	log   *logger.Logger
}

func New(store repository.Store, audit AuditLogger, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, audit: audit, bus: bus, log: log}
}

// GetBalance returns {0, false} for tenants without a balance row.
func (s *Service) GetBalance(ctx context.Context, tenantID uuid.UUID) (Balance, error) {
	b, _, err := s.store.GetBalance(ctx, tenantID)
	if err != nil {
		return Balance{}, apperr.Wrap(apperr.KindUnavailable, "token ledger unavailable", err).WithOp(opBalance)
	}
	return Balance{Balance: b.Balance, IsPaused: b.IsPaused}, nil
}

// Deduct debits amount tokens. Concurrent deductions for one tenant serialize
// on the balance row, so no interleaving can overdraw it.
func (s *Service) Deduct(ctx context.Context, p DeductParams) (Balance, error) {
	if p.Amount <= 0 {
		return Balance{}, apperr.Validation("amount must be positive").WithOp(opDeduct)
	}
	if strings.TrimSpace(p.OperationType) == "" {
		return Balance{}, apperr.Validation("operation type is required").WithOp(opDeduct)
	}

	ctx, span := telemetry.Start(ctx, opDeduct,
		attribute.String("tenant_id", p.TenantID.String()),
		attribute.String("operation", p.OperationType),
		attribute.Int64("amount", p.Amount),
	)
	defer span.End()

	var (
		entry   repository.Entry
		balance repository.Balance
		before  int64
	)
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		current, err := tx.LockBalance(ctx, p.TenantID)
		if err != nil {
			return err
		}
		if current.Balance < p.Amount {
			before = current.Balance
			return ErrInsufficientBalance
		}
		entry, balance, err = tx.AppendEntry(ctx, repository.NewEntry{
			TenantID:      p.TenantID,
			Amount:        -p.Amount,
			OperationType: p.OperationType,
			Description:   p.Description,
			ReferenceID:   optional(p.ReferenceID),
		})
		return err
	})
	if errors.Is(err, ErrInsufficientBalance) {
		metrics.InsufficientBalance.WithLabelValues(p.OperationType).Inc()
		return Balance{}, apperr.Wrap(apperr.KindPaymentRequired, ErrInsufficientBalance.Error(), ErrInsufficientBalance).
			WithOp(opDeduct).
			WithDetails(map[string]any{"balance": before, "required": p.Amount})
	}
	if err != nil {
		span.RecordError(err)
		s.log.DatabaseError(opDeduct, err)
		return Balance{}, apperr.Wrap(apperr.KindUnavailable, "token ledger unavailable", err).WithOp(opDeduct)
	}

	metrics.TokensDeducted.WithLabelValues(p.OperationType).Add(float64(p.Amount))
	s.log.TokenMovement(p.TenantID.String(), -p.Amount, p.OperationType, balance.Balance)
	s.afterCommit(ctx, p.TenantID, "tokens.deducted", entry, balance)
	if s.bus != nil {
		s.bus.Publish(ctx, events.TokensDeducted{
			BaseEvent:     events.NewBaseEvent(),
			TenantID:      p.TenantID,
			Amount:        p.Amount,
			OperationType: p.OperationType,
			ReferenceID:   p.ReferenceID,
			Balance:       balance.Balance,
		})
	}
	return Balance{Balance: balance.Balance, IsPaused: balance.IsPaused}, nil
}

// TopUp credits amount tokens and clears the tenant's paused flag.
func (s *Service) TopUp(ctx context.Context, p TopUpParams) (Balance, error) {
	if p.Amount <= 0 {
		return Balance{}, apperr.Validation("amount must be positive").WithOp(opTopUp)
	}
	if strings.TrimSpace(p.PaymentReferenceID) == "" {
		return Balance{}, apperr.Validation("payment reference is required").WithOp(opTopUp)
	}
	description := p.Description
	if description == "" {
		description = fmt.Sprintf("top-up %s", p.PaymentReferenceID)
	}

	var (
		entry   repository.Entry
		balance repository.Balance
	)
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.LockBalance(ctx, p.TenantID); err != nil {
			return err
		}
		var err error
		entry, balance, err = tx.AppendEntry(ctx, repository.NewEntry{
			TenantID:      p.TenantID,
			Amount:        p.Amount,
			OperationType: "top_up",
			Description:   description,
			ReferenceID:   optional(p.PaymentReferenceID),
		})
		if err != nil {
			return err
		}
		if err := tx.SetPaused(ctx, p.TenantID, false); err != nil {
			return err
		}
		balance.IsPaused = false
		return nil
	})
	if err != nil {
		s.log.DatabaseError(opTopUp, err)
		return Balance{}, apperr.Wrap(apperr.KindUnavailable, "token ledger unavailable", err).WithOp(opTopUp)
	}

	s.log.TokenMovement(p.TenantID.String(), p.Amount, "top_up", balance.Balance)
	s.afterCommit(ctx, p.TenantID, "tokens.topped_up", entry, balance)
	if s.bus != nil {
		s.bus.Publish(ctx, events.TokensToppedUp{
			BaseEvent:          events.NewBaseEvent(),
			TenantID:           p.TenantID,
			Amount:             p.Amount,
			PaymentReferenceID: p.PaymentReferenceID,
			Balance:            balance.Balance,
		})
	}
	return Balance{Balance: balance.Balance, IsPaused: balance.IsPaused}, nil
}

// Reconcile recomputes the balance from the entries, repairs drift and sets
// is_paused when the tenant has nothing left to spend.
func (s *Service) Reconcile(ctx context.Context, tenantID uuid.UUID) (ReconcileResult, error) {
	var res ReconcileResult
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		current, err := tx.LockBalance(ctx, tenantID)
		if err != nil {
			return err
		}
		sum, err := tx.SumEntries(ctx, tenantID)
		if err != nil {
			return err
		}
		res = ReconcileResult{
			Materialized: current.Balance,
			FromEntries:  sum,
			Drift:        current.Balance - sum,
			IsPaused:     sum <= 0,
		}
		return tx.SetBalance(ctx, tenantID, sum, res.IsPaused)
	})
	if err != nil {
		s.log.DatabaseError(opReconcile, err)
		return ReconcileResult{}, apperr.Wrap(apperr.KindUnavailable, "token ledger unavailable", err).WithOp(opReconcile)
	}
	if res.Drift != 0 {
		s.log.Warn("ledger drift repaired", "tenant_id", tenantID.String(), "drift", res.Drift)
	}
	return res, nil
}

// Entries lists the most recent entries for a tenant.
func (s *Service) Entries(ctx context.Context, tenantID uuid.UUID, limit int) ([]repository.Entry, error) {
	entries, err := s.store.ListEntries(ctx, tenantID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "token ledger unavailable", err).WithOp("ledger.Entries")
	}
	return entries, nil
}

func (s *Service) afterCommit(ctx context.Context, tenantID uuid.UUID, action string, entry repository.Entry, balance repository.Balance) {
	if s.audit == nil {
		return
	}
	ref := ""
	if entry.ReferenceID != nil {
		ref = *entry.ReferenceID
	}
	s.audit.Log(ctx, tenantID, actorSystem, action, entry.ID.String(), map[string]any{
		"amount":        entry.Amount,
		"operationType": entry.OperationType,
		"referenceId":   ref,
		"balance":       balance.Balance,
	})
}

func optional(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}
