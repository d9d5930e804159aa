// Package repository persists the token ledger: the append-only entries and the
// per-tenant balance row they materialize into.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxTxAttempts = 3

// Balance is the materialized running sum of a tenant's entries.
type Balance struct {
	TenantID  uuid.UUID
	Balance   int64
	IsPaused  bool
	UpdatedAt time.Time
}

// Entry is one immutable ledger row.
type Entry struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	Amount        int64
	OperationType string
	Description   string
	ReferenceID   *string
	CreatedAt     time.Time
}

// NewEntry describes a row to append. Amount is signed.
type NewEntry struct {
	TenantID      uuid.UUID
	Amount        int64
	OperationType string
	Description   string
	ReferenceID   *string
}

// Tx is the set of operations available while the balance row is locked.
type Tx interface {
	// LockBalance creates the tenant's balance row if needed and locks it
	// until the transaction ends.
	LockBalance(ctx context.Context, tenantID uuid.UUID) (Balance, error)
	// AppendEntry inserts the entry and applies it to the locked balance row.
	AppendEntry(ctx context.Context, e NewEntry) (Entry, Balance, error)
	// SumEntries recomputes the balance from the entries.
	SumEntries(ctx context.Context, tenantID uuid.UUID) (int64, error)
	// SetBalance overwrites the materialized row. Reconciliation only.
	SetBalance(ctx context.Context, tenantID uuid.UUID, balance int64, paused bool) error
	SetPaused(ctx context.Context, tenantID uuid.UUID, paused bool) error
}

// Store is the ledger's persistence contract.
type Store interface {
	GetBalance(ctx context.Context, tenantID uuid.UUID) (Balance, bool, error)
	InTx(ctx context.Context, fn func(Tx) error) error
	ListEntries(ctx context.Context, tenantID uuid.UUID, limit int) ([]Entry, error)
	// SpendBetween returns the tokens debited in [from, to).
	SpendBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (int64, error)
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetBalance(ctx context.Context, tenantID uuid.UUID) (Balance, bool, error) {
	var b Balance
	err := r.pool.QueryRow(ctx,
		`SELECT tenant_id, balance, is_paused, updated_at FROM token_balances WHERE tenant_id = $1`,
		tenantID,
	).Scan(&b.TenantID, &b.Balance, &b.IsPaused, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{TenantID: tenantID}, false, nil
	}
	if err != nil {
		return Balance{}, false, err
	}
	return b, true, nil
}

// InTx runs fn in a read-committed transaction, retrying on deadlock or
// serialization failure.
func (r *Repository) InTx(ctx context.Context, fn func(Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = r.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*attempt) * 20 * time.Millisecond):
		}
	}
	return err
}

func (r *Repository) runTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func (r *Repository) ListEntries(ctx context.Context, tenantID uuid.UUID, limit int) ([]Entry, error) {
	if limit < 1 || limit > 500 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, amount, operation_type, description, reference_id, created_at
		 FROM token_ledger_entries
		 WHERE tenant_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Amount, &e.OperationType, &e.Description, &e.ReferenceID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) SpendBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (int64, error) {
	var spent int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(-amount), 0)
		 FROM token_ledger_entries
		 WHERE tenant_id = $1 AND amount < 0 AND created_at >= $2 AND created_at < $3`,
		tenantID, from, to,
	).Scan(&spent)
	return spent, err
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockBalance(ctx context.Context, tenantID uuid.UUID) (Balance, error) {
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO token_balances (tenant_id) VALUES ($1) ON CONFLICT (tenant_id) DO NOTHING`,
		tenantID,
	); err != nil {
		return Balance{}, err
	}

	var b Balance
	err := t.tx.QueryRow(ctx,
		`SELECT tenant_id, balance, is_paused, updated_at
		 FROM token_balances
		 WHERE tenant_id = $1
		 FOR UPDATE`,
		tenantID,
	).Scan(&b.TenantID, &b.Balance, &b.IsPaused, &b.UpdatedAt)
	return b, err
}

func (t *pgTx) AppendEntry(ctx context.Context, e NewEntry) (Entry, Balance, error) {
	entry := Entry{
		TenantID:      e.TenantID,
		Amount:        e.Amount,
		OperationType: e.OperationType,
		Description:   e.Description,
		ReferenceID:   e.ReferenceID,
	}
	err := t.tx.QueryRow(ctx,
		`INSERT INTO token_ledger_entries (tenant_id, amount, operation_type, description, reference_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		e.TenantID, e.Amount, e.OperationType, e.Description, e.ReferenceID,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return Entry{}, Balance{}, err
	}

	var b Balance
	err = t.tx.QueryRow(ctx,
		`UPDATE token_balances
		 SET balance = balance + $2::bigint,
		     is_paused = CASE WHEN $2::bigint < 0 AND balance + $2::bigint <= 0 THEN true ELSE is_paused END,
		     updated_at = now()
		 WHERE tenant_id = $1
		 RETURNING tenant_id, balance, is_paused, updated_at`,
		e.TenantID, e.Amount,
	).Scan(&b.TenantID, &b.Balance, &b.IsPaused, &b.UpdatedAt)
	if err != nil {
		return Entry{}, Balance{}, err
	}
	return entry, b, nil
}

func (t *pgTx) SumEntries(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var sum int64
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM token_ledger_entries WHERE tenant_id = $1`,
		tenantID,
	).Scan(&sum)
	return sum, err
}

func (t *pgTx) SetBalance(ctx context.Context, tenantID uuid.UUID, balance int64, paused bool) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE token_balances SET balance = $2, is_paused = $3, updated_at = now() WHERE tenant_id = $1`,
		tenantID, balance, paused,
	)
	return err
}

func (t *pgTx) SetPaused(ctx context.Context, tenantID uuid.UUID, paused bool) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE token_balances SET is_paused = $2, updated_at = now() WHERE tenant_id = $1`,
		tenantID, paused,
	)
	return err
}
