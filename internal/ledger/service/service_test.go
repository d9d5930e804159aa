package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) Log(_ context.Context, _ uuid.UUID, _, action, _ string, _ map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
}

func newTestService() (*Service, *memStore, *recordingAudit) {
	store := newMemStore()
	audit := &recordingAudit{}
	return New(store, audit, nil, logger.New("development")), store, audit
}

func TestGetBalanceDefaultsForUnknownTenant(t *testing.T) {
	svc, _, _ := newTestService()

	b, err := svc.GetBalance(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, Balance{Balance: 0, IsPaused: false}, b)
}

func TestDeductRefusesWhenBalanceTooLow(t *testing.T) {
	svc, store, audit := newTestService()
	ctx := context.Background()
	tenantID := uuid.New()

	_, err := svc.TopUp(ctx, TopUpParams{TenantID: tenantID, Amount: 3, PaymentReferenceID: "pay_1"})
	require.NoError(t, err)

	_, err = svc.Deduct(ctx, DeductParams{TenantID: tenantID, Amount: 5, OperationType: "routing"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientBalance))
	assert.True(t, apperr.Is(err, apperr.KindPaymentRequired))

	b, _ := svc.GetBalance(ctx, tenantID)
	assert.Equal(t, int64(3), b.Balance)
	assert.Equal(t, int64(3), store.sumEntries(tenantID))
	assert.Equal(t, []string{"tokens.topped_up"}, audit.actions)
}

func TestDeductRejectsNonPositiveAmounts(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Deduct(context.Background(), DeductParams{TenantID: uuid.New(), Amount: 0, OperationType: "routing"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestDeductStoreFailureIsRetryLaterAndSpendsNothing(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	tenantID := uuid.New()
	_, err := svc.TopUp(ctx, TopUpParams{TenantID: tenantID, Amount: 10, PaymentReferenceID: "pay_1"})
	require.NoError(t, err)

	store.failAppend = errors.New("connection reset")
	_, err = svc.Deduct(ctx, DeductParams{TenantID: tenantID, Amount: 2, OperationType: "routing"})
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))

	store.failAppend = nil
	b, _ := svc.GetBalance(ctx, tenantID)
	assert.Equal(t, int64(10), b.Balance)
}

func TestConcurrentDeductionsNeverOverdraw(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	tenantID := uuid.New()

	const (
		amount   = 5
		k        = 7
		attempts = 20
	)
	_, err := svc.TopUp(ctx, TopUpParams{TenantID: tenantID, Amount: k * amount, PaymentReferenceID: "pay_seed"})
	require.NoError(t, err)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Deduct(ctx, DeductParams{TenantID: tenantID, Amount: amount, OperationType: "routing"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientBalance):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, k, succeeded)
	assert.Equal(t, attempts-k, insufficient)

	b, err := svc.GetBalance(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.Balance)
	assert.True(t, b.IsPaused)
	assert.Equal(t, b.Balance, store.sumEntries(tenantID))
}

func TestBalanceEqualsSumOfEntriesAfterMixedOperations(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	tenantID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.TopUp(ctx, TopUpParams{TenantID: tenantID, Amount: 3, PaymentReferenceID: uuid.NewString()})
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.Deduct(ctx, DeductParams{TenantID: tenantID, Amount: 2, OperationType: "ai_scoring"})
		}()
	}
	wg.Wait()

	b, err := svc.GetBalance(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, store.sumEntries(tenantID), b.Balance)
	assert.GreaterOrEqual(t, b.Balance, int64(0))
}

func TestTopUpClearsPause(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	tenantID := uuid.New()

	_, _ = svc.TopUp(ctx, TopUpParams{TenantID: tenantID, Amount: 1, PaymentReferenceID: "pay_1"})
	b, err := svc.Deduct(ctx, DeductParams{TenantID: tenantID, Amount: 1, OperationType: "routing"})
	require.NoError(t, err)
	require.True(t, b.IsPaused)

	b, err = svc.TopUp(ctx, TopUpParams{TenantID: tenantID, Amount: 10, PaymentReferenceID: "pay_2"})
	require.NoError(t, err)
	assert.False(t, b.IsPaused)
	assert.Equal(t, int64(10), b.Balance)
}

func TestReconcileRepairsDrift(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	tenantID := uuid.New()

	_, _ = svc.TopUp(ctx, TopUpParams{TenantID: tenantID, Amount: 8, PaymentReferenceID: "pay_1"})
	store.mu.Lock()
	b := store.balances[tenantID]
	b.Balance = 50
	store.balances[tenantID] = b
	store.mu.Unlock()

	res, err := svc.Reconcile(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.Drift)
	assert.Equal(t, int64(8), res.FromEntries)
	assert.False(t, res.IsPaused)

	got, _ := svc.GetBalance(ctx, tenantID)
	assert.Equal(t, int64(8), got.Balance)
}
