package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/battwheels/ledgercore/internal/accounting/shared"
	internalShared "github.com/battwheels/ledgercore/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	balances  map[string]Balance
	movements []Movement
	failTx    error
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{balances: make(map[string]Balance)}
}

func key(tenantID, itemCode string) string {
	return tenantID + ":" + itemCode
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTx != nil {
		return r.failTx
	}
	snapshotBalances := make(map[string]Balance, len(r.balances))
	for k, v := range r.balances {
		snapshotBalances[k] = v
	}
	snapshotMovements := len(r.movements)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.balances = snapshotBalances
		r.movements = r.movements[:snapshotMovements]
		return err
	}
	return nil
}

func (r *memoryRepo) GetBalance(ctx context.Context, tenantID, itemCode string) (Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bal, ok := r.balances[key(tenantID, itemCode)]
	if !ok {
		return Balance{}, ErrBalanceNotFound
	}
	return bal, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, tenantID, itemCode string, limit int) ([]Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Movement
	for i := len(r.movements) - 1; i >= 0 && len(out) < limit; i-- {
		m := r.movements[i]
		if m.TenantID == tenantID && m.ItemCode == itemCode {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryRepo) UpdateMovementPosting(ctx context.Context, tenantID string, id uuid.UUID, posted bool, postingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.movements {
		if r.movements[i].ID == id {
			r.movements[i].Posted = posted
			r.movements[i].PostingError = postingError
			return nil
		}
	}
	return errors.New("movement not found")
}

func (tx *memoryTx) GetBalanceForUpdate(ctx context.Context, tenantID, itemCode string) (Balance, error) {
	if bal, ok := tx.repo.balances[key(tenantID, itemCode)]; ok {
		return bal, nil
	}
	return Balance{}, ErrBalanceNotFound
}

func (tx *memoryTx) UpsertBalance(ctx context.Context, balance Balance) error {
	tx.repo.balances[key(balance.TenantID, balance.ItemCode)] = balance
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) error {
	tx.repo.movements = append(tx.repo.movements, m)
	return nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]struct{})}
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, tenantID, k, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := tenantID + "|" + k
	if _, ok := m.keys[id]; ok {
		return internalShared.ErrIdempotencyConflict
	}
	m.keys[id] = struct{}{}
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, tenantID, k string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, tenantID+"|"+k)
	return nil
}

type recordingHooks struct {
	purchased []StockPurchasedEvent
	consumed  []StockConsumedEvent
	err       error
}

func (h *recordingHooks) HandleStockPurchased(ctx context.Context, evt StockPurchasedEvent) error {
	h.purchased = append(h.purchased, evt)
	return h.err
}

func (h *recordingHooks) HandleStockConsumed(ctx context.Context, evt StockConsumedEvent) error {
	h.consumed = append(h.consumed, evt)
	return h.err
}

type recordingAudit struct {
	logs []internalShared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log internalShared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

const tenant = "org123"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestService() (*Service, *memoryRepo, *recordingHooks, *recordingAudit) {
	repo := newMemoryRepo()
	hooks := &recordingHooks{}
	audit := &recordingAudit{}
	svc := NewService(repo, audit, newMemoryIdempotency(), hooks, nil)
	svc.now = func() time.Time { return time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC) }
	return svc, repo, hooks, audit
}

func TestAverageMovingCost(t *testing.T) {
	svc, _, hooks, audit := newTestService()
	ctx := context.Background()

	res, err := svc.Receive(ctx, ReceiptInput{TenantID: tenant, ItemCode: "BRK-PAD", ItemName: "Brake pad", Qty: d("10"), UnitCost: d("100"), Reference: "GRN-1"})
	require.NoError(t, err)
	require.True(t, res.Balance.Qty.Equal(d("10")))
	require.True(t, res.Balance.AvgCost.Equal(d("100")))
	require.True(t, res.Movement.Posted)

	res, err = svc.Receive(ctx, ReceiptInput{TenantID: tenant, ItemCode: "BRK-PAD", Qty: d("5"), UnitCost: d("120"), PaidVia: PaidByCash, Reference: "GRN-2"})
	require.NoError(t, err)
	require.True(t, res.Balance.Qty.Equal(d("15")))
	require.Equal(t, "106.6667", res.Balance.AvgCost.StringFixed(4))
	require.Equal(t, "Brake pad", res.Balance.ItemName)

	res, err = svc.Consume(ctx, ConsumptionInput{TenantID: tenant, ItemCode: "BRK-PAD", Qty: d("8"), Reference: "JOB-7"})
	require.NoError(t, err)
	require.True(t, res.Balance.Qty.Equal(d("7")))
	require.Equal(t, "106.6667", res.Movement.UnitCost.StringFixed(4))
	require.Equal(t, "106.6667", res.Balance.AvgCost.StringFixed(4))
	require.True(t, res.Movement.Qty.Equal(d("8")))

	require.Len(t, hooks.purchased, 2)
	require.Equal(t, PaidByCash, hooks.purchased[1].PaidVia)
	require.Len(t, hooks.consumed, 1)
	require.Equal(t, "JOB-7", hooks.consumed[0].Reference)
	require.Equal(t, "Brake pad", hooks.consumed[0].ItemName)
	require.Equal(t, "853.33", shared.Monetary(hooks.consumed[0].Qty, hooks.consumed[0].UnitCost).StringFixed(2))
	require.Len(t, audit.logs, 3)
	require.Equal(t, "inventory:consumption", audit.logs[2].Action)
}

func TestConsumeToZeroResetsAverage(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiptInput{TenantID: tenant, ItemCode: "OIL", Qty: d("4"), UnitCost: d("350"), Reference: "GRN-1"})
	require.NoError(t, err)
	res, err := svc.Consume(ctx, ConsumptionInput{TenantID: tenant, ItemCode: "OIL", Qty: d("4"), Reference: "JOB-1"})
	require.NoError(t, err)
	require.True(t, res.Balance.Qty.IsZero())
	require.True(t, res.Balance.AvgCost.IsZero())
	require.True(t, res.Movement.UnitCost.Equal(d("350")))
}

func TestNegativeStockGuard(t *testing.T) {
	svc, repo, hooks, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Consume(ctx, ConsumptionInput{TenantID: tenant, ItemCode: "BRK-PAD", Qty: d("1"), Reference: "JOB-1"})
	require.ErrorIs(t, err, ErrNegativeStock)

	_, err = svc.Receive(ctx, ReceiptInput{TenantID: tenant, ItemCode: "BRK-PAD", Qty: d("2"), UnitCost: d("100"), Reference: "GRN-1"})
	require.NoError(t, err)
	_, err = svc.Consume(ctx, ConsumptionInput{TenantID: tenant, ItemCode: "BRK-PAD", Qty: d("3"), Reference: "JOB-2"})
	require.ErrorIs(t, err, ErrNegativeStock)
	require.Empty(t, hooks.consumed)

	bal, err := repo.GetBalance(ctx, tenant, "BRK-PAD")
	require.NoError(t, err)
	require.True(t, bal.Qty.Equal(d("2")))

	// the failed reference is released and can be retried
	_, err = svc.Receive(ctx, ReceiptInput{TenantID: tenant, ItemCode: "BRK-PAD", Qty: d("1"), UnitCost: d("100"), Reference: "GRN-2"})
	require.NoError(t, err)
	_, err = svc.Consume(ctx, ConsumptionInput{TenantID: tenant, ItemCode: "BRK-PAD", Qty: d("3"), Reference: "JOB-2"})
	require.NoError(t, err)
}

func TestDuplicateReference(t *testing.T) {
	svc, repo, hooks, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiptInput{TenantID: tenant, ItemCode: "BRK-PAD", Qty: d("10"), UnitCost: d("100"), Reference: "GRN-1"})
	require.NoError(t, err)
	_, err = svc.Receive(ctx, ReceiptInput{TenantID: tenant, ItemCode: "BRK-PAD", Qty: d("10"), UnitCost: d("100"), Reference: "GRN-1"})
	require.ErrorIs(t, err, ErrDuplicateMovement)
	require.Len(t, hooks.purchased, 1)
	require.Len(t, repo.movements, 1)

	// other tenants keep their own references
	_, err = svc.Receive(ctx, ReceiptInput{TenantID: "org456", ItemCode: "BRK-PAD", Qty: d("1"), UnitCost: d("90"), Reference: "GRN-1"})
	require.NoError(t, err)
}

func TestPostingFailureKeepsMovement(t *testing.T) {
	svc, repo, hooks, _ := newTestService()
	hooks.err = fmt.Errorf("%w: pool closed", shared.ErrStorageUnavailable)
	ctx := context.Background()

	res, err := svc.Receive(ctx, ReceiptInput{TenantID: tenant, ItemCode: "BRK-PAD", Qty: d("10"), UnitCost: d("100"), Reference: "GRN-1"})
	require.NoError(t, err)
	require.NotNil(t, res.PostError)
	require.True(t, res.PostError.Retryable)
	require.False(t, res.Movement.Posted)
	require.Contains(t, res.Movement.PostingError, "stock receipt recorded but journal posting pending")

	movements, err := repo.ListMovements(ctx, tenant, "BRK-PAD", 10)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.False(t, movements[0].Posted)
	require.Equal(t, res.Movement.PostingError, movements[0].PostingError)
	require.True(t, res.Balance.Qty.Equal(d("10")))
}

func TestMovementValidation(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiptInput{ItemCode: "X", Qty: d("1"), UnitCost: d("1")})
	require.ErrorIs(t, err, shared.ErrTenantRequired)
	_, err = svc.Receive(ctx, ReceiptInput{TenantID: tenant, ItemCode: "X", Qty: d("0"), UnitCost: d("1")})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.Receive(ctx, ReceiptInput{TenantID: tenant, ItemCode: "X", Qty: d("1"), UnitCost: d("-1")})
	require.ErrorIs(t, err, ErrInvalidUnitCost)
	_, err = svc.Receive(ctx, ReceiptInput{TenantID: tenant, ItemCode: "X", Qty: d("1"), UnitCost: d("1"), PaidVia: "card"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = svc.Consume(ctx, ConsumptionInput{TenantID: tenant, ItemCode: " ", Qty: d("1")})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	require.Empty(t, repo.movements)
}

func TestStorageFailureReleasesKey(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.failTx = errors.New("connection reset")
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiptInput{TenantID: tenant, ItemCode: "X", Qty: d("1"), UnitCost: d("1"), Reference: "GRN-9"})
	require.Error(t, err)

	repo.failTx = nil
	_, err = svc.Receive(ctx, ReceiptInput{TenantID: tenant, ItemCode: "X", Qty: d("1"), UnitCost: d("1"), Reference: "GRN-9"})
	require.NoError(t, err)
}
