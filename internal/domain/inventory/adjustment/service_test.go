package adjustment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/core/tenant"
	"stocktally/internal/core/types"
	"stocktally/internal/domain/inventory/batch"
)

// stubTxManager runs the callback directly; rollback behavior is exercised
// against a real database, not here.
type stubTxManager struct{}

func (stubTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeBatchRepo struct {
	batches map[id.ID]*batch.StockBatch
}

func newFakeBatchRepo(items ...*batch.StockBatch) *fakeBatchRepo {
	r := &fakeBatchRepo{batches: make(map[id.ID]*batch.StockBatch)}
	for _, b := range items {
		r.batches[b.ID] = b
	}
	return r
}

func (r *fakeBatchRepo) Create(_ context.Context, b *batch.StockBatch) error {
	r.batches[b.ID] = b
	return nil
}

func (r *fakeBatchRepo) GetByID(_ context.Context, batchID id.ID) (*batch.StockBatch, error) {
	b, ok := r.batches[batchID]
	if !ok {
		return nil, apperror.NewNotFound("stock_batch", batchID)
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBatchRepo) GetByIDForUpdate(ctx context.Context, batchID id.ID) (*batch.StockBatch, error) {
	return r.GetByID(ctx, batchID)
}

func (r *fakeBatchRepo) ApplyDelta(_ context.Context, batchID id.ID, delta types.Quantity) error {
	b, ok := r.batches[batchID]
	if !ok {
		return apperror.NewNotFound("stock_batch", batchID)
	}
	b.RemainingQuantity += delta
	b.Version++
	return nil
}

func (r *fakeBatchRepo) List(context.Context, batch.Filter) ([]batch.StockBatch, error) {
	return nil, nil
}

func (r *fakeBatchRepo) Count(context.Context, batch.Filter) (int64, error) { return 0, nil }

func (r *fakeBatchRepo) SumRemaining(_ context.Context, productID, warehouseID id.ID) (types.Quantity, error) {
	var total types.Quantity
	for _, b := range r.batches {
		if b.ProductID == productID && b.WarehouseID == warehouseID {
			total += b.RemainingQuantity
		}
	}
	return total, nil
}

func (r *fakeBatchRepo) SumRecorded(_ context.Context, productID, warehouseID id.ID) (types.Quantity, error) {
	var total types.Quantity
	for _, b := range r.batches {
		if b.ProductID == productID && b.WarehouseID == warehouseID {
			total += b.RecordedQuantity
		}
	}
	return total, nil
}

type fakeLedger struct {
	entries []*Adjustment
}

func (l *fakeLedger) Create(_ context.Context, a *Adjustment) error {
	l.entries = append(l.entries, a)
	return nil
}

func (l *fakeLedger) GetByID(_ context.Context, adjustmentID id.ID) (*Adjustment, error) {
	for _, a := range l.entries {
		if a.ID == adjustmentID {
			return a, nil
		}
	}
	return nil, apperror.NewNotFound("adjustment", adjustmentID)
}

func (l *fakeLedger) List(context.Context, Filter) ([]Adjustment, error) { return nil, nil }
func (l *fakeLedger) Count(context.Context, Filter) (int64, error)      { return 0, nil }

func (l *fakeLedger) ListByReference(_ context.Context, reference string) ([]Adjustment, error) {
	var out []Adjustment
	for _, a := range l.entries {
		if a.Reference == reference {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (l *fakeLedger) SumTotals(context.Context, id.ID, id.ID) (Totals, error) {
	return Totals{}, nil
}

func newTestService(batches *fakeBatchRepo, ledger *fakeLedger) *Service {
	return NewService(ledger, batches, nil, stubTxManager{})
}

func TestApply_MovesRemainingAndAppends(t *testing.T) {
	b := batch.NewStockBatch(id.New(), id.New(), types.NewQuantityFromInt(10))
	batches := newFakeBatchRepo(b)
	ledger := &fakeLedger{}
	svc := newTestService(batches, ledger)

	a := &Adjustment{
		BatchID:   b.ID,
		Kind:      KindDamage,
		Quantity:  types.NewQuantityFromInt(3).Neg(),
		Reason:    "dropped pallet",
		Reference: "ADJ-2026-00001",
	}
	require.NoError(t, svc.Apply(context.Background(), a))

	got, err := batches.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(7), got.RemainingQuantity)
	assert.Equal(t, types.NewQuantityFromInt(10), got.RecordedQuantity, "recorded is immutable")
	require.Len(t, ledger.entries, 1)
	assert.False(t, ledger.entries[0].OccurredAt.IsZero())
}

func TestApply_WouldGoNegative(t *testing.T) {
	b := batch.NewStockBatch(id.New(), id.New(), types.NewQuantityFromInt(2))
	batches := newFakeBatchRepo(b)
	ledger := &fakeLedger{}
	svc := newTestService(batches, ledger)

	a := &Adjustment{
		BatchID:   b.ID,
		Kind:      KindTheft,
		Quantity:  types.NewQuantityFromInt(5).Neg(),
		Reference: "ADJ-2026-00002",
	}
	err := svc.Apply(context.Background(), a)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeWouldGoNegative, appErr.Code)

	// Ledger untouched, balance untouched.
	assert.Empty(t, ledger.entries)
	got, _ := batches.GetByID(context.Background(), b.ID)
	assert.Equal(t, types.NewQuantityFromInt(2), got.RemainingQuantity)
}

func TestApply_KindSignValidation(t *testing.T) {
	b := batch.NewStockBatch(id.New(), id.New(), types.NewQuantityFromInt(10))
	svc := newTestService(newFakeBatchRepo(b), &fakeLedger{})

	err := svc.Apply(context.Background(), &Adjustment{
		BatchID:   b.ID,
		Kind:      KindDamage,
		Quantity:  types.NewQuantityFromInt(3), // positive damage is invalid
		Reference: "ADJ-2026-00003",
	})
	require.Error(t, err)

	err = svc.Apply(context.Background(), &Adjustment{
		BatchID:   b.ID,
		Kind:      KindFound,
		Quantity:  types.NewQuantityFromInt(1).Neg(),
		Reference: "ADJ-2026-00004",
	})
	require.Error(t, err)
}

func TestApply_TenantPolicyBlocksKind(t *testing.T) {
	b := batch.NewStockBatch(id.New(), id.New(), types.NewQuantityFromInt(10))
	svc := newTestService(newFakeBatchRepo(b), &fakeLedger{})

	ctx := tenant.WithTenant(context.Background(), &tenant.Tenant{
		Settings: map[string]any{
			tenant.SettingMutationPolicy: `kind != "theft"`,
		},
	})

	err := svc.Apply(ctx, &Adjustment{
		BatchID:   b.ID,
		Kind:      KindTheft,
		Quantity:  types.NewQuantityFromInt(1).Neg(),
		Reference: "ADJ-2026-00005",
	})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodePolicyViolation, appErr.Code)
}

func TestApplyTransferPair_SharedReference(t *testing.T) {
	productID := id.New()
	src := batch.NewStockBatch(productID, id.New(), types.NewQuantityFromInt(10))
	dst := batch.NewStockBatch(productID, id.New(), types.NewQuantityFromInt(5))
	batches := newFakeBatchRepo(src, dst)
	ledger := &fakeLedger{}
	svc := newTestService(batches, ledger)

	err := svc.ApplyTransferPair(context.Background(), src.ID, dst.ID,
		types.NewQuantityFromInt(4), "TRF-LEGACY-7", time.Now())
	require.NoError(t, err)

	legs, err := ledger.ListByReference(context.Background(), "TRF-LEGACY-7")
	require.NoError(t, err)
	require.Len(t, legs, 2)
	assert.Equal(t, types.Quantity(0), legs[0].Quantity+legs[1].Quantity, "legs cancel out")

	gotSrc, _ := batches.GetByID(context.Background(), src.ID)
	gotDst, _ := batches.GetByID(context.Background(), dst.ID)
	assert.Equal(t, types.NewQuantityFromInt(6), gotSrc.RemainingQuantity)
	assert.Equal(t, types.NewQuantityFromInt(9), gotDst.RemainingQuantity)
}
