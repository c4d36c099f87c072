package transfer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
	"stocktally/internal/domain/inventory/batch"
	"stocktally/internal/domain/inventory/storefront"
)

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
	return nil
}

func (r *fakeBatchRepo) List(context.Context, batch.Filter) ([]batch.StockBatch, error) {
	return nil, nil
}
func (r *fakeBatchRepo) Count(context.Context, batch.Filter) (int64, error) { return 0, nil }
func (r *fakeBatchRepo) SumRemaining(context.Context, id.ID, id.ID) (types.Quantity, error) {
	return 0, nil
}
func (r *fakeBatchRepo) SumRecorded(context.Context, id.ID, id.ID) (types.Quantity, error) {
	return 0, nil
}

type storefrontKey struct {
	storefrontID id.ID
	productID    id.ID
}

type fakeStorefrontRepo struct {
	onHand map[storefrontKey]types.Quantity
}

func newFakeStorefrontRepo() *fakeStorefrontRepo {
	return &fakeStorefrontRepo{onHand: make(map[storefrontKey]types.Quantity)}
}

func (r *fakeStorefrontRepo) Get(_ context.Context, storefrontID, productID id.ID) (*storefront.Inventory, error) {
	return &storefront.Inventory{
		StorefrontID: storefrontID,
		ProductID:    productID,
		OnHand:       r.onHand[storefrontKey{storefrontID, productID}],
	}, nil
}

func (r *fakeStorefrontRepo) GetForUpdate(ctx context.Context, storefrontID, productID id.ID) (*storefront.Inventory, error) {
	return r.Get(ctx, storefrontID, productID)
}

func (r *fakeStorefrontRepo) UpsertAdd(_ context.Context, storefrontID, productID id.ID, qty types.Quantity) error {
	r.onHand[storefrontKey{storefrontID, productID}] += qty
	return nil
}

func (r *fakeStorefrontRepo) Deduct(_ context.Context, storefrontID, productID id.ID, qty types.Quantity) error {
	key := storefrontKey{storefrontID, productID}
	if r.onHand[key] < qty {
		return apperror.NewWouldGoNegative(productID.String(), qty.Neg().String(), r.onHand[key].String())
	}
	r.onHand[key] -= qty
	return nil
}

func (r *fakeStorefrontRepo) ListByStorefront(context.Context, id.ID) ([]storefront.Inventory, error) {
	return nil, nil
}

func (r *fakeStorefrontRepo) SumOnHand(_ context.Context, storefrontIDs []id.ID, productID id.ID) (types.Quantity, error) {
	var total types.Quantity
	for _, sfID := range storefrontIDs {
		total += r.onHand[storefrontKey{sfID, productID}]
	}
	return total, nil
}

type fakeTransferRepo struct {
	transfers map[id.ID]*Transfer
	lines     map[id.ID][]Line
}

func newFakeTransferRepo() *fakeTransferRepo {
	return &fakeTransferRepo{
		transfers: make(map[id.ID]*Transfer),
		lines:     make(map[id.ID][]Line),
	}
}

func (r *fakeTransferRepo) Create(_ context.Context, t *Transfer) error {
	cp := *t
	r.transfers[t.ID] = &cp
	return nil
}

func (r *fakeTransferRepo) SaveLines(_ context.Context, transferID id.ID, lines []Line) error {
	r.lines[transferID] = append([]Line(nil), lines...)
	return nil
}

func (r *fakeTransferRepo) GetByID(_ context.Context, transferID id.ID) (*Transfer, error) {
	t, ok := r.transfers[transferID]
	if !ok {
		return nil, apperror.NewNotFound("transfer", transferID)
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTransferRepo) GetByIDForUpdate(ctx context.Context, transferID id.ID) (*Transfer, error) {
	return r.GetByID(ctx, transferID)
}

func (r *fakeTransferRepo) GetLines(_ context.Context, transferID id.ID) ([]Line, error) {
	return append([]Line(nil), r.lines[transferID]...), nil
}

func (r *fakeTransferRepo) UpdateStatus(_ context.Context, t *Transfer) error {
	cp := *t
	r.transfers[t.ID] = &cp
	return nil
}

func (r *fakeTransferRepo) List(context.Context, Filter) ([]Transfer, error) { return nil, nil }
func (r *fakeTransferRepo) Count(context.Context, Filter) (int64, error)    { return 0, nil }

func (r *fakeTransferRepo) ClaimedQuantity(_ context.Context, batchID id.ID, excludeTransferID id.ID) (types.Quantity, error) {
	var total types.Quantity
	for trID, lines := range r.lines {
		t := r.transfers[trID]
		if t == nil || t.ID == excludeTransferID || t.Status.IsTerminal() {
			continue
		}
		for _, line := range lines {
			if line.BatchID == batchID {
				total += line.Quantity
			}
		}
	}
	return total, nil
}

func newTestService(batches *fakeBatchRepo, storefronts *fakeStorefrontRepo, repo *fakeTransferRepo) *Service {
	return NewService(repo, batches, storefronts, nil, stubTxManager{})
}

func TestCreate_ClaimsReduceAvailability(t *testing.T) {
	ctx := context.Background()
	warehouseID := id.New()
	b := batch.NewStockBatch(id.New(), warehouseID, types.NewQuantityFromInt(10))
	batches := newFakeBatchRepo(b)
	repo := newFakeTransferRepo()
	svc := newTestService(batches, newFakeStorefrontRepo(), repo)

	first := NewTransfer(warehouseID).ToStorefront(id.New())
	first.Reference = "TRF-2026-00001"
	first.AddLine(b.ProductID, b.ID, types.NewQuantityFromInt(7))
	require.NoError(t, svc.Create(ctx, first))

	// Nothing moved yet.
	got, _ := batches.GetByID(ctx, b.ID)
	assert.Equal(t, types.NewQuantityFromInt(10), got.RemainingQuantity)

	// Second transfer sees only 3 available.
	second := NewTransfer(warehouseID).ToStorefront(id.New())
	second.Reference = "TRF-2026-00002"
	second.AddLine(b.ProductID, b.ID, types.NewQuantityFromInt(5))
	err := svc.Create(ctx, second)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	within := NewTransfer(warehouseID).ToStorefront(id.New())
	within.Reference = "TRF-2026-00003"
	within.AddLine(b.ProductID, b.ID, types.NewQuantityFromInt(3))
	require.NoError(t, svc.Create(ctx, within))
}

func TestCreate_LinesOnSameBatchClaimJointly(t *testing.T) {
	ctx := context.Background()
	warehouseID := id.New()
	b := batch.NewStockBatch(id.New(), warehouseID, types.NewQuantityFromInt(10))
	batches := newFakeBatchRepo(b)
	repo := newFakeTransferRepo()
	svc := newTestService(batches, newFakeStorefrontRepo(), repo)

	// Each line fits on its own; together they exceed the batch.
	tr := NewTransfer(warehouseID).ToStorefront(id.New())
	tr.Reference = "TRF-2026-00004"
	tr.AddLine(b.ProductID, b.ID, types.NewQuantityFromInt(6))
	tr.AddLine(b.ProductID, b.ID, types.NewQuantityFromInt(6))
	err := svc.Create(ctx, tr)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	// Lines that jointly consume the batch exactly still pass.
	exact := NewTransfer(warehouseID).ToStorefront(id.New())
	exact.Reference = "TRF-2026-00005"
	exact.AddLine(b.ProductID, b.ID, types.NewQuantityFromInt(6))
	exact.AddLine(b.ProductID, b.ID, types.NewQuantityFromInt(4))
	require.NoError(t, svc.Create(ctx, exact))
}

func TestComplete_StorefrontDestination(t *testing.T) {
	ctx := context.Background()
	warehouseID := id.New()
	storefrontID := id.New()
	b := batch.NewStockBatch(id.New(), warehouseID, types.NewQuantityFromInt(10))
	batches := newFakeBatchRepo(b)
	storefronts := newFakeStorefrontRepo()
	repo := newFakeTransferRepo()
	svc := newTestService(batches, storefronts, repo)

	tr := NewTransfer(warehouseID).ToStorefront(storefrontID)
	tr.Reference = "TRF-2026-00010"
	tr.AddLine(b.ProductID, b.ID, types.NewQuantityFromInt(4))
	require.NoError(t, svc.Create(ctx, tr))
	require.NoError(t, svc.Dispatch(ctx, tr.ID))
	require.NoError(t, svc.Complete(ctx, tr.ID))

	got, _ := batches.GetByID(ctx, b.ID)
	assert.Equal(t, types.NewQuantityFromInt(6), got.RemainingQuantity)

	// Storefront row lazily created with the transferred quantity.
	inv, err := storefronts.Get(ctx, storefrontID, b.ProductID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(4), inv.OnHand)

	final, err := repo.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	require.NotNil(t, final.CompletedAt)
}

func TestComplete_WarehouseDestinationCreatesBatch(t *testing.T) {
	ctx := context.Background()
	srcWarehouse := id.New()
	dstWarehouse := id.New()
	b := batch.NewStockBatch(id.New(), srcWarehouse, types.NewQuantityFromInt(10))
	b.UnitCost = types.MustMoney("2.00")
	b.RetailPrice = types.MustMoney("5.00")
	batches := newFakeBatchRepo(b)
	repo := newFakeTransferRepo()
	svc := newTestService(batches, newFakeStorefrontRepo(), repo)

	tr := NewTransfer(srcWarehouse).ToWarehouse(dstWarehouse)
	tr.Reference = "TRF-2026-00020"
	tr.AddLine(b.ProductID, b.ID, types.NewQuantityFromInt(6))
	require.NoError(t, svc.Create(ctx, tr))
	require.NoError(t, svc.Complete(ctx, tr.ID))

	lines, err := repo.GetLines(ctx, tr.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.NotNil(t, lines[0].DestinationBatchID)

	dst, err := batches.GetByID(ctx, *lines[0].DestinationBatchID)
	require.NoError(t, err)
	assert.Equal(t, dstWarehouse, dst.WarehouseID)
	assert.Equal(t, types.NewQuantityFromInt(6), dst.RecordedQuantity)
	assert.Equal(t, types.NewQuantityFromInt(6), dst.RemainingQuantity)
	assert.True(t, dst.UnitCost.Equal(b.UnitCost), "costs carry over")

	src, _ := batches.GetByID(ctx, b.ID)
	assert.Equal(t, types.NewQuantityFromInt(4), src.RemainingQuantity)
}

func TestComplete_RevalidatesSource(t *testing.T) {
	ctx := context.Background()
	warehouseID := id.New()
	b := batch.NewStockBatch(id.New(), warehouseID, types.NewQuantityFromInt(10))
	batches := newFakeBatchRepo(b)
	repo := newFakeTransferRepo()
	svc := newTestService(batches, newFakeStorefrontRepo(), repo)

	tr := NewTransfer(warehouseID).ToStorefront(id.New())
	tr.Reference = "TRF-2026-00030"
	tr.AddLine(b.ProductID, b.ID, types.NewQuantityFromInt(8))
	require.NoError(t, svc.Create(ctx, tr))

	// Stock adjusted away between create and complete.
	require.NoError(t, batches.ApplyDelta(ctx, b.ID, types.NewQuantityFromInt(5).Neg()))

	err := svc.Complete(ctx, tr.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))
}

func TestCancel_TerminalTransferRejected(t *testing.T) {
	ctx := context.Background()
	warehouseID := id.New()
	b := batch.NewStockBatch(id.New(), warehouseID, types.NewQuantityFromInt(10))
	repo := newFakeTransferRepo()
	svc := newTestService(newFakeBatchRepo(b), newFakeStorefrontRepo(), repo)

	tr := NewTransfer(warehouseID).ToStorefront(id.New())
	tr.Reference = "TRF-2026-00040"
	tr.AddLine(b.ProductID, b.ID, types.NewQuantityFromInt(2))
	require.NoError(t, svc.Create(ctx, tr))
	require.NoError(t, svc.Complete(ctx, tr.ID))

	err := svc.Cancel(ctx, tr.ID, "too late")
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidStateTransition, appErr.Code)
}
