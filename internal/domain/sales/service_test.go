package sales

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktally/internal/core/apperror"
	appctx "stocktally/internal/core/context"
	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
	"stocktally/internal/domain/inventory/reservation"
	"stocktally/internal/domain/inventory/storefront"
	"stocktally/pkg/numerator"
)

type stubTxManager struct{}

func (stubTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type seqRow struct{ val int64 }

func (r *seqRow) Scan(dest ...any) error {
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = r.val
		}
	}
	return nil
}

type seqQuerier struct{ current int64 }

func (q *seqQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	increment := int64(1)
	if len(args) == 2 {
		if v, ok := args[1].(int64); ok {
			increment = v
		}
	}
	q.current += increment
	return &seqRow{val: q.current}
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

func (r *fakeStorefrontRepo) set(storefrontID, productID id.ID, qty types.Quantity) {
	r.onHand[storefrontKey{storefrontID, productID}] = qty
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

type fakeReservationRepo struct {
	mu           sync.Mutex
	reservations map[id.ID]*reservation.Reservation
}

func newFakeReservationRepo() *fakeReservationRepo {
	return &fakeReservationRepo{reservations: make(map[id.ID]*reservation.Reservation)}
}

func (r *fakeReservationRepo) Create(_ context.Context, res *reservation.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *res
	r.reservations[res.ID] = &cp
	return nil
}

func (r *fakeReservationRepo) GetByID(_ context.Context, reservationID id.ID) (*reservation.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[reservationID]
	if !ok {
		return nil, apperror.NewNotFound("reservation", reservationID)
	}
	cp := *res
	return &cp, nil
}

func (r *fakeReservationRepo) GetByIDForUpdate(ctx context.Context, reservationID id.ID) (*reservation.Reservation, error) {
	return r.GetByID(ctx, reservationID)
}

func (r *fakeReservationRepo) SumActive(_ context.Context, storefrontID, productID id.ID, now time.Time) (types.Quantity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total types.Quantity
	for _, res := range r.reservations {
		if res.StorefrontID == storefrontID && res.ProductID == productID && res.IsActive(now) {
			total += res.Quantity
		}
	}
	return total, nil
}

func (r *fakeReservationRepo) SumActiveForStorefronts(ctx context.Context, storefrontIDs []id.ID, productID id.ID, now time.Time) (types.Quantity, error) {
	var total types.Quantity
	for _, sfID := range storefrontIDs {
		q, err := r.SumActive(ctx, sfID, productID, now)
		if err != nil {
			return 0, err
		}
		total += q
	}
	return total, nil
}

func (r *fakeReservationRepo) ListActiveByCart(_ context.Context, cartID id.ID, now time.Time) ([]reservation.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []reservation.Reservation
	for _, res := range r.reservations {
		if res.CartID == cartID && res.IsActive(now) {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (r *fakeReservationRepo) SetStatus(_ context.Context, reservationID id.ID, status reservation.Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[reservationID]
	if !ok {
		return apperror.NewNotFound("reservation", reservationID)
	}
	res.Status = status
	res.ReleasedAt = &at
	return nil
}

func (r *fakeReservationRepo) MarkExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeReservationRepo) ReleaseOrphaned(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeSaleRepo struct {
	sales map[id.ID]*SaleOrder
	lines map[id.ID][]SaleLine
}

func newFakeSaleRepo() *fakeSaleRepo {
	return &fakeSaleRepo{
		sales: make(map[id.ID]*SaleOrder),
		lines: make(map[id.ID][]SaleLine),
	}
}

func (r *fakeSaleRepo) Create(_ context.Context, s *SaleOrder) error {
	cp := *s
	r.sales[s.ID] = &cp
	return nil
}

func (r *fakeSaleRepo) GetByID(_ context.Context, saleID id.ID) (*SaleOrder, error) {
	s, ok := r.sales[saleID]
	if !ok {
		return nil, apperror.NewNotFound("sale", saleID)
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSaleRepo) GetByIDForUpdate(ctx context.Context, saleID id.ID) (*SaleOrder, error) {
	return r.GetByID(ctx, saleID)
}

func (r *fakeSaleRepo) GetLines(_ context.Context, saleID id.ID) ([]SaleLine, error) {
	return append([]SaleLine(nil), r.lines[saleID]...), nil
}

func (r *fakeSaleRepo) SaveLines(_ context.Context, saleID id.ID, lines []SaleLine) error {
	r.lines[saleID] = append([]SaleLine(nil), lines...)
	return nil
}

func (r *fakeSaleRepo) DeleteLine(_ context.Context, saleID, lineID id.ID) error {
	kept := make([]SaleLine, 0, len(r.lines[saleID]))
	for _, l := range r.lines[saleID] {
		if l.LineID != lineID {
			kept = append(kept, l)
		}
	}
	r.lines[saleID] = kept
	return nil
}

func (r *fakeSaleRepo) Update(_ context.Context, s *SaleOrder) error {
	cp := *s
	r.sales[s.ID] = &cp
	return nil
}

func (r *fakeSaleRepo) List(context.Context, Filter) ([]SaleOrder, error) { return nil, nil }
func (r *fakeSaleRepo) Count(context.Context, Filter) (int64, error)     { return 0, nil }

type testEnv struct {
	sales        *Service
	reservations *reservation.Service
	storefronts  *fakeStorefrontRepo
	holds        *fakeReservationRepo
	repo         *fakeSaleRepo
}

func newTestEnv() *testEnv {
	storefronts := newFakeStorefrontRepo()
	holds := newFakeReservationRepo()
	repo := newFakeSaleRepo()
	resSvc := reservation.NewService(holds, storefronts, stubTxManager{})
	num := numerator.New(&seqQuerier{})
	return &testEnv{
		sales:        NewService(repo, resSvc, num, stubTxManager{}),
		reservations: resSvc,
		storefronts:  storefronts,
		holds:        holds,
		repo:         repo,
	}
}

func adminCtx() context.Context {
	return appctx.WithActor(context.Background(), &appctx.Actor{
		UserID:  id.New().String(),
		IsAdmin: true,
	})
}

func TestSale_HappyPath(t *testing.T) {
	env := newTestEnv()
	ctx := adminCtx()
	storefrontID, productID := id.New(), id.New()

	// 30 units transferred in earlier.
	env.storefronts.set(storefrontID, productID, types.NewQuantityFromInt(30))

	sale, err := env.sales.CreateDraft(ctx, storefrontID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, sale.Status)
	assert.NotEmpty(t, sale.Number)

	line, err := env.sales.AddLine(ctx, sale.ID, productID, types.NewQuantityFromInt(5), types.MustMoney("9.99"))
	require.NoError(t, err)
	assert.False(t, id.IsNil(line.ReservationID))

	// Hold counts against availability, on-hand untouched.
	avail, err := env.reservations.Availability(ctx, storefrontID, productID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(30), avail.OnHand)
	assert.Equal(t, types.NewQuantityFromInt(25), avail.Available)

	require.NoError(t, env.sales.Complete(ctx, sale.ID))

	// On-hand dropped, hold consumed.
	avail, _ = env.reservations.Availability(ctx, storefrontID, productID)
	assert.Equal(t, types.NewQuantityFromInt(25), avail.OnHand)
	assert.Equal(t, types.Quantity(0), avail.Reserved)

	hold, err := env.reservations.GetByID(ctx, line.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusCommitted, hold.Status)

	final, err := env.sales.GetByID(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	require.NotNil(t, final.CompletedAt)
	assert.Equal(t, types.NewQuantityFromInt(5), final.TotalQuantity)
	assert.True(t, final.TotalAmount.Equal(types.MustMoney("49.95")))
}

func TestAddLine_InsufficientStockAborts(t *testing.T) {
	env := newTestEnv()
	ctx := adminCtx()
	storefrontID, productID := id.New(), id.New()
	env.storefronts.set(storefrontID, productID, types.NewQuantityFromInt(2))

	sale, err := env.sales.CreateDraft(ctx, storefrontID)
	require.NoError(t, err)

	_, err = env.sales.AddLine(ctx, sale.ID, productID, types.NewQuantityFromInt(3), types.MustMoney("1.00"))
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	lines, _ := env.repo.GetLines(ctx, sale.ID)
	assert.Empty(t, lines, "no line persisted on failed reservation")
}

func TestCancel_ReleasesHolds(t *testing.T) {
	env := newTestEnv()
	ctx := adminCtx()
	storefrontID, productID := id.New(), id.New()
	env.storefronts.set(storefrontID, productID, types.NewQuantityFromInt(10))

	sale, err := env.sales.CreateDraft(ctx, storefrontID)
	require.NoError(t, err)
	line, err := env.sales.AddLine(ctx, sale.ID, productID, types.NewQuantityFromInt(4), types.MustMoney("2.50"))
	require.NoError(t, err)

	require.NoError(t, env.sales.Cancel(ctx, sale.ID))

	hold, err := env.reservations.GetByID(ctx, line.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusReleased, hold.Status)

	avail, _ := env.reservations.Availability(ctx, storefrontID, productID)
	assert.Equal(t, types.NewQuantityFromInt(10), avail.Available)

	// Terminal carts reject further mutation.
	_, err = env.sales.AddLine(ctx, sale.ID, productID, types.NewQuantityFromInt(1), types.MustMoney("1.00"))
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidStateTransition, appErr.Code)
}

func TestComplete_EmptySaleRejected(t *testing.T) {
	env := newTestEnv()
	ctx := adminCtx()

	sale, err := env.sales.CreateDraft(ctx, id.New())
	require.NoError(t, err)

	err = env.sales.Complete(ctx, sale.ID)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}
