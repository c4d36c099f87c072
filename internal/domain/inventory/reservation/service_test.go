package reservation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktally/internal/core/apperror"
	appctx "stocktally/internal/core/context"
	"stocktally/internal/core/id"
	"stocktally/internal/core/tenant"
	"stocktally/internal/core/types"
	"stocktally/internal/domain/inventory/storefront"
)

// lockingTxManager serializes callbacks the way the storefront row lock
// serializes concurrent reservation transactions against one position.
type lockingTxManager struct {
	mu sync.Mutex
}

func (m *lockingTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
}

type storefrontKey struct {
	storefrontID id.ID
	productID    id.ID
}

type fakeStorefrontRepo struct {
	mu     sync.Mutex
	onHand map[storefrontKey]types.Quantity
}

func newFakeStorefrontRepo() *fakeStorefrontRepo {
	return &fakeStorefrontRepo{onHand: make(map[storefrontKey]types.Quantity)}
}

func (r *fakeStorefrontRepo) set(storefrontID, productID id.ID, qty types.Quantity) {
	r.onHand[storefrontKey{storefrontID, productID}] = qty
}

func (r *fakeStorefrontRepo) Get(_ context.Context, storefrontID, productID id.ID) (*storefront.Inventory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
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
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onHand[storefrontKey{storefrontID, productID}] += qty
	return nil
}

func (r *fakeStorefrontRepo) Deduct(_ context.Context, storefrontID, productID id.ID, qty types.Quantity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
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
	r.mu.Lock()
	defer r.mu.Unlock()
	var total types.Quantity
	for _, sfID := range storefrontIDs {
		total += r.onHand[storefrontKey{sfID, productID}]
	}
	return total, nil
}

type fakeReservationRepo struct {
	mu           sync.Mutex
	reservations map[id.ID]*Reservation
	orphanCalls  int
}

func newFakeReservationRepo() *fakeReservationRepo {
	return &fakeReservationRepo{reservations: make(map[id.ID]*Reservation)}
}

func (r *fakeReservationRepo) Create(_ context.Context, res *Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *res
	r.reservations[res.ID] = &cp
	return nil
}

func (r *fakeReservationRepo) GetByID(_ context.Context, reservationID id.ID) (*Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[reservationID]
	if !ok {
		return nil, apperror.NewNotFound("reservation", reservationID)
	}
	cp := *res
	return &cp, nil
}

func (r *fakeReservationRepo) GetByIDForUpdate(ctx context.Context, reservationID id.ID) (*Reservation, error) {
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

func (r *fakeReservationRepo) ListActiveByCart(_ context.Context, cartID id.ID, now time.Time) ([]Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Reservation
	for _, res := range r.reservations {
		if res.CartID == cartID && res.IsActive(now) {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (r *fakeReservationRepo) SetStatus(_ context.Context, reservationID id.ID, status Status, at time.Time) error {
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

func (r *fakeReservationRepo) MarkExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, res := range r.reservations {
		if res.Status == StatusActive && !res.ExpiresAt.After(now) {
			res.Status = StatusExpired
			n++
		}
	}
	return n, nil
}

func (r *fakeReservationRepo) ReleaseOrphaned(context.Context, time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphanCalls++
	return 0, nil
}

func adminCtx() context.Context {
	return appctx.WithActor(context.Background(), &appctx.Actor{
		UserID:  id.New().String(),
		IsAdmin: true,
	})
}

func newTestService(repo *fakeReservationRepo, storefronts *fakeStorefrontRepo) *Service {
	return NewService(repo, storefronts, &lockingTxManager{})
}

func TestCreate_HoldsAgainstAvailable(t *testing.T) {
	storefrontID, productID := id.New(), id.New()
	storefronts := newFakeStorefrontRepo()
	storefronts.set(storefrontID, productID, types.NewQuantityFromInt(10))
	repo := newFakeReservationRepo()
	svc := newTestService(repo, storefronts)
	ctx := adminCtx()

	first := &Reservation{
		StorefrontID: storefrontID,
		ProductID:    productID,
		CartID:       id.New(),
		Quantity:     types.NewQuantityFromInt(6),
	}
	require.NoError(t, svc.Create(ctx, first))
	assert.Equal(t, StatusActive, first.Status)
	assert.True(t, first.ExpiresAt.After(time.Now()))

	// On-hand untouched; only availability shrinks.
	avail, err := svc.Availability(ctx, storefrontID, productID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(10), avail.OnHand)
	assert.Equal(t, types.NewQuantityFromInt(6), avail.Reserved)
	assert.Equal(t, types.NewQuantityFromInt(4), avail.Available)

	second := &Reservation{
		StorefrontID: storefrontID,
		ProductID:    productID,
		CartID:       id.New(),
		Quantity:     types.NewQuantityFromInt(5),
	}
	err = svc.Create(ctx, second)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Equal(t, types.NewQuantityFromInt(4).String(), appErr.Details["available"], "error carries current availability")
}

func TestCreate_ConcurrentOversubscription(t *testing.T) {
	storefrontID, productID := id.New(), id.New()
	storefronts := newFakeStorefrontRepo()
	storefronts.set(storefrontID, productID, types.NewQuantityFromInt(10))
	repo := newFakeReservationRepo()
	svc := newTestService(repo, storefronts)
	ctx := adminCtx()

	const workers = 20
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.Create(ctx, &Reservation{
				StorefrontID: storefrontID,
				ProductID:    productID,
				CartID:       id.New(),
				Quantity:     types.NewQuantityFromInt(1),
			})
		}()
	}
	wg.Wait()
	close(results)

	var ok, insufficient int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case apperror.IsInsufficientStock(err):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 10, ok, "exactly on-hand many holds succeed")
	assert.Equal(t, 10, insufficient)
}

func TestRelease_Idempotent(t *testing.T) {
	storefrontID, productID := id.New(), id.New()
	storefronts := newFakeStorefrontRepo()
	storefronts.set(storefrontID, productID, types.NewQuantityFromInt(5))
	repo := newFakeReservationRepo()
	svc := newTestService(repo, storefronts)
	ctx := adminCtx()

	r := &Reservation{
		StorefrontID: storefrontID,
		ProductID:    productID,
		CartID:       id.New(),
		Quantity:     types.NewQuantityFromInt(2),
	}
	require.NoError(t, svc.Create(ctx, r))

	require.NoError(t, svc.Release(ctx, r.ID))
	require.NoError(t, svc.Release(ctx, r.ID), "second release is a no-op")

	got, err := svc.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReleased, got.Status)

	avail, _ := svc.Availability(ctx, storefrontID, productID)
	assert.Equal(t, types.NewQuantityFromInt(5), avail.Available)
}

func TestCommit_DecrementsOnHand(t *testing.T) {
	storefrontID, productID := id.New(), id.New()
	storefronts := newFakeStorefrontRepo()
	storefronts.set(storefrontID, productID, types.NewQuantityFromInt(5))
	repo := newFakeReservationRepo()
	svc := newTestService(repo, storefronts)
	ctx := adminCtx()

	r := &Reservation{
		StorefrontID: storefrontID,
		ProductID:    productID,
		CartID:       id.New(),
		Quantity:     types.NewQuantityFromInt(3),
	}
	require.NoError(t, svc.Create(ctx, r))
	require.NoError(t, svc.Commit(ctx, r.ID))

	avail, _ := svc.Availability(ctx, storefrontID, productID)
	assert.Equal(t, types.NewQuantityFromInt(2), avail.OnHand)
	assert.Equal(t, types.Quantity(0), avail.Reserved)

	// Committing twice is an invalid transition.
	err := svc.Commit(ctx, r.ID)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidStateTransition, appErr.Code)
}

func TestExpiredHold_SelfHeals(t *testing.T) {
	storefrontID, productID := id.New(), id.New()
	storefronts := newFakeStorefrontRepo()
	storefronts.set(storefrontID, productID, types.NewQuantityFromInt(5))
	repo := newFakeReservationRepo()
	svc := newTestService(repo, storefronts)
	ctx := adminCtx()

	r := &Reservation{
		StorefrontID: storefrontID,
		ProductID:    productID,
		CartID:       id.New(),
		Quantity:     types.NewQuantityFromInt(5),
		ExpiresAt:    time.Now().Add(10 * time.Millisecond),
	}
	require.NoError(t, svc.Create(ctx, r))

	avail, _ := svc.Availability(ctx, storefrontID, productID)
	assert.Equal(t, types.Quantity(0), avail.Available)

	time.Sleep(20 * time.Millisecond)

	// No sweep has run; the dead hold still stops counting.
	avail, _ = svc.Availability(ctx, storefrontID, productID)
	assert.Equal(t, types.NewQuantityFromInt(5), avail.Available)

	// Committing an expired hold fails even while its row still says active.
	err := svc.Commit(ctx, r.ID)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidStateTransition, appErr.Code)

	result, err := svc.ExpireSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Expired)

	got, _ := svc.GetByID(ctx, r.ID)
	assert.Equal(t, StatusExpired, got.Status)
}

func TestExpireSweep_OrphanPolicy(t *testing.T) {
	repo := newFakeReservationRepo()
	svc := newTestService(repo, newFakeStorefrontRepo())

	// Default policy blocks: orphan release must not run.
	_, err := svc.ExpireSweep(adminCtx())
	require.NoError(t, err)
	assert.Equal(t, 0, repo.orphanCalls)

	// Tenant setting switches to auto-release.
	ctx := tenant.WithTenant(adminCtx(), &tenant.Tenant{
		Settings: map[string]any{
			tenant.SettingOrphanPolicy: string(OrphanPolicyAutoRelease),
		},
	})
	_, err = svc.ExpireSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.orphanCalls)
}
