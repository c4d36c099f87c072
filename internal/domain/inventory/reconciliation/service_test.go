package reconciliation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
	"stocktally/internal/domain/inventory/adjustment"
	"stocktally/internal/domain/inventory/batch"
	"stocktally/internal/domain/inventory/movement"
	"stocktally/internal/domain/inventory/reservation"
	"stocktally/internal/domain/inventory/storefront"
)

// fixture backs all five repositories with fixed sums.
type fixture struct {
	recorded    types.Quantity
	remaining   types.Quantity
	onHand      types.Quantity
	sold        types.Quantity
	shrinkage   types.Quantity
	correction  types.Quantity
	reserved    types.Quantity
}

func (f *fixture) Create(context.Context, *batch.StockBatch) error { return nil }
func (f *fixture) GetByID(context.Context, id.ID) (*batch.StockBatch, error) {
	return nil, nil
}
func (f *fixture) GetByIDForUpdate(context.Context, id.ID) (*batch.StockBatch, error) {
	return nil, nil
}
func (f *fixture) ApplyDelta(context.Context, id.ID, types.Quantity) error { return nil }
func (f *fixture) List(context.Context, batch.Filter) ([]batch.StockBatch, error) {
	return nil, nil
}
func (f *fixture) Count(context.Context, batch.Filter) (int64, error) { return 0, nil }
func (f *fixture) SumRemaining(context.Context, id.ID, id.ID) (types.Quantity, error) {
	return f.remaining, nil
}
func (f *fixture) SumRecorded(context.Context, id.ID, id.ID) (types.Quantity, error) {
	return f.recorded, nil
}

type sfFixture struct{ f *fixture }

func (s sfFixture) Get(context.Context, id.ID, id.ID) (*storefront.Inventory, error) {
	return nil, nil
}
func (s sfFixture) GetForUpdate(context.Context, id.ID, id.ID) (*storefront.Inventory, error) {
	return nil, nil
}
func (s sfFixture) UpsertAdd(context.Context, id.ID, id.ID, types.Quantity) error { return nil }
func (s sfFixture) Deduct(context.Context, id.ID, id.ID, types.Quantity) error    { return nil }
func (s sfFixture) ListByStorefront(context.Context, id.ID) ([]storefront.Inventory, error) {
	return nil, nil
}
func (s sfFixture) SumOnHand(context.Context, []id.ID, id.ID) (types.Quantity, error) {
	return s.f.onHand, nil
}

type adjFixture struct{ f *fixture }

func (a adjFixture) Create(context.Context, *adjustment.Adjustment) error { return nil }
func (a adjFixture) GetByID(context.Context, id.ID) (*adjustment.Adjustment, error) {
	return nil, nil
}
func (a adjFixture) List(context.Context, adjustment.Filter) ([]adjustment.Adjustment, error) {
	return nil, nil
}
func (a adjFixture) Count(context.Context, adjustment.Filter) (int64, error) { return 0, nil }
func (a adjFixture) ListByReference(context.Context, string) ([]adjustment.Adjustment, error) {
	return nil, nil
}
func (a adjFixture) SumTotals(context.Context, id.ID, id.ID) (adjustment.Totals, error) {
	return adjustment.Totals{Shrinkage: a.f.shrinkage, Correction: a.f.correction}, nil
}

type resFixture struct{ f *fixture }

func (r resFixture) Create(context.Context, *reservation.Reservation) error { return nil }
func (r resFixture) GetByID(context.Context, id.ID) (*reservation.Reservation, error) {
	return nil, nil
}
func (r resFixture) GetByIDForUpdate(context.Context, id.ID) (*reservation.Reservation, error) {
	return nil, nil
}
func (r resFixture) SumActive(context.Context, id.ID, id.ID, time.Time) (types.Quantity, error) {
	return r.f.reserved, nil
}
func (r resFixture) SumActiveForStorefronts(context.Context, []id.ID, id.ID, time.Time) (types.Quantity, error) {
	return r.f.reserved, nil
}
func (r resFixture) ListActiveByCart(context.Context, id.ID, time.Time) ([]reservation.Reservation, error) {
	return nil, nil
}
func (r resFixture) SetStatus(context.Context, id.ID, reservation.Status, time.Time) error {
	return nil
}
func (r resFixture) MarkExpired(context.Context, time.Time) (int64, error)    { return 0, nil }
func (r resFixture) ReleaseOrphaned(context.Context, time.Time) (int64, error) { return 0, nil }

type movFixture struct{ f *fixture }

func (m movFixture) List(context.Context, movement.Filter) ([]movement.Record, error) {
	return nil, nil
}
func (m movFixture) Count(context.Context, movement.Filter) (int64, error) { return 0, nil }
func (m movFixture) Summarize(context.Context, movement.Filter) ([]movement.KindSummary, error) {
	return nil, nil
}
func (m movFixture) SumSold(context.Context, []id.ID, id.ID, time.Time) (types.Quantity, error) {
	return m.f.sold, nil
}

func newFixtureService(f *fixture) *Service {
	return NewService(f, sfFixture{f}, adjFixture{f}, resFixture{f}, movFixture{f})
}

func TestCheck_IdentityHolds(t *testing.T) {
	// Recorded 100; 40 transferred out to a storefront; 15 sold there;
	// 5 lost to shrinkage and 2 found by correction at the warehouse;
	// 3 units currently reserved.
	f := &fixture{
		recorded:   types.NewQuantityFromInt(100),
		remaining:  types.NewQuantityFromInt(57), // 100 - 40 - 5 + 2
		onHand:     types.NewQuantityFromInt(25), // 40 - 15
		sold:       types.NewQuantityFromInt(15),
		shrinkage:  types.NewQuantityFromInt(5),
		correction: types.NewQuantityFromInt(2),
		reserved:   types.NewQuantityFromInt(3),
	}
	svc := newFixtureService(f)

	result, err := svc.Check(context.Background(), id.New(), id.New(), []id.ID{id.New()})
	require.NoError(t, err)

	assert.Equal(t, types.NewQuantityFromInt(100), result.Baseline)
	assert.Equal(t, types.Quantity(0), result.Delta)
	assert.True(t, result.Consistent())
	assert.Equal(t, types.NewQuantityFromInt(3), result.ActiveReservations,
		"holds are reported but never shift the baseline")
}

func TestCheck_SurfacesDelta(t *testing.T) {
	// Ten units vanished without a ledger entry.
	f := &fixture{
		recorded:  types.NewQuantityFromInt(100),
		remaining: types.NewQuantityFromInt(90),
	}
	svc := newFixtureService(f)

	result, err := svc.Check(context.Background(), id.New(), id.New(), nil)
	require.NoError(t, err)

	assert.False(t, result.Consistent())
	assert.Equal(t, types.NewQuantityFromInt(10), result.Delta)

	breakdown := result.Breakdown()
	assert.Equal(t, types.NewQuantityFromInt(10).String(), breakdown["delta"])
	assert.Equal(t, types.NewQuantityFromInt(100).String(), breakdown["recorded"])
}
