package adjustment

import (
	"context"

	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
)

// Filter narrows ledger listing.
type Filter struct {
	BatchID   *id.ID
	ProductID *id.ID
	Kind      *Kind
	Reference string
	Limit     int
	Offset    int
}

// Totals aggregates completed non-transfer adjustments for reconciliation,
// split by sign: Shrinkage is the magnitude of the negative entries (units
// lost), Correction the sum of the positive ones.
type Totals struct {
	Shrinkage  types.Quantity
	Correction types.Quantity
}

// Repository defines persistence for the adjustment ledger.
// The ledger is append-only: no Update or Delete.
// Implemented by postgres/inventory_repo.AdjustmentRepo.
type Repository interface {
	Create(ctx context.Context, a *Adjustment) error
	GetByID(ctx context.Context, adjustmentID id.ID) (*Adjustment, error)
	List(ctx context.Context, f Filter) ([]Adjustment, error)
	Count(ctx context.Context, f Filter) (int64, error)

	// ListByReference returns all entries sharing a reference, e.g. both
	// legs of a legacy paired transfer.
	ListByReference(ctx context.Context, reference string) ([]Adjustment, error)

	// SumTotals aggregates non-transfer adjustments for a product at a
	// warehouse (joined through the batch table).
	SumTotals(ctx context.Context, productID, warehouseID id.ID) (Totals, error)
}
