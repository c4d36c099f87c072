package batch

import (
	"context"

	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
)

// Filter narrows batch listing.
type Filter struct {
	ProductID   *id.ID
	WarehouseID *id.ID
	// NonEmpty keeps only batches with remaining_quantity > 0.
	NonEmpty bool
	Limit    int
	Offset   int
}

// Repository defines persistence for stock batches.
// Implemented by postgres/inventory_repo.BatchRepo.
type Repository interface {
	Create(ctx context.Context, b *StockBatch) error
	GetByID(ctx context.Context, batchID id.ID) (*StockBatch, error)

	// GetByIDForUpdate locks the batch row (SELECT ... FOR UPDATE).
	// Must be called inside a transaction.
	GetByIDForUpdate(ctx context.Context, batchID id.ID) (*StockBatch, error)

	// ApplyDelta adds delta to remaining_quantity and bumps version.
	// Callers hold the row lock and have already validated non-negativity.
	ApplyDelta(ctx context.Context, batchID id.ID, delta types.Quantity) error

	List(ctx context.Context, f Filter) ([]StockBatch, error)
	Count(ctx context.Context, f Filter) (int64, error)

	// SumRemaining returns total remaining quantity for product at warehouse.
	SumRemaining(ctx context.Context, productID, warehouseID id.ID) (types.Quantity, error)

	// SumRecorded returns total recorded (as-received) quantity for product at warehouse.
	SumRecorded(ctx context.Context, productID, warehouseID id.ID) (types.Quantity, error)
}
