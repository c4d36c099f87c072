package transfer

import (
	"context"

	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
)

// Filter narrows transfer listing.
type Filter struct {
	SourceWarehouseID *id.ID
	Status            *Status
	Limit             int
	Offset            int
}

// Repository defines persistence for transfer documents.
// Implemented by postgres/inventory_repo.TransferRepo.
type Repository interface {
	Create(ctx context.Context, t *Transfer) error
	SaveLines(ctx context.Context, transferID id.ID, lines []Line) error
	GetByID(ctx context.Context, transferID id.ID) (*Transfer, error)

	// GetByIDForUpdate locks the document row. Must be called inside a
	// transaction; state transitions serialize on this lock.
	GetByIDForUpdate(ctx context.Context, transferID id.ID) (*Transfer, error)

	GetLines(ctx context.Context, transferID id.ID) ([]Line, error)

	// UpdateStatus persists a transition with optimistic version check.
	UpdateStatus(ctx context.Context, t *Transfer) error

	List(ctx context.Context, f Filter) ([]Transfer, error)
	Count(ctx context.Context, f Filter) (int64, error)

	// ClaimedQuantity sums line quantities against a batch held by other
	// non-terminal transfers (pending or in_transit), excluding the given
	// transfer. Availability at create time is remaining minus this.
	ClaimedQuantity(ctx context.Context, batchID id.ID, excludeTransferID id.ID) (types.Quantity, error)
}
