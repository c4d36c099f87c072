package sales

import (
	"context"

	"stocktally/internal/core/id"
)

// Filter narrows sale listing.
type Filter struct {
	StorefrontID *id.ID
	Status       *Status
	Limit        int
	Offset       int
}

// Repository defines persistence for sale orders.
// Implemented by postgres/sales_repo.SaleRepo.
type Repository interface {
	Create(ctx context.Context, s *SaleOrder) error
	GetByID(ctx context.Context, saleID id.ID) (*SaleOrder, error)

	// GetByIDForUpdate locks the sale row. Complete and Cancel serialize
	// on it. Must be called inside a transaction.
	GetByIDForUpdate(ctx context.Context, saleID id.ID) (*SaleOrder, error)

	GetLines(ctx context.Context, saleID id.ID) ([]SaleLine, error)
	SaveLines(ctx context.Context, saleID id.ID, lines []SaleLine) error
	DeleteLine(ctx context.Context, saleID, lineID id.ID) error

	// Update persists status, totals and timestamps with a version check.
	Update(ctx context.Context, s *SaleOrder) error

	List(ctx context.Context, f Filter) ([]SaleOrder, error)
	Count(ctx context.Context, f Filter) (int64, error)
}
