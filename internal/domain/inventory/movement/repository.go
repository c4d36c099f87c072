package movement

import (
	"context"
	"time"

	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
)

// Repository reads the merged feed. There is no write side: the feed is a
// UNION over the adjustment ledger, completed transfer lines and completed
// sale lines, assembled in SQL.
// Implemented by postgres/inventory_repo.MovementRepo.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Record, error)
	Count(ctx context.Context, f Filter) (int64, error)
	Summarize(ctx context.Context, f Filter) ([]KindSummary, error)

	// SumSold returns units sold of a product through the given storefronts
	// up to the given instant. Feeds the reconciliation sold term.
	SumSold(ctx context.Context, storefrontIDs []id.ID, productID id.ID, until time.Time) (types.Quantity, error)
}
