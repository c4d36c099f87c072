package inventory_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
	"stocktally/internal/domain/inventory/movement"
	"stocktally/internal/infrastructure/storage/postgres"
)

// movementFeedSQL assembles the merged feed: completed ledger entries at
// their batch's warehouse, completed transfers as an out row at the source
// and an in row at the destination, and completed sale lines at their
// storefront. Legacy paired legs recorded in the ledger surface as transfer
// movements so the feed reads uniformly across eras.
const movementFeedSQL = `
	SELECT a.id AS source_id,
	       CASE WHEN a.kind = 'transfer_leg' THEN 'transfer' ELSE 'adjustment' END AS kind,
	       b.product_id,
	       ABS(a.quantity) AS quantity,
	       CASE WHEN a.quantity < 0 THEN 'out' ELSE 'in' END AS direction,
	       'warehouse' AS location_type,
	       b.warehouse_id AS location_id,
	       a.reference,
	       a.occurred_at
	FROM inv_adjustments a
	JOIN inv_stock_batches b ON b.id = a.batch_id
	WHERE a.status = 'completed'

	UNION ALL

	SELECT l.line_id, 'transfer', l.product_id, l.quantity, 'out',
	       'warehouse', t.source_warehouse_id, t.reference, t.completed_at
	FROM inv_transfer_lines l
	JOIN inv_transfers t ON t.id = l.transfer_id
	WHERE t.status = 'completed'

	UNION ALL

	SELECT l.line_id, 'transfer', l.product_id, l.quantity, 'in',
	       t.destination_type::text,
	       COALESCE(t.destination_warehouse_id, t.destination_storefront_id),
	       t.reference, t.completed_at
	FROM inv_transfer_lines l
	JOIN inv_transfers t ON t.id = l.transfer_id
	WHERE t.status = 'completed'

	UNION ALL

	SELECT l.line_id, 'sale', l.product_id, l.quantity, 'out',
	       'storefront', s.storefront_id, s.number, s.completed_at
	FROM sale_lines l
	JOIN sale_orders s ON s.id = l.sale_id
	WHERE s.status = 'completed'`

// movementFilterSQL applies the shared filter set over the assembled feed.
// Unset filters arrive as NULL and fall through.
const movementFilterSQL = `
	WHERE ($1::uuid IS NULL OR product_id = $1)
	  AND ($2::uuid IS NULL OR (location_type = 'warehouse' AND location_id = $2))
	  AND ($3::uuid IS NULL OR (location_type = 'storefront' AND location_id = $3))
	  AND ($4::text IS NULL OR kind = $4)
	  AND ($5::timestamptz IS NULL OR occurred_at >= $5)
	  AND ($6::timestamptz IS NULL OR occurred_at < $6)`

// MovementRepo implements movement.Repository. Read-only: nothing writes to
// the feed directly; it is a view over the transactional tables.
type MovementRepo struct{}

// NewMovementRepo creates a new movement feed repository.
func NewMovementRepo() *MovementRepo {
	return &MovementRepo{}
}

func (r *MovementRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

func movementFilterArgs(f movement.Filter) []any {
	args := make([]any, 6)
	if f.ProductID != nil {
		args[0] = *f.ProductID
	}
	if f.WarehouseID != nil {
		args[1] = *f.WarehouseID
	}
	if f.StorefrontID != nil {
		args[2] = *f.StorefrontID
	}
	if f.Kind != nil {
		args[3] = string(*f.Kind)
	}
	if f.From != nil {
		args[4] = *f.From
	}
	if f.To != nil {
		args[5] = *f.To
	}
	return args
}

// List returns feed records in chronological order. Records sharing an
// occurred_at timestamp order by source_id, which is time-sortable.
func (r *MovementRepo) List(ctx context.Context, f movement.Filter) ([]movement.Record, error) {
	sql := `SELECT * FROM (` + movementFeedSQL + `) feed` + movementFilterSQL + `
		ORDER BY occurred_at ASC, source_id ASC, direction DESC
		LIMIT $7 OFFSET $8`

	args := append(movementFilterArgs(f), f.Limit, f.Offset)

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var records []movement.Record
	if err := pgxscan.Select(ctx, querier, &records, sql, args...); err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return records, nil
}

// Count returns the number of feed records matching the filter.
func (r *MovementRepo) Count(ctx context.Context, f movement.Filter) (int64, error) {
	sql := `SELECT COUNT(*) FROM (` + movementFeedSQL + `) feed` + movementFilterSQL

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var count int64
	if err := querier.QueryRow(ctx, sql, movementFilterArgs(f)...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count movements: %w", err)
	}
	return count, nil
}

// Summarize aggregates the filtered feed per kind.
func (r *MovementRepo) Summarize(ctx context.Context, f movement.Filter) ([]movement.KindSummary, error) {
	sql := `SELECT kind, COUNT(*) AS count,
		       COALESCE(SUM(quantity) FILTER (WHERE direction = 'in'), 0)  AS units_in,
		       COALESCE(SUM(quantity) FILTER (WHERE direction = 'out'), 0) AS units_out
		FROM (` + movementFeedSQL + `) feed` + movementFilterSQL + `
		GROUP BY kind
		ORDER BY kind`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var summaries []movement.KindSummary
	if err := pgxscan.Select(ctx, querier, &summaries, sql, movementFilterArgs(f)...); err != nil {
		return nil, fmt.Errorf("summarize movements: %w", err)
	}
	return summaries, nil
}

// SumSold totals completed sale quantities for a product through the given
// storefronts up to the given instant.
func (r *MovementRepo) SumSold(ctx context.Context, storefrontIDs []id.ID, productID id.ID, until time.Time) (types.Quantity, error) {
	if len(storefrontIDs) == 0 {
		return 0, nil
	}

	sql := `
		SELECT COALESCE(SUM(l.quantity), 0)
		FROM sale_lines l
		JOIN sale_orders s ON s.id = l.sale_id
		WHERE s.status = 'completed'
		  AND s.storefront_id = ANY($1)
		  AND l.product_id = $2
		  AND s.completed_at <= $3`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var total types.Quantity
	if err := querier.QueryRow(ctx, sql, storefrontIDs, productID, until).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum sold: %w", err)
	}
	return total, nil
}
