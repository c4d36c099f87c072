package inventory_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/domain/inventory/adjustment"
	"stocktally/internal/infrastructure/storage/postgres"
)

const adjustmentsTable = "inv_adjustments"

// AdjustmentRepo implements adjustment.Repository. The table is append-only;
// there is deliberately no UPDATE or DELETE here.
type AdjustmentRepo struct {
	builder squirrel.StatementBuilderType
}

// NewAdjustmentRepo creates a new adjustment ledger repository.
func NewAdjustmentRepo() *AdjustmentRepo {
	return &AdjustmentRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *AdjustmentRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

// Create appends a ledger entry.
func (r *AdjustmentRepo) Create(ctx context.Context, a *adjustment.Adjustment) error {
	q := r.builder.Insert(adjustmentsTable).
		Columns(
			"id", "batch_id", "kind", "status", "quantity",
			"reason", "reference", "occurred_at", "created_at", "created_by",
		).
		Values(
			a.ID, a.BatchID, a.Kind, a.Status, a.Quantity,
			a.Reason, a.Reference, a.OccurredAt, a.CreatedAt, a.CreatedBy,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert adjustment: %w", err)
	}
	return nil
}

// GetByID returns the entry or a NotFound error.
func (r *AdjustmentRepo) GetByID(ctx context.Context, adjustmentID id.ID) (*adjustment.Adjustment, error) {
	q := r.builder.Select("*").
		From(adjustmentsTable).
		Where(squirrel.Eq{"id": adjustmentID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var a adjustment.Adjustment
	if err := pgxscan.Get(ctx, querier, &a, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("adjustment", adjustmentID)
		}
		return nil, fmt.Errorf("get adjustment: %w", err)
	}
	return &a, nil
}

func (r *AdjustmentRepo) applyFilter(q squirrel.SelectBuilder, f adjustment.Filter) squirrel.SelectBuilder {
	if f.BatchID != nil {
		q = q.Where(squirrel.Eq{"a.batch_id": *f.BatchID})
	}
	if f.ProductID != nil {
		q = q.Where(squirrel.Eq{"b.product_id": *f.ProductID})
	}
	if f.Kind != nil {
		q = q.Where(squirrel.Eq{"a.kind": *f.Kind})
	}
	if f.Reference != "" {
		q = q.Where(squirrel.Eq{"a.reference": f.Reference})
	}
	return q
}

// List returns entries matching the filter, newest first. The batch table is
// joined so the product filter works without denormalizing product onto the
// ledger.
func (r *AdjustmentRepo) List(ctx context.Context, f adjustment.Filter) ([]adjustment.Adjustment, error) {
	q := r.applyFilter(
		r.builder.Select("a.*").
			From(adjustmentsTable+" a").
			Join(stockBatchesTable+" b ON b.id = a.batch_id"),
		f,
	).OrderBy("a.occurred_at DESC", "a.id DESC")

	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var items []adjustment.Adjustment
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	return items, nil
}

// Count returns the number of entries matching the filter.
func (r *AdjustmentRepo) Count(ctx context.Context, f adjustment.Filter) (int64, error) {
	q := r.applyFilter(
		r.builder.Select("COUNT(*)").
			From(adjustmentsTable+" a").
			Join(stockBatchesTable+" b ON b.id = a.batch_id"),
		f,
	)

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var count int64
	if err := querier.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count adjustments: %w", err)
	}
	return count, nil
}

// ListByReference returns all entries sharing a reference, in entry order.
func (r *AdjustmentRepo) ListByReference(ctx context.Context, reference string) ([]adjustment.Adjustment, error) {
	q := r.builder.Select("*").
		From(adjustmentsTable).
		Where(squirrel.Eq{"reference": reference}).
		OrderBy("created_at ASC", "id ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var items []adjustment.Adjustment
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list adjustments by reference: %w", err)
	}
	return items, nil
}

// SumTotals aggregates completed non-transfer adjustments for a product at a
// warehouse, split by sign: negative entries feed shrinkage (as a positive
// magnitude), positive entries feed correction.
func (r *AdjustmentRepo) SumTotals(ctx context.Context, productID, warehouseID id.ID) (adjustment.Totals, error) {
	sql := `
		SELECT
			COALESCE(SUM(CASE WHEN a.quantity < 0 THEN -a.quantity ELSE 0 END), 0) AS shrinkage,
			COALESCE(SUM(CASE WHEN a.quantity > 0 THEN a.quantity ELSE 0 END), 0)  AS correction
		FROM inv_adjustments a
		JOIN inv_stock_batches b ON b.id = a.batch_id
		WHERE b.product_id = $1
		  AND b.warehouse_id = $2
		  AND a.status = $3
		  AND a.kind <> $4`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var totals adjustment.Totals
	err := querier.QueryRow(ctx, sql, productID, warehouseID,
		adjustment.StatusCompleted, adjustment.KindTransferLeg,
	).Scan(&totals.Shrinkage, &totals.Correction)
	if err != nil {
		return adjustment.Totals{}, fmt.Errorf("sum adjustment totals: %w", err)
	}
	return totals, nil
}
