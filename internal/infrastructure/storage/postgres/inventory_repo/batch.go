// Package inventory_repo provides PostgreSQL implementations for inventory
// repositories. In the database-per-tenant architecture, TxManager is
// obtained from context.
package inventory_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
	"stocktally/internal/domain/inventory/batch"
	"stocktally/internal/infrastructure/storage/postgres"
)

const stockBatchesTable = "inv_stock_batches"

// BatchRepo implements batch.Repository.
type BatchRepo struct {
	builder squirrel.StatementBuilderType
}

// NewBatchRepo creates a new stock batch repository.
func NewBatchRepo() *BatchRepo {
	return &BatchRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *BatchRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

// Create inserts a new batch.
func (r *BatchRepo) Create(ctx context.Context, b *batch.StockBatch) error {
	q := r.builder.Insert(stockBatchesTable).
		Columns(
			"id", "product_id", "warehouse_id",
			"recorded_quantity", "remaining_quantity",
			"unit_cost", "retail_price", "wholesale_price",
			"received_at", "created_at", "updated_at", "created_by", "version",
		).
		Values(
			b.ID, b.ProductID, b.WarehouseID,
			b.RecordedQuantity, b.RemainingQuantity,
			b.UnitCost, b.RetailPrice, b.WholesalePrice,
			b.ReceivedAt, b.CreatedAt, b.UpdatedAt, b.CreatedBy, b.Version,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// GetByID returns the batch or a NotFound error.
func (r *BatchRepo) GetByID(ctx context.Context, batchID id.ID) (*batch.StockBatch, error) {
	q := r.builder.Select("*").
		From(stockBatchesTable).
		Where(squirrel.Eq{"id": batchID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var b batch.StockBatch
	if err := pgxscan.Get(ctx, querier, &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("stock batch", batchID)
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &b, nil
}

// GetByIDForUpdate locks the batch row for the current transaction.
func (r *BatchRepo) GetByIDForUpdate(ctx context.Context, batchID id.ID) (*batch.StockBatch, error) {
	sql := `SELECT * FROM inv_stock_batches WHERE id = $1 FOR UPDATE`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var b batch.StockBatch
	if err := pgxscan.Get(ctx, querier, &b, sql, batchID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("stock batch", batchID)
		}
		return nil, fmt.Errorf("lock batch: %w", err)
	}
	return &b, nil
}

// ApplyDelta moves remaining_quantity by delta. The database check constraint
// backs up the service-level non-negativity validation.
func (r *BatchRepo) ApplyDelta(ctx context.Context, batchID id.ID, delta types.Quantity) error {
	sql := `
		UPDATE inv_stock_batches
		SET remaining_quantity = remaining_quantity + $2,
		    updated_at = now(),
		    version = version + 1
		WHERE id = $1`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, batchID, delta)
	if err != nil {
		return fmt.Errorf("apply batch delta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("stock batch", batchID)
	}
	return nil
}

func (r *BatchRepo) applyFilter(q squirrel.SelectBuilder, f batch.Filter) squirrel.SelectBuilder {
	if f.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *f.ProductID})
	}
	if f.WarehouseID != nil {
		q = q.Where(squirrel.Eq{"warehouse_id": *f.WarehouseID})
	}
	if f.NonEmpty {
		q = q.Where(squirrel.Gt{"remaining_quantity": 0})
	}
	return q
}

// List returns batches matching the filter, oldest receipt first.
func (r *BatchRepo) List(ctx context.Context, f batch.Filter) ([]batch.StockBatch, error) {
	q := r.applyFilter(r.builder.Select("*").From(stockBatchesTable), f).
		OrderBy("received_at ASC", "id ASC")

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
	var batches []batch.StockBatch
	if err := pgxscan.Select(ctx, querier, &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

// Count returns the number of batches matching the filter.
func (r *BatchRepo) Count(ctx context.Context, f batch.Filter) (int64, error) {
	q := r.applyFilter(r.builder.Select("COUNT(*)").From(stockBatchesTable), f)

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var count int64
	if err := querier.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count batches: %w", err)
	}
	return count, nil
}

// SumRemaining returns the live warehouse balance for a product.
func (r *BatchRepo) SumRemaining(ctx context.Context, productID, warehouseID id.ID) (types.Quantity, error) {
	return r.sumColumn(ctx, "remaining_quantity", productID, warehouseID)
}

// SumRecorded returns the as-received total for a product at a warehouse.
func (r *BatchRepo) SumRecorded(ctx context.Context, productID, warehouseID id.ID) (types.Quantity, error) {
	return r.sumColumn(ctx, "recorded_quantity", productID, warehouseID)
}

func (r *BatchRepo) sumColumn(ctx context.Context, column string, productID, warehouseID id.ID) (types.Quantity, error) {
	q := r.builder.Select(fmt.Sprintf("COALESCE(SUM(%s), 0)", column)).
		From(stockBatchesTable).
		Where(squirrel.Eq{"product_id": productID, "warehouse_id": warehouseID})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build sum: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var total types.Quantity
	if err := querier.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum %s: %w", column, err)
	}
	return total, nil
}
