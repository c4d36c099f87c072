// Package sales_repo provides PostgreSQL implementations for sales
// repositories. In the database-per-tenant architecture, TxManager is
// obtained from context.
package sales_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/domain/sales"
	"stocktally/internal/infrastructure/storage/postgres"
)

const (
	saleOrdersTable = "sale_orders"
	saleLinesTable  = "sale_lines"
)

// SaleRepo implements sales.Repository.
type SaleRepo struct {
	builder squirrel.StatementBuilderType
}

// NewSaleRepo creates a new sale order repository.
func NewSaleRepo() *SaleRepo {
	return &SaleRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *SaleRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

// Create inserts the sale order header.
func (r *SaleRepo) Create(ctx context.Context, s *sales.SaleOrder) error {
	q := r.builder.Insert(saleOrdersTable).
		Columns(
			"id", "number", "storefront_id", "status",
			"total_quantity", "total_amount",
			"created_at", "updated_at", "completed_at", "created_by", "version",
		).
		Values(
			s.ID, s.Number, s.StorefrontID, s.Status,
			s.TotalQuantity, s.TotalAmount,
			s.CreatedAt, s.UpdatedAt, s.CompletedAt, s.CreatedBy, s.Version,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

// GetByID returns the sale with its lines.
func (r *SaleRepo) GetByID(ctx context.Context, saleID id.ID) (*sales.SaleOrder, error) {
	q := r.builder.Select("*").
		From(saleOrdersTable).
		Where(squirrel.Eq{"id": saleID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var s sales.SaleOrder
	if err := pgxscan.Get(ctx, querier, &s, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("sale", saleID)
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}

	lines, err := r.GetLines(ctx, saleID)
	if err != nil {
		return nil, err
	}
	s.Lines = lines
	return &s, nil
}

// GetByIDForUpdate locks the sale row. Lines are fetched separately after
// the lock is held.
func (r *SaleRepo) GetByIDForUpdate(ctx context.Context, saleID id.ID) (*sales.SaleOrder, error) {
	sql := `SELECT * FROM sale_orders WHERE id = $1 FOR UPDATE`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var s sales.SaleOrder
	if err := pgxscan.Get(ctx, querier, &s, sql, saleID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("sale", saleID)
		}
		return nil, fmt.Errorf("lock sale: %w", err)
	}
	return &s, nil
}

// GetLines returns lines in document order.
func (r *SaleRepo) GetLines(ctx context.Context, saleID id.ID) ([]sales.SaleLine, error) {
	q := r.builder.Select("*").
		From(saleLinesTable).
		Where(squirrel.Eq{"sale_id": saleID}).
		OrderBy("line_no ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var lines []sales.SaleLine
	if err := pgxscan.Select(ctx, querier, &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get sale lines: %w", err)
	}
	return lines, nil
}

// SaveLines replaces the line set. Lines only change while the sale is a
// draft and the caller holds the document lock.
func (r *SaleRepo) SaveLines(ctx context.Context, saleID id.ID, lines []sales.SaleLine) error {
	querier := r.getTxManager(ctx).GetQuerier(ctx)

	if _, err := querier.Exec(ctx,
		`DELETE FROM sale_lines WHERE sale_id = $1`, saleID); err != nil {
		return fmt.Errorf("delete sale lines: %w", err)
	}

	if len(lines) == 0 {
		return nil
	}

	q := r.builder.Insert(saleLinesTable).
		Columns("line_id", "sale_id", "line_no", "product_id", "quantity", "unit_price", "amount", "reservation_id")
	for _, l := range lines {
		q = q.Values(l.LineID, saleID, l.LineNo, l.ProductID, l.Quantity, l.UnitPrice, l.Amount, l.ReservationID)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert sale lines: %w", err)
	}
	return nil
}

// DeleteLine removes one line from a draft.
func (r *SaleRepo) DeleteLine(ctx context.Context, saleID, lineID id.ID) error {
	sql := `DELETE FROM sale_lines WHERE sale_id = $1 AND line_id = $2`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, saleID, lineID)
	if err != nil {
		return fmt.Errorf("delete sale line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("sale line", lineID)
	}
	return nil
}

// Update persists status, totals and timestamps with a version check.
func (r *SaleRepo) Update(ctx context.Context, s *sales.SaleOrder) error {
	q := r.builder.Update(saleOrdersTable).
		Set("status", s.Status).
		Set("total_quantity", s.TotalQuantity).
		Set("total_amount", s.TotalAmount).
		Set("updated_at", s.UpdatedAt).
		Set("completed_at", s.CompletedAt).
		Set("version", s.Version+1).
		Where(squirrel.Eq{"id": s.ID, "version": s.Version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("sale", s.ID)
	}
	s.Version++
	return nil
}

func (r *SaleRepo) applyFilter(q squirrel.SelectBuilder, f sales.Filter) squirrel.SelectBuilder {
	if f.StorefrontID != nil {
		q = q.Where(squirrel.Eq{"storefront_id": *f.StorefrontID})
	}
	if f.Status != nil {
		q = q.Where(squirrel.Eq{"status": *f.Status})
	}
	return q
}

// List returns sales matching the filter, newest first, without lines.
func (r *SaleRepo) List(ctx context.Context, f sales.Filter) ([]sales.SaleOrder, error) {
	q := r.applyFilter(r.builder.Select("*").From(saleOrdersTable), f).
		OrderBy("created_at DESC", "id DESC")

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
	var items []sales.SaleOrder
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return items, nil
}

// Count returns the number of sales matching the filter.
func (r *SaleRepo) Count(ctx context.Context, f sales.Filter) (int64, error) {
	q := r.applyFilter(r.builder.Select("COUNT(*)").From(saleOrdersTable), f)

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var count int64
	if err := querier.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count sales: %w", err)
	}
	return count, nil
}
