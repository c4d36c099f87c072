package inventory_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
	"stocktally/internal/domain/inventory/transfer"
	"stocktally/internal/infrastructure/storage/postgres"
)

const (
	transfersTable     = "inv_transfers"
	transferLinesTable = "inv_transfer_lines"
)

// TransferRepo implements transfer.Repository.
type TransferRepo struct {
	builder squirrel.StatementBuilderType
}

// NewTransferRepo creates a new transfer repository.
func NewTransferRepo() *TransferRepo {
	return &TransferRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *TransferRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

// Create inserts the transfer document header.
func (r *TransferRepo) Create(ctx context.Context, t *transfer.Transfer) error {
	q := r.builder.Insert(transfersTable).
		Columns(
			"id", "reference", "source_warehouse_id",
			"destination_type", "destination_warehouse_id", "destination_storefront_id",
			"status", "cancel_reason",
			"created_at", "updated_at", "completed_at", "created_by", "version",
		).
		Values(
			t.ID, t.Reference, t.SourceWarehouseID,
			t.DestinationType, t.DestinationWarehouseID, t.DestinationStorefrontID,
			t.Status, t.CancelReason,
			t.CreatedAt, t.UpdatedAt, t.CompletedAt, t.CreatedBy, t.Version,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// SaveLines replaces the line set for a transfer. Lines only change while the
// document is pending (create) or at completion (destination batch linkage),
// both under the document lock, so delete-and-insert is race-free.
func (r *TransferRepo) SaveLines(ctx context.Context, transferID id.ID, lines []transfer.Line) error {
	querier := r.getTxManager(ctx).GetQuerier(ctx)

	if _, err := querier.Exec(ctx,
		`DELETE FROM inv_transfer_lines WHERE transfer_id = $1`, transferID); err != nil {
		return fmt.Errorf("delete transfer lines: %w", err)
	}

	if len(lines) == 0 {
		return nil
	}

	q := r.builder.Insert(transferLinesTable).
		Columns("line_id", "transfer_id", "line_no", "product_id", "batch_id", "quantity", "destination_batch_id")
	for _, l := range lines {
		q = q.Values(l.LineID, transferID, l.LineNo, l.ProductID, l.BatchID, l.Quantity, l.DestinationBatchID)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert transfer lines: %w", err)
	}
	return nil
}

// GetByID returns the transfer with its lines.
func (r *TransferRepo) GetByID(ctx context.Context, transferID id.ID) (*transfer.Transfer, error) {
	q := r.builder.Select("*").
		From(transfersTable).
		Where(squirrel.Eq{"id": transferID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var t transfer.Transfer
	if err := pgxscan.Get(ctx, querier, &t, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("transfer", transferID)
		}
		return nil, fmt.Errorf("get transfer: %w", err)
	}

	lines, err := r.GetLines(ctx, transferID)
	if err != nil {
		return nil, err
	}
	t.Lines = lines
	return &t, nil
}

// GetByIDForUpdate locks the document row. Lines are not loaded; callers
// that need them fetch after taking the lock.
func (r *TransferRepo) GetByIDForUpdate(ctx context.Context, transferID id.ID) (*transfer.Transfer, error) {
	sql := `SELECT * FROM inv_transfers WHERE id = $1 FOR UPDATE`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var t transfer.Transfer
	if err := pgxscan.Get(ctx, querier, &t, sql, transferID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("transfer", transferID)
		}
		return nil, fmt.Errorf("lock transfer: %w", err)
	}
	return &t, nil
}

// GetLines returns lines in document order.
func (r *TransferRepo) GetLines(ctx context.Context, transferID id.ID) ([]transfer.Line, error) {
	q := r.builder.Select("*").
		From(transferLinesTable).
		Where(squirrel.Eq{"transfer_id": transferID}).
		OrderBy("line_no ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var lines []transfer.Line
	if err := pgxscan.Select(ctx, querier, &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get transfer lines: %w", err)
	}
	return lines, nil
}

// UpdateStatus persists a transition. The version predicate catches a
// concurrent writer that slipped between read and write.
func (r *TransferRepo) UpdateStatus(ctx context.Context, t *transfer.Transfer) error {
	q := r.builder.Update(transfersTable).
		Set("status", t.Status).
		Set("cancel_reason", t.CancelReason).
		Set("completed_at", t.CompletedAt).
		Set("updated_at", t.UpdatedAt).
		Set("version", t.Version+1).
		Where(squirrel.Eq{"id": t.ID, "version": t.Version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update transfer status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("transfer", t.ID)
	}
	t.Version++
	return nil
}

func (r *TransferRepo) applyFilter(q squirrel.SelectBuilder, f transfer.Filter) squirrel.SelectBuilder {
	if f.SourceWarehouseID != nil {
		q = q.Where(squirrel.Eq{"source_warehouse_id": *f.SourceWarehouseID})
	}
	if f.Status != nil {
		q = q.Where(squirrel.Eq{"status": *f.Status})
	}
	return q
}

// List returns transfers matching the filter, newest first, without lines.
func (r *TransferRepo) List(ctx context.Context, f transfer.Filter) ([]transfer.Transfer, error) {
	q := r.applyFilter(r.builder.Select("*").From(transfersTable), f).
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
	var items []transfer.Transfer
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	return items, nil
}

// Count returns the number of transfers matching the filter.
func (r *TransferRepo) Count(ctx context.Context, f transfer.Filter) (int64, error) {
	q := r.applyFilter(r.builder.Select("COUNT(*)").From(transfersTable), f)

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var count int64
	if err := querier.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count transfers: %w", err)
	}
	return count, nil
}

// ClaimedQuantity sums line quantities held against a batch by other
// non-terminal transfers.
func (r *TransferRepo) ClaimedQuantity(ctx context.Context, batchID id.ID, excludeTransferID id.ID) (types.Quantity, error) {
	sql := `
		SELECT COALESCE(SUM(l.quantity), 0)
		FROM inv_transfer_lines l
		JOIN inv_transfers t ON t.id = l.transfer_id
		WHERE l.batch_id = $1
		  AND t.id <> $2
		  AND t.status IN ($3, $4)`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var claimed types.Quantity
	err := querier.QueryRow(ctx, sql, batchID, excludeTransferID,
		transfer.StatusPending, transfer.StatusInTransit,
	).Scan(&claimed)
	if err != nil {
		return 0, fmt.Errorf("sum claimed quantity: %w", err)
	}
	return claimed, nil
}
