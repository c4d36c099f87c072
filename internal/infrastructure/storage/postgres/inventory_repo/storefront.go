package inventory_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
	"stocktally/internal/domain/inventory/storefront"
	"stocktally/internal/infrastructure/storage/postgres"
)

const storefrontInventoryTable = "inv_storefront_inventory"

// StorefrontRepo implements storefront.Repository.
type StorefrontRepo struct {
	builder squirrel.StatementBuilderType
}

// NewStorefrontRepo creates a new storefront inventory repository.
func NewStorefrontRepo() *StorefrontRepo {
	return &StorefrontRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *StorefrontRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

// Get returns the position, or a zero-quantity row when none exists yet.
func (r *StorefrontRepo) Get(ctx context.Context, storefrontID, productID id.ID) (*storefront.Inventory, error) {
	q := r.builder.Select("*").
		From(storefrontInventoryTable).
		Where(squirrel.Eq{"storefront_id": storefrontID, "product_id": productID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var inv storefront.Inventory
	if err := pgxscan.Get(ctx, querier, &inv, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return emptyPosition(storefrontID, productID), nil
		}
		return nil, fmt.Errorf("get storefront inventory: %w", err)
	}
	return &inv, nil
}

// GetForUpdate locks the position row. An absent row comes back as a
// zero-quantity position with a nil ID; the caller sees on_hand = 0 without
// holding any lock, which is correct because there is nothing to contend on.
func (r *StorefrontRepo) GetForUpdate(ctx context.Context, storefrontID, productID id.ID) (*storefront.Inventory, error) {
	sql := `
		SELECT * FROM inv_storefront_inventory
		WHERE storefront_id = $1 AND product_id = $2
		FOR UPDATE`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var inv storefront.Inventory
	if err := pgxscan.Get(ctx, querier, &inv, sql, storefrontID, productID); err != nil {
		if pgxscan.NotFound(err) {
			return emptyPosition(storefrontID, productID), nil
		}
		return nil, fmt.Errorf("lock storefront inventory: %w", err)
	}
	return &inv, nil
}

func emptyPosition(storefrontID, productID id.ID) *storefront.Inventory {
	return &storefront.Inventory{
		StorefrontID: storefrontID,
		ProductID:    productID,
	}
}

// UpsertAdd increments on_hand, creating the row on first receipt.
func (r *StorefrontRepo) UpsertAdd(ctx context.Context, storefrontID, productID id.ID, qty types.Quantity) error {
	sql := `
		INSERT INTO inv_storefront_inventory (storefront_id, product_id, on_hand, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (storefront_id, product_id) DO UPDATE
		SET on_hand = inv_storefront_inventory.on_hand + EXCLUDED.on_hand,
		    updated_at = now()`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, storefrontID, productID, qty); err != nil {
		return fmt.Errorf("upsert storefront inventory: %w", err)
	}
	return nil
}

// Deduct decrements on_hand. The WHERE guard keeps a racing writer from
// driving the balance negative even if the caller's check was stale.
func (r *StorefrontRepo) Deduct(ctx context.Context, storefrontID, productID id.ID, qty types.Quantity) error {
	sql := `
		UPDATE inv_storefront_inventory
		SET on_hand = on_hand - $3, updated_at = now()
		WHERE storefront_id = $1 AND product_id = $2 AND on_hand >= $3`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, storefrontID, productID, qty)
	if err != nil {
		return fmt.Errorf("deduct storefront inventory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewInsufficientStock(productID.String(), qty.String(), "0").
			WithDetail("storefront_id", storefrontID.String())
	}
	return nil
}

// ListByStorefront returns all positions at a storefront.
func (r *StorefrontRepo) ListByStorefront(ctx context.Context, storefrontID id.ID) ([]storefront.Inventory, error) {
	q := r.builder.Select("*").
		From(storefrontInventoryTable).
		Where(squirrel.Eq{"storefront_id": storefrontID}).
		OrderBy("product_id ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var items []storefront.Inventory
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list storefront inventory: %w", err)
	}
	return items, nil
}

// SumOnHand totals a product across the given storefronts.
func (r *StorefrontRepo) SumOnHand(ctx context.Context, storefrontIDs []id.ID, productID id.ID) (types.Quantity, error) {
	if len(storefrontIDs) == 0 {
		return 0, nil
	}

	q := r.builder.Select("COALESCE(SUM(on_hand), 0)").
		From(storefrontInventoryTable).
		Where(squirrel.Eq{"storefront_id": storefrontIDs, "product_id": productID})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build sum: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var total types.Quantity
	if err := querier.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum on_hand: %w", err)
	}
	return total, nil
}
