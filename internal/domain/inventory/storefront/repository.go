package storefront

import (
	"context"

	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
)

// Repository defines persistence for storefront inventory.
// Implemented by postgres/inventory_repo.StorefrontRepo.
type Repository interface {
	// Get returns the row for storefront+product, or a zero-quantity row
	// when none exists yet (lazy-create semantics).
	Get(ctx context.Context, storefrontID, productID id.ID) (*Inventory, error)

	// GetForUpdate locks the row (SELECT ... FOR UPDATE). Returns a
	// zero-quantity row with a nil ID when none exists; reservation checks
	// against an absent row see on_hand = 0.
	// Must be called inside a transaction.
	GetForUpdate(ctx context.Context, storefrontID, productID id.ID) (*Inventory, error)

	// UpsertAdd increments on_hand, inserting the row if absent.
	UpsertAdd(ctx context.Context, storefrontID, productID id.ID, qty types.Quantity) error

	// Deduct decrements on_hand. Callers hold the row lock and have already
	// verified the balance; the UPDATE still guards on_hand >= qty and
	// reports affected rows so a violation surfaces as an error.
	Deduct(ctx context.Context, storefrontID, productID id.ID, qty types.Quantity) error

	// ListByStorefront returns all positions at a storefront.
	ListByStorefront(ctx context.Context, storefrontID id.ID) ([]Inventory, error)

	// SumOnHand returns total on_hand for a product across the given storefronts.
	SumOnHand(ctx context.Context, storefrontIDs []id.ID, productID id.ID) (types.Quantity, error)
}
