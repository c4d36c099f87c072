// Package storefront provides per-storefront sellable inventory rows.
package storefront

import (
	"time"

	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
)

// Inventory is the sellable quantity of one product at one storefront.
//
// Rows are created lazily by the first transfer-in; OnHand never goes
// negative. Reservations do not touch OnHand: available-to-promise is
// derived at read time as OnHand minus active reservations.
// The position is keyed by (storefront_id, product_id); it carries no
// surrogate id.
type Inventory struct {
	StorefrontID id.ID `db:"storefront_id" json:"storefrontId"`
	ProductID    id.ID `db:"product_id" json:"productId"`

	OnHand types.Quantity `db:"on_hand" json:"onHand"`

	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Availability is the read-time view of a storefront position.
type Availability struct {
	StorefrontID id.ID          `json:"storefrontId"`
	ProductID    id.ID          `json:"productId"`
	OnHand       types.Quantity `json:"onHand"`
	Reserved     types.Quantity `json:"reserved"`
	Available    types.Quantity `json:"available"`
}
