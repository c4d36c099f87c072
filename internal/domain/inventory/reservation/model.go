// Package reservation provides TTL-bound holds on storefront inventory.
package reservation

import (
	"context"
	"time"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
)

// Status is the reservation lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusReleased Status = "released"
	StatusExpired  Status = "expired"
	// StatusCommitted marks a reservation consumed by a completed sale.
	StatusCommitted Status = "committed"
)

// DefaultTTL applies when the tenant sets no reservation TTL.
const DefaultTTL = 30 * time.Minute

// Reservation is a hold against storefront inventory for a cart line.
//
// A reservation counts against availability only while status is active AND
// expires_at is in the future. Rows past their expiry are dead the moment
// the clock passes, whether or not the sweeper has flipped their status yet:
// every availability read re-applies the expiry predicate.
type Reservation struct {
	ID           id.ID `db:"id" json:"id"`
	StorefrontID id.ID `db:"storefront_id" json:"storefrontId"`
	ProductID    id.ID `db:"product_id" json:"productId"`
	CartID       id.ID `db:"cart_id" json:"cartId"`

	Quantity types.Quantity `db:"quantity" json:"quantity"`
	Status   Status         `db:"status" json:"status"`

	ExpiresAt  time.Time  `db:"expires_at" json:"expiresAt"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	ReleasedAt *time.Time `db:"released_at" json:"releasedAt,omitempty"`
	CreatedBy  string     `db:"created_by" json:"createdBy,omitempty"`
}

// IsActive reports whether the hold still counts at the given instant.
func (r *Reservation) IsActive(now time.Time) bool {
	return r.Status == StatusActive && r.ExpiresAt.After(now)
}

// Validate checks a reservation before insert.
func (r *Reservation) Validate(ctx context.Context) error {
	if id.IsNil(r.StorefrontID) {
		return apperror.NewValidation("storefront is required").
			WithDetail("field", "storefrontId")
	}
	if id.IsNil(r.ProductID) {
		return apperror.NewValidation("product is required").
			WithDetail("field", "productId")
	}
	if id.IsNil(r.CartID) {
		return apperror.NewValidation("cart is required").
			WithDetail("field", "cartId")
	}
	if !r.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}
	return nil
}
