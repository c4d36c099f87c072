package reservation

import (
	"context"
	"time"

	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
)

// Repository defines persistence for reservations.
// Implemented by postgres/inventory_repo.ReservationRepo.
type Repository interface {
	Create(ctx context.Context, r *Reservation) error
	GetByID(ctx context.Context, reservationID id.ID) (*Reservation, error)

	// GetByIDForUpdate locks the reservation row. Must be called inside a
	// transaction; release/commit serialize on this lock.
	GetByIDForUpdate(ctx context.Context, reservationID id.ID) (*Reservation, error)

	// SumActive sums holds for storefront+product that count at the given
	// instant: status = active AND expires_at > now.
	SumActive(ctx context.Context, storefrontID, productID id.ID, now time.Time) (types.Quantity, error)

	// SumActiveForStorefronts is SumActive across a storefront set, for
	// reconciliation.
	SumActiveForStorefronts(ctx context.Context, storefrontIDs []id.ID, productID id.ID, now time.Time) (types.Quantity, error)

	ListActiveByCart(ctx context.Context, cartID id.ID, now time.Time) ([]Reservation, error)

	// SetStatus finalizes a reservation (released, expired or committed).
	SetStatus(ctx context.Context, reservationID id.ID, status Status, at time.Time) error

	// MarkExpired flips active rows whose expiry has passed. Returns the
	// number of rows swept.
	MarkExpired(ctx context.Context, now time.Time) (int64, error)

	// ReleaseOrphaned releases active reservations whose cart no longer
	// exists (no sale order row, or the order is cancelled). Used when the
	// tenant orphan policy is auto-release. Returns the number released.
	ReleaseOrphaned(ctx context.Context, now time.Time) (int64, error)
}
