package inventory_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
	"stocktally/internal/domain/inventory/reservation"
	"stocktally/internal/infrastructure/storage/postgres"
)

const reservationsTable = "inv_reservations"

// ReservationRepo implements reservation.Repository.
//
// Activeness is always evaluated in SQL as status = 'active' AND
// expires_at > now, so an expired hold stops counting the moment its TTL
// passes, whether or not the sweeper has flipped its status yet.
type ReservationRepo struct {
	builder squirrel.StatementBuilderType
}

// NewReservationRepo creates a new reservation repository.
func NewReservationRepo() *ReservationRepo {
	return &ReservationRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *ReservationRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

// Create inserts a new hold.
func (r *ReservationRepo) Create(ctx context.Context, res *reservation.Reservation) error {
	q := r.builder.Insert(reservationsTable).
		Columns(
			"id", "storefront_id", "product_id", "cart_id",
			"quantity", "status", "expires_at", "created_at", "released_at", "created_by",
		).
		Values(
			res.ID, res.StorefrontID, res.ProductID, res.CartID,
			res.Quantity, res.Status, res.ExpiresAt, res.CreatedAt, res.ReleasedAt, res.CreatedBy,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

// GetByID returns the reservation or a NotFound error.
func (r *ReservationRepo) GetByID(ctx context.Context, reservationID id.ID) (*reservation.Reservation, error) {
	q := r.builder.Select("*").
		From(reservationsTable).
		Where(squirrel.Eq{"id": reservationID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var res reservation.Reservation
	if err := pgxscan.Get(ctx, querier, &res, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("reservation", reservationID)
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return &res, nil
}

// GetByIDForUpdate locks the reservation row.
func (r *ReservationRepo) GetByIDForUpdate(ctx context.Context, reservationID id.ID) (*reservation.Reservation, error) {
	sql := `SELECT * FROM inv_reservations WHERE id = $1 FOR UPDATE`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var res reservation.Reservation
	if err := pgxscan.Get(ctx, querier, &res, sql, reservationID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("reservation", reservationID)
		}
		return nil, fmt.Errorf("lock reservation: %w", err)
	}
	return &res, nil
}

// SumActive sums holds counting at the given instant for one storefront.
func (r *ReservationRepo) SumActive(ctx context.Context, storefrontID, productID id.ID, now time.Time) (types.Quantity, error) {
	sql := `
		SELECT COALESCE(SUM(quantity), 0)
		FROM inv_reservations
		WHERE storefront_id = $1 AND product_id = $2
		  AND status = $3 AND expires_at > $4`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var total types.Quantity
	err := querier.QueryRow(ctx, sql, storefrontID, productID, reservation.StatusActive, now).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum active reservations: %w", err)
	}
	return total, nil
}

// SumActiveForStorefronts sums holds across a storefront set.
func (r *ReservationRepo) SumActiveForStorefronts(ctx context.Context, storefrontIDs []id.ID, productID id.ID, now time.Time) (types.Quantity, error) {
	if len(storefrontIDs) == 0 {
		return 0, nil
	}

	q := r.builder.Select("COALESCE(SUM(quantity), 0)").
		From(reservationsTable).
		Where(squirrel.Eq{"storefront_id": storefrontIDs, "product_id": productID}).
		Where(squirrel.Eq{"status": reservation.StatusActive}).
		Where(squirrel.Gt{"expires_at": now})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build sum: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var total types.Quantity
	if err := querier.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum active reservations: %w", err)
	}
	return total, nil
}

// ListActiveByCart returns live holds for a cart.
func (r *ReservationRepo) ListActiveByCart(ctx context.Context, cartID id.ID, now time.Time) ([]reservation.Reservation, error) {
	q := r.builder.Select("*").
		From(reservationsTable).
		Where(squirrel.Eq{"cart_id": cartID, "status": reservation.StatusActive}).
		Where(squirrel.Gt{"expires_at": now}).
		OrderBy("created_at ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	var items []reservation.Reservation
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list cart reservations: %w", err)
	}
	return items, nil
}

// SetStatus finalizes a reservation.
func (r *ReservationRepo) SetStatus(ctx context.Context, reservationID id.ID, status reservation.Status, at time.Time) error {
	sql := `UPDATE inv_reservations SET status = $2, released_at = $3 WHERE id = $1`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, reservationID, status, at)
	if err != nil {
		return fmt.Errorf("set reservation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("reservation", reservationID)
	}
	return nil
}

// MarkExpired flips active rows whose TTL has passed. Pure hygiene: the
// read path already ignores these rows.
func (r *ReservationRepo) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	sql := `
		UPDATE inv_reservations
		SET status = $1, released_at = $2
		WHERE status = $3 AND expires_at <= $2`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, reservation.StatusExpired, now, reservation.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("mark expired reservations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ReleaseOrphaned releases live holds whose cart is gone or cancelled.
func (r *ReservationRepo) ReleaseOrphaned(ctx context.Context, now time.Time) (int64, error) {
	sql := `
		UPDATE inv_reservations res
		SET status = $1, released_at = $2
		FROM inv_reservations r2
		LEFT JOIN sale_orders s ON s.id = r2.cart_id
		WHERE res.id = r2.id
		  AND res.status = $3 AND res.expires_at > $2
		  AND (s.id IS NULL OR s.status = $4)`

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql,
		reservation.StatusReleased, now, reservation.StatusActive, "cancelled")
	if err != nil {
		return 0, fmt.Errorf("release orphaned reservations: %w", err)
	}
	return tag.RowsAffected(), nil
}
