// Package reconciliation checks the stock identity: everything recorded into
// batches must be accounted for by live stock, sales, shrinkage, corrections
// and active holds.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
	"stocktally/internal/domain/inventory/adjustment"
	"stocktally/internal/domain/inventory/batch"
	"stocktally/internal/domain/inventory/movement"
	"stocktally/internal/domain/inventory/reservation"
	"stocktally/internal/domain/inventory/storefront"
	"stocktally/pkg/logger"
)

// Result is the full term breakdown of one reconciliation run.
//
// The identity:
//
//	recorded = warehouse_on_hand + storefront_on_hand + sold
//	           + shrinkage - correction
//
// must hold when every mutation went through the ledger; delta is recorded
// minus that baseline. Active reservations are reported but are not a
// baseline term: a hold has not moved stock, it only claims storefront
// on-hand that is already counted.
type Result struct {
	ProductID     id.ID   `json:"productId"`
	WarehouseID   id.ID   `json:"warehouseId"`
	StorefrontIDs []id.ID `json:"storefrontIds"`

	Recorded         types.Quantity `json:"recorded"`
	WarehouseOnHand  types.Quantity `json:"warehouseOnHand"`
	StorefrontOnHand types.Quantity `json:"storefrontOnHand"`
	Sold             types.Quantity `json:"sold"`
	Shrinkage        types.Quantity `json:"shrinkage"`
	Correction       types.Quantity `json:"correction"`

	// ActiveReservations is informational: holds against the storefront
	// on-hand, not a baseline term.
	ActiveReservations types.Quantity `json:"activeReservations"`

	Baseline types.Quantity `json:"baseline"`
	Delta    types.Quantity `json:"delta"`

	CheckedAt time.Time `json:"checkedAt"`
}

// Consistent reports a zero delta.
func (r *Result) Consistent() bool { return r.Delta.IsZero() }

// Breakdown renders the terms for error details and logs.
func (r *Result) Breakdown() map[string]any {
	return map[string]any{
		"recorded":            r.Recorded.String(),
		"warehouse_on_hand":   r.WarehouseOnHand.String(),
		"storefront_on_hand":  r.StorefrontOnHand.String(),
		"sold":                r.Sold.String(),
		"shrinkage":           r.Shrinkage.String(),
		"correction":          r.Correction.String(),
		"active_reservations": r.ActiveReservations.String(),
		"baseline":            r.Baseline.String(),
		"delta":               r.Delta.String(),
	}
}

// Service computes reconciliation runs. It only reads; a mismatch is
// surfaced with its breakdown and never auto-corrected.
type Service struct {
	batches      batch.Repository
	storefronts  storefront.Repository
	adjustments  adjustment.Repository
	reservations reservation.Repository
	movements    movement.Repository
}

// NewService creates a new reconciliation service.
func NewService(
	batches batch.Repository,
	storefronts storefront.Repository,
	adjustments adjustment.Repository,
	reservations reservation.Repository,
	movements movement.Repository,
) *Service {
	return &Service{
		batches:      batches,
		storefronts:  storefronts,
		adjustments:  adjustments,
		reservations: reservations,
		movements:    movements,
	}
}

// Check reconciles one product across a warehouse and its storefronts.
//
// baseline = warehouse_on_hand + storefront_on_hand + sold + shrinkage - correction
// delta    = recorded - baseline
//
// Shrinkage enters positively (lost units are accounted for, just not on a
// shelf); corrections enter negatively because a positive correction added
// units the batch intake never recorded.
func (s *Service) Check(ctx context.Context, productID, warehouseID id.ID, storefrontIDs []id.ID) (*Result, error) {
	now := time.Now()
	result := &Result{
		ProductID:     productID,
		WarehouseID:   warehouseID,
		StorefrontIDs: storefrontIDs,
		CheckedAt:     now,
	}

	var err error
	if result.Recorded, err = s.batches.SumRecorded(ctx, productID, warehouseID); err != nil {
		return nil, fmt.Errorf("sum recorded: %w", err)
	}
	if result.WarehouseOnHand, err = s.batches.SumRemaining(ctx, productID, warehouseID); err != nil {
		return nil, fmt.Errorf("sum remaining: %w", err)
	}
	if result.StorefrontOnHand, err = s.storefronts.SumOnHand(ctx, storefrontIDs, productID); err != nil {
		return nil, fmt.Errorf("sum storefront on-hand: %w", err)
	}
	if result.Sold, err = s.movements.SumSold(ctx, storefrontIDs, productID, now); err != nil {
		return nil, fmt.Errorf("sum sold: %w", err)
	}

	totals, err := s.adjustments.SumTotals(ctx, productID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("sum adjustments: %w", err)
	}
	result.Shrinkage = totals.Shrinkage
	result.Correction = totals.Correction

	if result.ActiveReservations, err = s.reservations.SumActiveForStorefronts(ctx, storefrontIDs, productID, now); err != nil {
		return nil, fmt.Errorf("sum active reservations: %w", err)
	}

	result.Baseline = result.WarehouseOnHand +
		result.StorefrontOnHand +
		result.Sold +
		result.Shrinkage -
		result.Correction
	result.Delta = result.Recorded - result.Baseline

	if !result.Consistent() {
		logger.Warn(ctx, "reconciliation mismatch",
			"product_id", productID,
			"warehouse_id", warehouseID,
			"delta", result.Delta.String(),
			"breakdown", result.Breakdown(),
		)
	}
	return result, nil
}
