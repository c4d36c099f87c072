// Package batch provides the StockBatch catalog: one receipt of one product
// at one warehouse, carrying its own costs and prices.
package batch

import (
	"context"
	"time"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
)

// StockBatch represents a received lot of a product at a warehouse.
//
// RecordedQuantity is the quantity as received and never changes after intake;
// it anchors reconciliation. RemainingQuantity is the live warehouse balance
// of this batch and is mutated only by adjustments and completed transfers,
// always under a row lock.
type StockBatch struct {
	ID          id.ID `db:"id" json:"id"`
	ProductID   id.ID `db:"product_id" json:"productId"`
	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`

	RecordedQuantity  types.Quantity `db:"recorded_quantity" json:"recordedQuantity"`
	RemainingQuantity types.Quantity `db:"remaining_quantity" json:"remainingQuantity"`

	UnitCost    types.Money  `db:"unit_cost" json:"unitCost"`
	RetailPrice types.Money  `db:"retail_price" json:"retailPrice"`
	// WholesalePrice is optional. Readers use EffectiveWholesalePrice.
	WholesalePrice *types.Money `db:"wholesale_price" json:"wholesalePrice,omitempty"`

	ReceivedAt time.Time `db:"received_at" json:"receivedAt"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
	Version   int       `db:"version" json:"version"`
}

// NewStockBatch creates a batch at intake. Remaining starts equal to recorded.
func NewStockBatch(productID, warehouseID id.ID, quantity types.Quantity) *StockBatch {
	now := time.Now()
	return &StockBatch{
		ID:                id.New(),
		ProductID:         productID,
		WarehouseID:       warehouseID,
		RecordedQuantity:  quantity,
		RemainingQuantity: quantity,
		ReceivedAt:        now,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}
}

// EffectiveWholesalePrice returns the wholesale price, falling back to retail
// when no wholesale price was set at intake.
func (b *StockBatch) EffectiveWholesalePrice() types.Money {
	if b.WholesalePrice != nil {
		return *b.WholesalePrice
	}
	return b.RetailPrice
}

// Validate implements entity validation for intake.
func (b *StockBatch) Validate(ctx context.Context) error {
	if id.IsNil(b.ProductID) {
		return apperror.NewValidation("product is required").
			WithDetail("field", "productId")
	}
	if id.IsNil(b.WarehouseID) {
		return apperror.NewValidation("warehouse is required").
			WithDetail("field", "warehouseId")
	}
	if !b.RecordedQuantity.IsPositive() {
		return apperror.NewValidation("recorded quantity must be positive").
			WithDetail("field", "recordedQuantity").
			WithDetail("value", b.RecordedQuantity.String())
	}
	if b.RemainingQuantity.IsNegative() {
		return apperror.NewValidation("remaining quantity cannot be negative").
			WithDetail("field", "remainingQuantity")
	}
	if b.RemainingQuantity > b.RecordedQuantity {
		return apperror.NewValidation("remaining quantity cannot exceed recorded quantity")
	}
	if b.UnitCost.IsNegative() || b.RetailPrice.IsNegative() {
		return apperror.NewValidation("prices cannot be negative")
	}
	if b.WholesalePrice != nil && b.WholesalePrice.IsNegative() {
		return apperror.NewValidation("wholesale price cannot be negative").
			WithDetail("field", "wholesalePrice")
	}
	return nil
}
