package dto

import (
	"time"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
	"stocktally/internal/domain/inventory/adjustment"
	"stocktally/internal/domain/inventory/batch"
	"stocktally/internal/domain/inventory/reservation"
	"stocktally/internal/domain/inventory/transfer"
)

// --- Stock Batches ---

// IntakeBatchRequest records a receipt of goods at a warehouse.
type IntakeBatchRequest struct {
	ProductID      string         `json:"productId" binding:"required,uuid"`
	WarehouseID    string         `json:"warehouseId" binding:"required,uuid"`
	Quantity       types.Quantity `json:"quantity" binding:"required"`
	UnitCost       types.Money    `json:"unitCost"`
	RetailPrice    types.Money    `json:"retailPrice"`
	WholesalePrice *types.Money   `json:"wholesalePrice"`
	ReceivedAt     *time.Time     `json:"receivedAt"`
}

// ToEntity builds a StockBatch from the request.
func (r IntakeBatchRequest) ToEntity() *batch.StockBatch {
	b := batch.NewStockBatch(id.MustParse(r.ProductID), id.MustParse(r.WarehouseID), r.Quantity)
	b.UnitCost = r.UnitCost
	b.RetailPrice = r.RetailPrice
	b.WholesalePrice = r.WholesalePrice
	if r.ReceivedAt != nil {
		b.ReceivedAt = *r.ReceivedAt
	}
	return b
}

// --- Reservations ---

// CreateReservationRequest places a hold against storefront stock.
type CreateReservationRequest struct {
	StorefrontID string         `json:"storefrontId" binding:"required,uuid"`
	ProductID    string         `json:"productId" binding:"required,uuid"`
	CartID       string         `json:"cartId" binding:"required,uuid"`
	Quantity     types.Quantity `json:"quantity" binding:"required"`
}

// ToEntity builds a Reservation from the request. Status, expiry and ID are
// assigned by the service.
func (r CreateReservationRequest) ToEntity() *reservation.Reservation {
	return &reservation.Reservation{
		StorefrontID: id.MustParse(r.StorefrontID),
		ProductID:    id.MustParse(r.ProductID),
		CartID:       id.MustParse(r.CartID),
		Quantity:     r.Quantity,
	}
}

// --- Transfers ---

// TransferLineRequest is one batch claim inside a transfer.
type TransferLineRequest struct {
	ProductID string         `json:"productId" binding:"required,uuid"`
	BatchID   string         `json:"batchId" binding:"required,uuid"`
	Quantity  types.Quantity `json:"quantity" binding:"required"`
}

// CreateTransferRequest moves stock from a warehouse to another warehouse or
// to a storefront.
type CreateTransferRequest struct {
	SourceWarehouseID       string                `json:"sourceWarehouseId" binding:"required,uuid"`
	DestinationType         string                `json:"destinationType" binding:"required,oneof=warehouse storefront"`
	DestinationWarehouseID  *string               `json:"destinationWarehouseId" binding:"omitempty,uuid"`
	DestinationStorefrontID *string               `json:"destinationStorefrontId" binding:"omitempty,uuid"`
	Lines                   []TransferLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToEntity builds a Transfer from the request.
func (r CreateTransferRequest) ToEntity() (*transfer.Transfer, error) {
	t := transfer.NewTransfer(id.MustParse(r.SourceWarehouseID))

	switch transfer.DestinationType(r.DestinationType) {
	case transfer.DestinationWarehouse:
		if r.DestinationWarehouseID == nil {
			return nil, apperror.NewValidation("destinationWarehouseId is required for warehouse transfers")
		}
		t.ToWarehouse(id.MustParse(*r.DestinationWarehouseID))
	case transfer.DestinationStorefront:
		if r.DestinationStorefrontID == nil {
			return nil, apperror.NewValidation("destinationStorefrontId is required for storefront transfers")
		}
		t.ToStorefront(id.MustParse(*r.DestinationStorefrontID))
	}

	for _, l := range r.Lines {
		t.AddLine(id.MustParse(l.ProductID), id.MustParse(l.BatchID), l.Quantity)
	}
	return t, nil
}

// CancelTransferRequest carries the cancellation reason.
type CancelTransferRequest struct {
	Reason string `json:"reason"`
}

// --- Adjustments ---

// CreateAdjustmentRequest appends a ledger entry and moves batch stock.
type CreateAdjustmentRequest struct {
	BatchID    string         `json:"batchId" binding:"required,uuid"`
	Kind       string         `json:"kind" binding:"required"`
	Quantity   types.Quantity `json:"quantity" binding:"required"`
	Reason     string         `json:"reason"`
	OccurredAt *time.Time     `json:"occurredAt"`
}

// ToEntity builds an Adjustment from the request.
func (r CreateAdjustmentRequest) ToEntity() *adjustment.Adjustment {
	a := &adjustment.Adjustment{
		BatchID:  id.MustParse(r.BatchID),
		Kind:     adjustment.Kind(r.Kind),
		Quantity: r.Quantity,
		Reason:   r.Reason,
	}
	if r.OccurredAt != nil {
		a.OccurredAt = *r.OccurredAt
	}
	return a
}
