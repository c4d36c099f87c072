// Package transfer provides the stock transfer workflow: a document that
// claims warehouse stock, rides a small state machine, and moves quantities
// only when it completes.
package transfer

import (
	"context"
	"time"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
)

// Status is the transfer lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInTransit Status = "in_transit"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// transitions holds the allowed state machine edges.
var transitions = map[Status][]Status{
	StatusPending:   {StatusInTransit, StatusCompleted, StatusCancelled},
	StatusInTransit: {StatusCompleted, StatusCancelled},
	// completed and cancelled are terminal
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// DestinationType distinguishes the two transfer shapes.
type DestinationType string

const (
	DestinationWarehouse  DestinationType = "warehouse"
	DestinationStorefront DestinationType = "storefront"
)

// Transfer is a stock movement document. While pending or in transit it
// claims source quantity (visible to availability checks of new transfers)
// without moving anything; quantities move atomically at completion.
type Transfer struct {
	ID        id.ID  `db:"id" json:"id"`
	Reference string `db:"reference" json:"reference"`

	SourceWarehouseID id.ID `db:"source_warehouse_id" json:"sourceWarehouseId"`

	DestinationType         DestinationType `db:"destination_type" json:"destinationType"`
	DestinationWarehouseID  *id.ID          `db:"destination_warehouse_id" json:"destinationWarehouseId,omitempty"`
	DestinationStorefrontID *id.ID          `db:"destination_storefront_id" json:"destinationStorefrontId,omitempty"`

	Status Status `db:"status" json:"status"`
	// CancelReason is set when the transfer is cancelled.
	CancelReason string `db:"cancel_reason" json:"cancelReason,omitempty"`

	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
	CompletedAt *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	CreatedBy   string     `db:"created_by" json:"createdBy,omitempty"`
	Version     int        `db:"version" json:"version"`

	Lines []Line `db:"-" json:"lines"`
}

// Line is one batch claim within a transfer.
type Line struct {
	LineID     id.ID          `db:"line_id" json:"lineId"`
	TransferID id.ID          `db:"transfer_id" json:"-"`
	LineNo     int            `db:"line_no" json:"lineNo"`
	ProductID  id.ID          `db:"product_id" json:"productId"`
	BatchID    id.ID          `db:"batch_id" json:"batchId"`
	Quantity   types.Quantity `db:"quantity" json:"quantity"`

	// DestinationBatchID is set at completion of a warehouse-to-warehouse
	// transfer: the new batch created at the destination.
	DestinationBatchID *id.ID `db:"destination_batch_id" json:"destinationBatchId,omitempty"`
}

// NewTransfer creates a pending transfer document.
func NewTransfer(sourceWarehouseID id.ID) *Transfer {
	now := time.Now()
	return &Transfer{
		ID:                id.New(),
		SourceWarehouseID: sourceWarehouseID,
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
		Lines:             make([]Line, 0),
	}
}

// ToWarehouse sets a warehouse destination.
func (t *Transfer) ToWarehouse(warehouseID id.ID) *Transfer {
	t.DestinationType = DestinationWarehouse
	t.DestinationWarehouseID = &warehouseID
	t.DestinationStorefrontID = nil
	return t
}

// ToStorefront sets a storefront destination.
func (t *Transfer) ToStorefront(storefrontID id.ID) *Transfer {
	t.DestinationType = DestinationStorefront
	t.DestinationStorefrontID = &storefrontID
	t.DestinationWarehouseID = nil
	return t
}

// AddLine appends a batch claim.
func (t *Transfer) AddLine(productID, batchID id.ID, qty types.Quantity) {
	t.Lines = append(t.Lines, Line{
		LineID:     id.New(),
		TransferID: t.ID,
		LineNo:     len(t.Lines) + 1,
		ProductID:  productID,
		BatchID:    batchID,
		Quantity:   qty,
	})
}

// Validate checks the document before creation.
func (t *Transfer) Validate(ctx context.Context) error {
	if id.IsNil(t.SourceWarehouseID) {
		return apperror.NewValidation("source warehouse is required").
			WithDetail("field", "sourceWarehouseId")
	}

	switch t.DestinationType {
	case DestinationWarehouse:
		if t.DestinationWarehouseID == nil || id.IsNil(*t.DestinationWarehouseID) {
			return apperror.NewValidation("destination warehouse is required")
		}
		if *t.DestinationWarehouseID == t.SourceWarehouseID {
			return apperror.NewValidation("source and destination warehouse must differ")
		}
	case DestinationStorefront:
		if t.DestinationStorefrontID == nil || id.IsNil(*t.DestinationStorefrontID) {
			return apperror.NewValidation("destination storefront is required")
		}
	default:
		return apperror.NewValidation("unknown destination type").
			WithDetail("value", string(t.DestinationType))
	}

	if len(t.Lines) == 0 {
		return apperror.NewValidation("transfer requires at least one line")
	}
	for _, line := range t.Lines {
		if id.IsNil(line.BatchID) {
			return apperror.NewValidation("line batch is required").
				WithDetail("lineNo", line.LineNo)
		}
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("line quantity must be positive").
				WithDetail("lineNo", line.LineNo)
		}
	}
	return nil
}

// transition moves the document to the next state or fails with
// INVALID_STATE_TRANSITION.
func (t *Transfer) transition(to Status) error {
	if !CanTransition(t.Status, to) {
		return apperror.NewInvalidStateTransition("transfer", string(t.Status), string(to)).
			WithDetail("id", t.ID.String())
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	return nil
}
