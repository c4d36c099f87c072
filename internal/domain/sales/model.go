// Package sales provides draft carts and their completion, the consumer of
// reservation holds.
package sales

import (
	"context"
	"time"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
)

// Status is the sale lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// SaleOrder is a cart. While draft, each line holds a reservation; at
// completion every hold is committed inside the sale's own transaction.
// Completed line items feed the movement feed as "sale" records.
type SaleOrder struct {
	ID           id.ID  `db:"id" json:"id"`
	Number       string `db:"number" json:"number"`
	StorefrontID id.ID  `db:"storefront_id" json:"storefrontId"`

	Status Status `db:"status" json:"status"`

	TotalQuantity types.Quantity `db:"total_quantity" json:"totalQuantity"`
	TotalAmount   types.Money    `db:"total_amount" json:"totalAmount"`

	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
	CompletedAt *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	CreatedBy   string     `db:"created_by" json:"createdBy,omitempty"`
	Version     int        `db:"version" json:"version"`

	Lines []SaleLine `db:"-" json:"lines"`
}

// SaleLine is one cart item, pinned to its reservation.
type SaleLine struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	SaleID id.ID `db:"sale_id" json:"-"`
	LineNo int   `db:"line_no" json:"lineNo"`

	ProductID     id.ID          `db:"product_id" json:"productId"`
	Quantity      types.Quantity `db:"quantity" json:"quantity"`
	UnitPrice     types.Money    `db:"unit_price" json:"unitPrice"`
	Amount        types.Money    `db:"amount" json:"amount"`
	ReservationID id.ID          `db:"reservation_id" json:"reservationId"`
}

// NewSaleOrder creates a draft cart.
func NewSaleOrder(storefrontID id.ID) *SaleOrder {
	now := time.Now()
	return &SaleOrder{
		ID:           id.New(),
		StorefrontID: storefrontID,
		Status:       StatusDraft,
		TotalAmount:  types.ZeroMoney(),
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
		Lines:        make([]SaleLine, 0),
	}
}

// CanModify fails unless the sale is still a draft.
func (s *SaleOrder) CanModify() error {
	if s.Status != StatusDraft {
		return apperror.NewInvalidStateTransition("sale", string(s.Status), string(StatusDraft)).
			WithDetail("id", s.ID.String())
	}
	return nil
}

// RecalculateTotals recomputes the cart totals from its lines.
func (s *SaleOrder) RecalculateTotals() {
	s.TotalQuantity = 0
	s.TotalAmount = types.ZeroMoney()
	for _, line := range s.Lines {
		s.TotalQuantity += line.Quantity
		s.TotalAmount = s.TotalAmount.Add(line.Amount)
	}
}

// Validate checks the cart shell.
func (s *SaleOrder) Validate(ctx context.Context) error {
	if id.IsNil(s.StorefrontID) {
		return apperror.NewValidation("storefront is required").
			WithDetail("field", "storefrontId")
	}
	return nil
}
