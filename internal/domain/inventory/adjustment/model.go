// Package adjustment provides the append-only ledger of manual quantity
// corrections against stock batches.
package adjustment

import (
	"context"
	"time"

	"stocktally/internal/core/apperror"
	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
)

// Kind classifies an adjustment entry.
type Kind string

const (
	KindDamage     Kind = "damage"
	KindTheft      Kind = "theft"
	KindFound      Kind = "found"
	KindCorrection Kind = "correction"
	// KindTransferLeg marks one half of a legacy paired transfer recorded as
	// two adjustments sharing a reference. New transfers go through the
	// transfer workflow; this kind survives for backfilled history.
	KindTransferLeg Kind = "transfer_leg"
)

// ValidKinds lists accepted adjustment kinds.
var ValidKinds = []Kind{KindDamage, KindTheft, KindFound, KindCorrection, KindTransferLeg}

func (k Kind) valid() bool {
	for _, v := range ValidKinds {
		if k == v {
			return true
		}
	}
	return false
}

// Status of a ledger entry. Apply always writes completed entries; pending
// exists only for drafts that have not touched the batch yet.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Adjustment is a single immutable ledger entry. Quantity is signed:
// negative for losses, positive for finds. Entries are never updated or
// deleted; a mistake is corrected by a compensating entry.
type Adjustment struct {
	ID      id.ID `db:"id" json:"id"`
	BatchID id.ID `db:"batch_id" json:"batchId"`

	Kind     Kind           `db:"kind" json:"kind"`
	Status   Status         `db:"status" json:"status"`
	Quantity types.Quantity `db:"quantity" json:"quantity"`
	Reason   string         `db:"reason" json:"reason,omitempty"`

	// Reference groups related entries, e.g. the shared reference of a
	// paired transfer_leg or the document number assigned at apply time.
	Reference string `db:"reference" json:"reference,omitempty"`

	// OccurredAt is the business time of the event; entries dated in the
	// past are subject to the tenant mutation policy.
	OccurredAt time.Time `db:"occurred_at" json:"occurredAt"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
}

// Validate checks an entry before it is applied.
func (a *Adjustment) Validate(ctx context.Context) error {
	if id.IsNil(a.BatchID) {
		return apperror.NewValidation("batch is required").
			WithDetail("field", "batchId")
	}
	if !a.Kind.valid() {
		return apperror.NewValidation("unknown adjustment kind").
			WithDetail("field", "kind").
			WithDetail("value", string(a.Kind))
	}
	if a.Quantity.IsZero() {
		return apperror.NewValidation("quantity cannot be zero").
			WithDetail("field", "quantity")
	}
	switch a.Kind {
	case KindDamage, KindTheft:
		if !a.Quantity.IsNegative() {
			return apperror.NewValidation("shrinkage adjustments must be negative").
				WithDetail("kind", string(a.Kind))
		}
	case KindFound:
		if !a.Quantity.IsPositive() {
			return apperror.NewValidation("found adjustments must be positive")
		}
	}
	return nil
}
