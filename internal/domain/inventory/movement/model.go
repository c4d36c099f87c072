// Package movement provides the merged read-only feed of stock activity:
// adjustments, completed transfers and completed sales in one stream.
package movement

import (
	"time"

	"stocktally/internal/core/id"
	"stocktally/internal/core/types"
)

// Kind identifies the source ledger of a feed row.
type Kind string

const (
	KindAdjustment Kind = "adjustment"
	KindTransfer   Kind = "transfer"
	KindSale       Kind = "sale"
)

// Direction of the quantity relative to the location.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Record is one row of the feed. SourceID is the originating document or
// ledger entry; rows from different sources never share one.
//
// Ordering is (occurred_at, source_id): source IDs are UUIDv7, so ties on
// occurred_at fall back to insertion order and pagination stays stable.
type Record struct {
	SourceID  id.ID `db:"source_id" json:"sourceId"`
	Kind      Kind  `db:"kind" json:"kind"`

	ProductID id.ID          `db:"product_id" json:"productId"`
	Quantity  types.Quantity `db:"quantity" json:"quantity"`
	Direction Direction      `db:"direction" json:"direction"`

	// LocationType is "warehouse" or "storefront"; LocationID names it.
	LocationType string `db:"location_type" json:"locationType"`
	LocationID   id.ID  `db:"location_id" json:"locationId"`

	Reference  string    `db:"reference" json:"reference,omitempty"`
	OccurredAt time.Time `db:"occurred_at" json:"occurredAt"`
}

// Filter narrows the feed.
type Filter struct {
	ProductID     *id.ID
	WarehouseID   *id.ID
	StorefrontID  *id.ID
	Kind          *Kind
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

// KindSummary aggregates one kind over a filter window.
type KindSummary struct {
	Kind     Kind           `db:"kind" json:"kind"`
	Count    int64          `db:"count" json:"count"`
	UnitsIn  types.Quantity `db:"units_in" json:"unitsIn"`
	UnitsOut types.Quantity `db:"units_out" json:"unitsOut"`
}

// Summary is the per-kind rollup of a feed window.
type Summary struct {
	Kinds []KindSummary  `json:"kinds"`
	Net   types.Quantity `json:"net"`
}
