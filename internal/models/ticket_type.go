package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TicketType carries the inventory counters for one kind of ticket. The
// counters are only ever changed through the inventory ledger.
type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types,alias:tt"`

	ID               string     `bun:"id,pk" json:"id"`
	EventID          string     `bun:"event_id,notnull" json:"event_id"`
	Name             string     `bun:"name,notnull" json:"name"`
	UnitPrice        int64      `bun:"unit_price,notnull" json:"unit_price"`
	QuantityTotal    int        `bun:"quantity_total,notnull" json:"quantity_total"`
	QuantitySold     int        `bun:"quantity_sold,notnull" json:"quantity_sold"`
	QuantityReserved int        `bun:"quantity_reserved,notnull" json:"quantity_reserved"`
	MinPerOrder      int        `bun:"min_per_order,notnull" json:"min_per_order"`
	MaxPerOrder      int        `bun:"max_per_order,notnull" json:"max_per_order"`
	SaleStarts       *time.Time `bun:"sale_starts" json:"sale_starts,omitempty"`
	SaleEnds         *time.Time `bun:"sale_ends" json:"sale_ends,omitempty"`
	IsActive         bool       `bun:"is_active,notnull" json:"is_active"`
	CreatedAt        time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull" json:"updated_at"`
	// Deleted ticket types stay behind for the reservation items and tickets
	// that reference them. bun hides them from every model query.
	DeletedAt time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// Available never reports a negative number even if the counters drifted.
func (t *TicketType) Available() int {
	if a := t.QuantityTotal - t.QuantitySold - t.QuantityReserved; a > 0 {
		return a
	}
	return 0
}

func (t *TicketType) OnSaleAt(now time.Time) bool {
	if !t.IsActive {
		return false
	}
	if t.SaleStarts != nil && now.Before(*t.SaleStarts) {
		return false
	}
	if t.SaleEnds != nil && now.After(*t.SaleEnds) {
		return false
	}
	return true
}

// Consistent checks the ledger invariant sold + held <= total with both non-negative.
func (t *TicketType) Consistent() bool {
	return t.QuantitySold >= 0 && t.QuantityReserved >= 0 &&
		t.QuantitySold+t.QuantityReserved <= t.QuantityTotal
}

type CreateTicketTypeRequest struct {
	Name          string     `json:"name"`
	UnitPrice     int64      `json:"unit_price"`
	QuantityTotal int        `json:"quantity_total"`
	MinPerOrder   int        `json:"min_per_order"`
	MaxPerOrder   int        `json:"max_per_order"`
	SaleStarts    *time.Time `json:"sale_starts,omitempty"`
	SaleEnds      *time.Time `json:"sale_ends,omitempty"`
	Inactive      bool       `json:"inactive,omitempty"`
}

// UpdateTicketTypeRequest replaces the editable definition of a ticket type.
// Capacity has its own request because it goes through the ledger.
type UpdateTicketTypeRequest struct {
	Name        string     `json:"name"`
	UnitPrice   int64      `json:"unit_price"`
	MinPerOrder int        `json:"min_per_order"`
	MaxPerOrder int        `json:"max_per_order"`
	SaleStarts  *time.Time `json:"sale_starts,omitempty"`
	SaleEnds    *time.Time `json:"sale_ends,omitempty"`
	IsActive    *bool      `json:"is_active,omitempty"`
}

type UpdateCapacityRequest struct {
	QuantityTotal int `json:"quantity_total"`
}

// TicketAvailability is the public view of a ticket type.
type TicketAvailability struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	UnitPrice   int64      `json:"unit_price"`
	Available   int        `json:"available"`
	MinPerOrder int        `json:"min_per_order"`
	MaxPerOrder int        `json:"max_per_order"`
	OnSale      bool       `json:"on_sale"`
	SaleStarts  *time.Time `json:"sale_starts,omitempty"`
	SaleEnds    *time.Time `json:"sale_ends,omitempty"`
}
