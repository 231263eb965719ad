package models

import (
	"sort"
	"time"

	"github.com/uptrace/bun"
)

type Reservation struct {
	bun.BaseModel `bun:"table:reservations,alias:r"`

	ID          string            `bun:"id,pk" json:"-"`
	Token       string            `bun:"token,unique,notnull" json:"token"`
	BuyerID     string            `bun:"buyer_id,notnull" json:"buyer_id"`
	EventID     string            `bun:"event_id,notnull" json:"event_id"`
	Status      ReservationStatus `bun:"status,notnull" json:"status"`
	TotalAmount int64             `bun:"total_amount,notnull" json:"total_amount"`
	ExpiresAt   time.Time         `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt   time.Time         `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time         `bun:"updated_at,notnull" json:"updated_at"`

	Items []ReservationItem `bun:"-" json:"items"`
}

// ReservationItem is one line of a reservation. UnitPrice is the ticket
// type price at the moment the hold was taken.
type ReservationItem struct {
	bun.BaseModel `bun:"table:reservation_items,alias:ri"`

	ID            string `bun:"id,pk" json:"-"`
	ReservationID string `bun:"reservation_id,notnull" json:"-"`
	TicketTypeID  string `bun:"ticket_type_id,notnull" json:"ticket_type_id"`
	Position      int    `bun:"position,notnull" json:"-"`
	Quantity      int    `bun:"quantity,notnull" json:"quantity"`
	UnitPrice     int64  `bun:"unit_price,notnull" json:"unit_price"`
}

// IsExpiredAt uses the same boundary as the reaper query (expires_at <= now).
func (r *Reservation) IsExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Total sums quantity x snapshot price over the line items.
func (r *Reservation) Total() int64 {
	var total int64
	for _, it := range r.Items {
		total += int64(it.Quantity) * it.UnitPrice
	}
	return total
}

type LineItemRequest struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

type CreateReservationRequest struct {
	Items []LineItemRequest `json:"items"`
}

// LockOrder returns the items sorted by ticket type id. Ledger rows are
// always touched in this order so concurrent transactions cannot deadlock.
func LockOrder(items []ReservationItem) []ReservationItem {
	out := make([]ReservationItem, len(items))
	copy(out, items)
	sort.Slice(out, func(i, j int) bool { return out[i].TicketTypeID < out[j].TicketTypeID })
	return out
}
