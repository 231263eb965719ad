package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings,alias:b"`

	ID                 string        `bun:"id,pk" json:"-"`
	BookingNumber      string        `bun:"booking_number,unique,notnull" json:"booking_number"`
	ReservationID      string        `bun:"reservation_id,unique,notnull" json:"-"`
	BuyerID            string        `bun:"buyer_id,notnull" json:"buyer_id"`
	EventID            string        `bun:"event_id,notnull" json:"event_id"`
	TotalAmount        int64         `bun:"total_amount,notnull" json:"total_amount"`
	Status             BookingStatus `bun:"status,notnull" json:"status"`
	PaymentStatus      PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	PaymentMethod      string        `bun:"payment_method" json:"payment_method,omitempty"`
	PaymentIntentID    string        `bun:"payment_intent_id" json:"payment_intent_id,omitempty"`
	CancellationReason *string       `bun:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledBy        *string       `bun:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelledAt        *time.Time    `bun:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt          time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt          time.Time     `bun:"updated_at,notnull" json:"updated_at"`

	Tickets []IssuedTicket `bun:"-" json:"tickets,omitempty"`
}

// Admissible reports whether tickets of this booking may pass the gate.
func (b *Booking) Admissible() bool {
	return b.Status == BookingConfirmed &&
		(b.PaymentStatus == PaymentPaid || b.PaymentStatus == PaymentFree)
}

// IssuedTicket is one physical admission unit.
type IssuedTicket struct {
	bun.BaseModel `bun:"table:issued_tickets,alias:it"`

	ID            string     `bun:"id,pk" json:"-"`
	TicketCode    string     `bun:"ticket_code,unique,notnull" json:"ticket_code"`
	BookingID     string     `bun:"booking_id,notnull" json:"-"`
	TicketTypeID  string     `bun:"ticket_type_id,notnull" json:"ticket_type_id"`
	EventID       string     `bun:"event_id,notnull" json:"event_id"`
	UnitPrice     int64      `bun:"unit_price,notnull" json:"unit_price"`
	AttendeeName  string     `bun:"attendee_name" json:"attendee_name,omitempty"`
	AttendeeEmail string     `bun:"attendee_email" json:"attendee_email,omitempty"`
	CheckedIn     bool       `bun:"checked_in,notnull" json:"checked_in"`
	CheckedInAt   *time.Time `bun:"checked_in_at" json:"checked_in_at,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
}

// PaymentData is supplied by the payment collaborator and stored as-is.
type PaymentData struct {
	PaymentMethod   string `json:"payment_method"`
	PaymentIntentID string `json:"payment_intent_id"`
	AttendeeName    string `json:"attendee_name,omitempty"`
	AttendeeEmail   string `json:"attendee_email,omitempty"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

type PaymentStatusRequest struct {
	Status          PaymentStatus `json:"status"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty"`
}

type CheckInRequest struct {
	TicketCode string `json:"ticket_code,omitempty"`
	QRPayload  string `json:"qr_payload,omitempty"`
}

// Actor is whoever asks for a booking change. Staff may act on any booking.
type Actor struct {
	ID    string
	Staff bool
}

func (a Actor) CanManage(ownerID string) bool {
	return a.Staff || (a.ID != "" && a.ID == ownerID)
}

// BookingFilter narrows a buyer's booking list.
type BookingFilter struct {
	Status   BookingStatus
	Upcoming bool
}
