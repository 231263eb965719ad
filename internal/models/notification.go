package models

import "time"

const (
	EventBookingCreated     = "booking.created"
	EventBookingConfirmed   = "booking.confirmed"
	EventBookingCancelled   = "booking.cancelled"
	EventReservationExpired = "reservation.expired"
	EventTicketCheckedIn    = "ticket.checked_in"
)

// BookingEvent is published after a booking change has committed.
type BookingEvent struct {
	Type          string        `json:"type"`
	BookingNumber string        `json:"booking_number"`
	BuyerID       string        `json:"buyer_id"`
	EventID       string        `json:"event_id"`
	TotalAmount   int64         `json:"total_amount"`
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	TicketCount   int           `json:"ticket_count"`
	Reason        string        `json:"reason,omitempty"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

func NewBookingEvent(eventType string, b *Booking, at time.Time) BookingEvent {
	ev := BookingEvent{
		Type:          eventType,
		BookingNumber: b.BookingNumber,
		BuyerID:       b.BuyerID,
		EventID:       b.EventID,
		TotalAmount:   b.TotalAmount,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		TicketCount:   len(b.Tickets),
		OccurredAt:    at,
	}
	if b.CancellationReason != nil {
		ev.Reason = *b.CancellationReason
	}
	return ev
}

type ReservationEvent struct {
	Type          string    `json:"type"`
	ReservationID string    `json:"reservation_id"`
	BuyerID       string    `json:"buyer_id"`
	EventID       string    `json:"event_id"`
	Released      int       `json:"released"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type CheckInEvent struct {
	Type         string    `json:"type"`
	TicketCode   string    `json:"ticket_code"`
	EventID      string    `json:"event_id"`
	TicketTypeID string    `json:"ticket_type_id"`
	AttendeeName string    `json:"attendee_name,omitempty"`
	CheckedInAt  time.Time `json:"checked_in_at"`
}

// PaymentResult is consumed from the payment collaborator.
type PaymentResult struct {
	BookingNumber   string        `json:"booking_number"`
	Status          PaymentStatus `json:"status"`
	PaymentIntentID string        `json:"payment_intent_id"`
}
