package models

import "fmt"

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCompleted ReservationStatus = "completed"
	ReservationExpired   ReservationStatus = "expired"
	ReservationCancelled ReservationStatus = "cancelled"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFree    PaymentStatus = "free"
	PaymentFailed  PaymentStatus = "failed"
)

// Transition tables. Anything not listed is rejected.
var (
	reservationTransitions = map[ReservationStatus][]ReservationStatus{
		ReservationActive: {ReservationCompleted, ReservationExpired, ReservationCancelled},
	}
	bookingTransitions = map[BookingStatus][]BookingStatus{
		BookingPending:   {BookingConfirmed, BookingCancelled},
		BookingConfirmed: {BookingCancelled},
	}
	paymentTransitions = map[PaymentStatus][]PaymentStatus{
		PaymentPending: {PaymentPaid, PaymentFailed},
		PaymentFailed:  {PaymentPaid},
	}
)

func checkTransition[S ~string](table map[S][]S, kind string, from, to S) error {
	for _, next := range table[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%s %s -> %s: %w", kind, from, to, ErrIllegalTransition)
}

func (s ReservationStatus) TransitionTo(next ReservationStatus) error {
	return checkTransition(reservationTransitions, "reservation", s, next)
}

func (s ReservationStatus) IsTerminal() bool {
	return len(reservationTransitions[s]) == 0
}

func (s BookingStatus) TransitionTo(next BookingStatus) error {
	return checkTransition(bookingTransitions, "booking", s, next)
}

func (s PaymentStatus) TransitionTo(next PaymentStatus) error {
	return checkTransition(paymentTransitions, "payment", s, next)
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFree, PaymentFailed:
		return true
	}
	return false
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled:
		return true
	}
	return false
}
