package models

import (
	"errors"
	"fmt"
)

// Validation errors
var (
	ErrInvalidQuantity         = errors.New("quantity must be positive")
	ErrQuantityOutOfRange      = errors.New("quantity outside min/max per order")
	ErrEmptyReservation        = errors.New("reservation has no line items")
	ErrDuplicateLineItem       = errors.New("ticket type listed more than once")
	ErrTicketTypeEventMismatch = errors.New("ticket type does not belong to event")
	ErrInvalidCapacity         = errors.New("capacity must not be negative")
	ErrInvalidTicketType       = errors.New("invalid ticket type definition")
	ErrInvalidEvent            = errors.New("invalid event definition")
	ErrInvalidPaymentStatus    = errors.New("invalid payment status")
	ErrInvalidFilter           = errors.New("invalid filter")
)

// Inventory conflicts
var (
	ErrInsufficientInventory  = errors.New("insufficient inventory")
	ErrNotOnSale              = errors.New("ticket type not on sale")
	ErrCapacityBelowCommitted = errors.New("capacity below sold plus held")
)

// Lookup and ownership
var (
	ErrEventNotFound       = errors.New("event not found")
	ErrTicketTypeNotFound  = errors.New("ticket type not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrNotOwner            = errors.New("not the owner")
)

// State and race outcomes
var (
	ErrReservationExpired    = errors.New("reservation expired")
	ErrReservationCancelled  = errors.New("reservation cancelled")
	ErrReservationCompleted  = errors.New("reservation already completed")
	ErrBookingNotCancellable = errors.New("booking cannot be cancelled")
	ErrBookingNotPayable     = errors.New("booking is not confirmed and paid")
	ErrAlreadyCheckedIn      = errors.New("ticket already checked in")
	ErrAlreadyHandled        = errors.New("already handled by another worker")
	ErrIllegalTransition     = errors.New("illegal status transition")
	ErrTicketTypeInUse       = errors.New("ticket type has held or live booked tickets")
)

// ErrLedgerIntegrity means sold + held drifted outside [0, total].
var ErrLedgerIntegrity = errors.New("inventory ledger integrity violation")

// InventoryError names the ticket type a ledger operation refused.
type InventoryError struct {
	TicketTypeID string
	Requested    int
	Available    int
	Err          error
}

func (e *InventoryError) Error() string {
	return fmt.Sprintf("ticket type %s: requested %d, available %d: %v", e.TicketTypeID, e.Requested, e.Available, e.Err)
}

func (e *InventoryError) Unwrap() error {
	return e.Err
}
