package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/clock"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

type DBLayer interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	InsertBooking(ctx context.Context, b *models.Booking) error
	GetByNumber(ctx context.Context, number string) (*models.Booking, error)
	GetByReservationToken(ctx context.Context, token string) (*models.Booking, error)
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	Cancel(ctx context.Context, id string, from models.BookingStatus, reason, actorID string, now time.Time) (bool, error)
	UpdatePayment(ctx context.Context, id string, from, to models.PaymentStatus, intentID string, now time.Time) (bool, error)
	ListByBuyer(ctx context.Context, buyerID string, filter models.BookingFilter, now time.Time) ([]models.Booking, error)
	ListByEvent(ctx context.Context, eventID string) ([]models.Booking, error)
}

// ReservationStore is the part of the reservation store a booking consumes.
type ReservationStore interface {
	GetActive(ctx context.Context, token, buyerID string) (*models.Reservation, error)
	Complete(ctx context.Context, r *models.Reservation) error
	Expire(ctx context.Context, r *models.Reservation) (bool, error)
	Forget(ctx context.Context, token string)
}

type InventoryLedger interface {
	Commit(ctx context.Context, ticketTypeID string, qty int) error
}

type Notifier interface {
	BookingCreated(ctx context.Context, ev models.BookingEvent)
	BookingConfirmed(ctx context.Context, ev models.BookingEvent)
	BookingCancelled(ctx context.Context, ev models.BookingEvent)
}

// ConfirmResult carries the booking and whether this call created it. A
// repeated confirm of the same reservation returns the original booking.
type ConfirmResult struct {
	Booking *models.Booking
	Created bool
}

type Finalizer struct {
	db            DBLayer
	reservations  ReservationStore
	ledger        InventoryLedger
	clock         clock.Clock
	logger        *logger.Logger
	notifier      Notifier
	newTicketCode func() (string, error)
	newNumber     func() (string, error)
}

type Option func(*Finalizer)

func WithNotifier(n Notifier) Option {
	return func(f *Finalizer) { f.notifier = n }
}

// WithTicketCodes replaces the ticket code generator.
func WithTicketCodes(gen func() (string, error)) Option {
	return func(f *Finalizer) { f.newTicketCode = gen }
}

func NewFinalizer(db DBLayer, reservations ReservationStore, ledger InventoryLedger, clk clock.Clock, log *logger.Logger, opts ...Option) *Finalizer {
	f := &Finalizer{
		db:            db,
		reservations:  reservations,
		ledger:        ledger,
		clock:         clk,
		logger:        log,
		newTicketCode: utils.NewTicketCode,
		newNumber:     utils.NewBookingNumber,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Confirm turns an active reservation into a booking. Completing the
// reservation, inserting the booking with one ticket per unit and moving
// held to sold all happen in one transaction; a failure anywhere leaves the
// reservation active and the ledger untouched so the caller may retry.
func (f *Finalizer) Confirm(ctx context.Context, token, buyerID string, payment models.PaymentData) (*ConfirmResult, error) {
	r, err := f.reservations.GetActive(ctx, token, buyerID)
	if errors.Is(err, models.ErrReservationCompleted) {
		return f.existing(ctx, token, buyerID)
	}
	if err != nil {
		return nil, err
	}

	var b *models.Booking
	err = f.db.WithTx(ctx, func(ctx context.Context) error {
		if err := f.reservations.Complete(ctx, r); err != nil {
			return err
		}
		var err error
		if b, err = f.newBooking(r, payment); err != nil {
			return err
		}
		if err := f.db.InsertBooking(ctx, b); err != nil {
			return err
		}
		for _, it := range models.LockOrder(r.Items) {
			if err := f.ledger.Commit(ctx, it.TicketTypeID, it.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	switch {
	case errors.Is(err, models.ErrReservationExpired):
		// Lost to the clock between the lookup and the transaction.
		if _, expErr := f.reservations.Expire(ctx, r); expErr != nil {
			f.logger.Warn("BOOKING", fmt.Sprintf("expire after failed confirm: %v", expErr))
		}
		return nil, err
	case errors.Is(err, models.ErrReservationCompleted):
		return f.existing(ctx, token, buyerID)
	case err != nil:
		f.logger.Error("BOOKING", fmt.Sprintf("confirm %s failed, reservation left active: %v", shortToken(token), err))
		return nil, err
	}

	f.reservations.Forget(ctx, token)
	f.logger.LogBooking("CREATE", b.BookingNumber, fmt.Sprintf("buyer=%s total=%d tickets=%d status=%s/%s",
		b.BuyerID, b.TotalAmount, len(b.Tickets), b.Status, b.PaymentStatus))

	if f.notifier != nil {
		now := f.clock.Now()
		f.notifier.BookingCreated(ctx, models.NewBookingEvent(models.EventBookingCreated, b, now))
		if b.Status == models.BookingConfirmed {
			f.notifier.BookingConfirmed(ctx, models.NewBookingEvent(models.EventBookingConfirmed, b, now))
		}
	}
	return &ConfirmResult{Booking: b, Created: true}, nil
}

func (f *Finalizer) existing(ctx context.Context, token, buyerID string) (*ConfirmResult, error) {
	b, err := f.db.GetByReservationToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if b.BuyerID != buyerID {
		return nil, models.ErrReservationNotFound
	}
	return &ConfirmResult{Booking: b}, nil
}

func (f *Finalizer) newBooking(r *models.Reservation, payment models.PaymentData) (*models.Booking, error) {
	number, err := f.newNumber()
	if err != nil {
		return nil, err
	}
	now := f.clock.Now()
	b := &models.Booking{
		ID:              utils.NewID(),
		BookingNumber:   number,
		ReservationID:   r.ID,
		BuyerID:         r.BuyerID,
		EventID:         r.EventID,
		TotalAmount:     r.Total(),
		Status:          models.BookingPending,
		PaymentStatus:   models.PaymentPending,
		PaymentMethod:   payment.PaymentMethod,
		PaymentIntentID: payment.PaymentIntentID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if b.TotalAmount == 0 {
		b.Status = models.BookingConfirmed
		b.PaymentStatus = models.PaymentFree
	}

	for _, it := range r.Items {
		for i := 0; i < it.Quantity; i++ {
			code, err := f.newTicketCode()
			if err != nil {
				return nil, err
			}
			b.Tickets = append(b.Tickets, models.IssuedTicket{
				ID:            utils.NewID(),
				TicketCode:    code,
				BookingID:     b.ID,
				TicketTypeID:  it.TicketTypeID,
				EventID:       r.EventID,
				UnitPrice:     it.UnitPrice,
				AttendeeName:  payment.AttendeeName,
				AttendeeEmail: payment.AttendeeEmail,
				CreatedAt:     now,
			})
		}
	}
	return b, nil
}

// CancelBooking cancels a pending or confirmed booking before its event
// starts. Sold inventory is not returned to the pool.
func (f *Finalizer) CancelBooking(ctx context.Context, number string, actor models.Actor, reason string) (*models.Booking, error) {
	b, err := f.db.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(b.BuyerID) {
		f.logger.LogSecurity("BOOKING_CANCEL", fmt.Sprintf("%s tried to cancel booking %s", actor.ID, number))
		return nil, models.ErrNotOwner
	}
	if b.Status == models.BookingCancelled {
		return b, nil
	}
	if err := b.Status.TransitionTo(models.BookingCancelled); err != nil {
		return nil, fmt.Errorf("%v: %w", err, models.ErrBookingNotCancellable)
	}

	ev, err := f.db.GetEvent(ctx, b.EventID)
	if err != nil {
		return nil, err
	}
	now := f.clock.Now()
	if ev.HasStarted(now) {
		return nil, fmt.Errorf("event %s already started: %w", ev.ID, models.ErrBookingNotCancellable)
	}

	won, err := f.db.Cancel(ctx, b.ID, b.Status, reason, actor.ID, now)
	if err != nil {
		return nil, err
	}
	if b, err = f.db.GetByNumber(ctx, number); err != nil {
		return nil, err
	}
	if !won {
		if b.Status == models.BookingCancelled {
			return b, nil
		}
		return nil, models.ErrAlreadyHandled
	}

	f.logger.LogBooking("CANCEL", number, fmt.Sprintf("by=%s staff=%t reason=%q", actor.ID, actor.Staff, reason))
	if f.notifier != nil {
		f.notifier.BookingCancelled(ctx, models.NewBookingEvent(models.EventBookingCancelled, b, now))
	}
	return b, nil
}

// UpdatePaymentStatus records a payment outcome. A payment reaching paid
// confirms a pending booking. Redelivery of the current status is a no-op.
func (f *Finalizer) UpdatePaymentStatus(ctx context.Context, number string, status models.PaymentStatus, intentID string) (*models.Booking, error) {
	if !status.Valid() || status == models.PaymentPending || status == models.PaymentFree {
		return nil, fmt.Errorf("%q: %w", status, models.ErrInvalidPaymentStatus)
	}
	b, err := f.db.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if b.PaymentStatus == status {
		return b, nil
	}
	wasPending := b.Status == models.BookingPending

	won, err := f.db.UpdatePayment(ctx, b.ID, b.PaymentStatus, status, intentID, f.clock.Now())
	if err != nil {
		return nil, err
	}
	if b, err = f.db.GetByNumber(ctx, number); err != nil {
		return nil, err
	}
	if !won {
		if b.PaymentStatus == status {
			return b, nil
		}
		return nil, models.ErrAlreadyHandled
	}

	f.logger.LogBooking("PAYMENT", number, fmt.Sprintf("payment=%s status=%s", b.PaymentStatus, b.Status))
	if wasPending && b.Status == models.BookingConfirmed && f.notifier != nil {
		f.notifier.BookingConfirmed(ctx, models.NewBookingEvent(models.EventBookingConfirmed, b, f.clock.Now()))
	}
	return b, nil
}

// GetBooking returns a booking to its buyer or to staff.
func (f *Finalizer) GetBooking(ctx context.Context, number string, actor models.Actor) (*models.Booking, error) {
	b, err := f.db.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(b.BuyerID) {
		return nil, models.ErrBookingNotFound
	}
	return b, nil
}

func (f *Finalizer) ListBuyerBookings(ctx context.Context, buyerID string, filter models.BookingFilter) ([]models.Booking, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("unknown booking status %q: %w", filter.Status, models.ErrInvalidFilter)
	}
	return f.db.ListByBuyer(ctx, buyerID, filter, f.clock.Now())
}

func (f *Finalizer) ListEventBookings(ctx context.Context, eventID string) ([]models.Booking, error) {
	if _, err := f.db.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return f.db.ListByEvent(ctx, eventID)
}

func shortToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "…"
}
