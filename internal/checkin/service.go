package checkin

import (
	"context"
	"fmt"
	"time"

	"ms-booking/internal/clock"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/tickets/qr"
)

type DBLayer interface {
	GetTicketByCode(ctx context.Context, code string) (*models.IssuedTicket, error)
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	MarkCheckedIn(ctx context.Context, ticketID string, at time.Time) (bool, error)
}

type Notifier interface {
	CheckedIn(ctx context.Context, ev models.CheckInEvent)
}

// PayloadOpener decrypts what a scanner read off a ticket's QR code.
type PayloadOpener interface {
	Open(sealed string) (qr.Payload, error)
}

// Gate admits issued tickets. Admission is a single conditional update on
// the ticket row, so two scanners reading the same code cannot both win.
type Gate struct {
	db        DBLayer
	clock     clock.Clock
	logger    *logger.Logger
	opener    PayloadOpener
	notifiers []Notifier
}

type Option func(*Gate)

// WithNotifier adds a listener for successful check-ins. May be repeated.
func WithNotifier(n Notifier) Option {
	return func(g *Gate) { g.notifiers = append(g.notifiers, n) }
}

func WithPayloadOpener(o PayloadOpener) Option {
	return func(g *Gate) { g.opener = o }
}

func NewGate(db DBLayer, clk clock.Clock, log *logger.Logger, opts ...Option) *Gate {
	g := &Gate{db: db, clock: clk, logger: log}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckIn marks the ticket used. A ticket that was already admitted comes
// back together with ErrAlreadyCheckedIn so the door can show when.
func (g *Gate) CheckIn(ctx context.Context, code string) (*models.IssuedTicket, error) {
	ticket, err := g.db.GetTicketByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	b, err := g.db.GetBooking(ctx, ticket.BookingID)
	if err != nil {
		return nil, err
	}
	if !b.Admissible() {
		g.logger.Warn("CHECKIN", fmt.Sprintf("refused %s: booking %s is %s/%s", code, b.BookingNumber, b.Status, b.PaymentStatus))
		return nil, fmt.Errorf("booking %s is %s/%s: %w", b.BookingNumber, b.Status, b.PaymentStatus, models.ErrBookingNotPayable)
	}
	if ticket.CheckedIn {
		return ticket, models.ErrAlreadyCheckedIn
	}

	now := g.clock.Now()
	won, err := g.db.MarkCheckedIn(ctx, ticket.ID, now)
	if err != nil {
		return nil, err
	}
	if !won {
		if ticket, err = g.db.GetTicketByCode(ctx, code); err != nil {
			return nil, err
		}
		return ticket, models.ErrAlreadyCheckedIn
	}

	ticket.CheckedIn = true
	ticket.CheckedInAt = &now
	g.logger.Info("CHECKIN", fmt.Sprintf("admitted %s for booking %s", code, b.BookingNumber))

	ev := models.CheckInEvent{
		Type:         models.EventTicketCheckedIn,
		TicketCode:   ticket.TicketCode,
		EventID:      ticket.EventID,
		TicketTypeID: ticket.TicketTypeID,
		AttendeeName: ticket.AttendeeName,
		CheckedInAt:  now,
	}
	for _, n := range g.notifiers {
		n.CheckedIn(ctx, ev)
	}
	return ticket, nil
}

// CheckInQR admits the ticket sealed in a scanned QR payload. The payload's
// booking number must match the ticket's booking.
func (g *Gate) CheckInQR(ctx context.Context, sealed string) (*models.IssuedTicket, error) {
	if g.opener == nil {
		return nil, fmt.Errorf("qr check-in not configured: %w", qr.ErrInvalidPayload)
	}
	p, err := g.opener.Open(sealed)
	if err != nil {
		g.logger.LogSecurity("CHECKIN_QR", fmt.Sprintf("unreadable payload: %v", err))
		return nil, err
	}
	ticket, err := g.db.GetTicketByCode(ctx, p.TicketCode)
	if err != nil {
		return nil, err
	}
	b, err := g.db.GetBooking(ctx, ticket.BookingID)
	if err != nil {
		return nil, err
	}
	if b.BookingNumber != p.BookingNumber {
		g.logger.LogSecurity("CHECKIN_QR", fmt.Sprintf("ticket %s presented with booking %s", p.TicketCode, p.BookingNumber))
		return nil, fmt.Errorf("booking mismatch: %w", qr.ErrInvalidPayload)
	}
	return g.CheckIn(ctx, p.TicketCode)
}
