package db

import (
	"context"
	"fmt"
	"time"

	"ms-booking/internal/database"
	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) conn(ctx context.Context) bun.IDB {
	return database.Conn(ctx, d.Bun)
}

func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.WithTx(ctx, d.Bun, fn)
}

// InsertBooking → persist a booking together with its issued tickets
func (d *DB) InsertBooking(ctx context.Context, b *models.Booking) error {
	conn := d.conn(ctx)
	if _, err := conn.NewInsert().Model(b).Exec(ctx); err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("booking for reservation %s: %w", b.ReservationID, models.ErrReservationCompleted)
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	if len(b.Tickets) > 0 {
		if _, err := conn.NewInsert().Model(&b.Tickets).Exec(ctx); err != nil {
			return fmt.Errorf("insert issued tickets: %w", err)
		}
	}
	return nil
}

// GetByNumber → booking with its tickets
func (d *DB) GetByNumber(ctx context.Context, number string) (*models.Booking, error) {
	return d.getBy(ctx, "booking_number = ?", number)
}

// GetByReservationToken → booking created from the reservation behind token
func (d *DB) GetByReservationToken(ctx context.Context, token string) (*models.Booking, error) {
	sub := d.conn(ctx).NewSelect().
		Model((*models.Reservation)(nil)).
		Column("id").
		Where("token = ?", token)
	return d.getBy(ctx, "reservation_id IN (?)", sub)
}

func (d *DB) getBy(ctx context.Context, where string, arg any) (*models.Booking, error) {
	b := new(models.Booking)
	err := d.conn(ctx).NewSelect().Model(b).Where(where, arg).Limit(1).Scan(ctx)
	if database.IsNotFound(err) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load booking: %w", err)
	}
	if b.Tickets, err = d.GetTickets(ctx, b.ID); err != nil {
		return nil, err
	}
	return b, nil
}

func (d *DB) GetTickets(ctx context.Context, bookingID string) ([]models.IssuedTicket, error) {
	var tickets []models.IssuedTicket
	err := d.conn(ctx).NewSelect().
		Model(&tickets).
		Where("booking_id = ?", bookingID).
		Order("ticket_type_id ASC", "ticket_code ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load issued tickets: %w", err)
	}
	return tickets, nil
}

func (d *DB) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	ev := new(models.Event)
	err := d.conn(ctx).NewSelect().Model(ev).Where("id = ?", eventID).Limit(1).Scan(ctx)
	if database.IsNotFound(err) {
		return nil, models.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", eventID, err)
	}
	return ev, nil
}

// Cancel is the compare-and-set from one live status to cancelled.
func (d *DB) Cancel(ctx context.Context, id string, from models.BookingStatus, reason, actorID string, now time.Time) (bool, error) {
	if err := from.TransitionTo(models.BookingCancelled); err != nil {
		return false, err
	}
	q := d.conn(ctx).NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", models.BookingCancelled).
		Set("cancelled_by = ?", actorID).
		Set("cancelled_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", from)
	if reason != "" {
		q = q.Set("cancellation_reason = ?", reason)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("cancel booking %s: %w", id, err)
	}
	n, err := database.Affected(res)
	return n == 1, err
}

// UpdatePayment moves payment_status from -> to. Reaching paid also confirms
// a pending booking in the same statement.
func (d *DB) UpdatePayment(ctx context.Context, id string, from, to models.PaymentStatus, intentID string, now time.Time) (bool, error) {
	if err := from.TransitionTo(to); err != nil {
		return false, err
	}
	q := d.conn(ctx).NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_status = ?", to).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("payment_status = ?", from)
	if intentID != "" {
		q = q.Set("payment_intent_id = ?", intentID)
	}
	if to == models.PaymentPaid {
		q = q.Set("status = CASE WHEN status = ? THEN ? ELSE status END", models.BookingPending, models.BookingConfirmed)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("update payment of booking %s: %w", id, err)
	}
	n, err := database.Affected(res)
	return n == 1, err
}

// ListByBuyer → a buyer's bookings, newest first
func (d *DB) ListByBuyer(ctx context.Context, buyerID string, filter models.BookingFilter, now time.Time) ([]models.Booking, error) {
	var out []models.Booking
	q := d.conn(ctx).NewSelect().
		Model(&out).
		Where("b.buyer_id = ?", buyerID).
		OrderExpr("b.created_at DESC")
	if filter.Status != "" {
		q = q.Where("b.status = ?", filter.Status)
	}
	if filter.Upcoming {
		q = q.Join("JOIN events AS ev ON ev.id = b.event_id").Where("ev.starts_at > ?", now)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list bookings of buyer %s: %w", buyerID, err)
	}
	return out, nil
}

// ListByEvent → every booking for an event, for organisers
func (d *DB) ListByEvent(ctx context.Context, eventID string) ([]models.Booking, error) {
	var out []models.Booking
	err := d.conn(ctx).NewSelect().
		Model(&out).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookings of event %s: %w", eventID, err)
	}
	return out, nil
}
