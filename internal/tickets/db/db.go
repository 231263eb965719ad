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

// GetTicketByCode → issued ticket by its human readable code
func (d *DB) GetTicketByCode(ctx context.Context, code string) (*models.IssuedTicket, error) {
	ticket := new(models.IssuedTicket)
	err := d.conn(ctx).NewSelect().
		Model(ticket).
		Where("ticket_code = ?", code).
		Limit(1).
		Scan(ctx)
	if database.IsNotFound(err) {
		return nil, models.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket %s: %w", code, err)
	}
	return ticket, nil
}

// GetBooking → the booking a ticket belongs to, without its tickets
func (d *DB) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	b := new(models.Booking)
	err := d.conn(ctx).NewSelect().Model(b).Where("id = ?", bookingID).Limit(1).Scan(ctx)
	if database.IsNotFound(err) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load booking: %w", err)
	}
	return b, nil
}

// MarkCheckedIn flips checked_in exactly once. False means somebody else
// already admitted this ticket.
func (d *DB) MarkCheckedIn(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	res, err := d.conn(ctx).NewUpdate().
		Model((*models.IssuedTicket)(nil)).
		Set("checked_in = ?", true).
		Set("checked_in_at = ?", at).
		Where("id = ?", ticketID).
		Where("checked_in = ?", false).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("check in ticket %s: %w", ticketID, err)
	}
	n, err := database.Affected(res)
	return n == 1, err
}
