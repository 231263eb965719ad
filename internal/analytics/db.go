package analytics

import (
	"context"

	"ms-booking/internal/database"
	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

// DB handles analytics database operations
type DB struct {
	bun *bun.DB
}

// NewDB creates a new analytics DB handler
func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// GetEvent loads the event the statistics are for
func (db *DB) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	ev := new(models.Event)
	err := db.bun.NewSelect().Model(ev).Where("id = ?", eventID).Limit(1).Scan(ctx)
	if database.IsNotFound(err) {
		return nil, models.ErrEventNotFound
	}
	return ev, err
}

// GetTicketTypesByEventID retrieves the ledger rows of an event
func (db *DB) GetTicketTypesByEventID(ctx context.Context, eventID string) ([]models.TicketType, error) {
	var types []models.TicketType
	err := db.bun.NewSelect().
		Model(&types).
		Where("event_id = ?", eventID).
		Order("name ASC").
		Scan(ctx)
	return types, err
}

// GetBookingsByEventID retrieves the booking headers of an event
func (db *DB) GetBookingsByEventID(ctx context.Context, eventID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := db.bun.NewSelect().
		Model(&bookings).
		Column("id", "status", "payment_status", "total_amount", "created_at").
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Scan(ctx)
	return bookings, err
}

// GetTicketsByEventID retrieves the issued tickets of an event
func (db *DB) GetTicketsByEventID(ctx context.Context, eventID string) ([]models.IssuedTicket, error) {
	var tickets []models.IssuedTicket
	err := db.bun.NewSelect().
		Model(&tickets).
		Column("id", "booking_id", "ticket_type_id", "unit_price", "checked_in").
		Where("event_id = ?", eventID).
		Scan(ctx)
	return tickets, err
}
