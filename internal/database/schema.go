package database

import (
	"context"
	"fmt"

	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

var schemaModels = []interface{}{
	(*models.Event)(nil),
	(*models.TicketType)(nil),
	(*models.Reservation)(nil),
	(*models.ReservationItem)(nil),
	(*models.Booking)(nil),
	(*models.IssuedTicket)(nil),
}

// CreateSchema builds the tables straight from the models. Production
// databases use the SQL migrations instead; this serves SQLite and local runs.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, m := range schemaModels {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}

	indexes := []struct {
		model   interface{}
		name    string
		columns []string
	}{
		{(*models.Reservation)(nil), "reservations_status_expires_idx", []string{"status", "expires_at"}},
		{(*models.ReservationItem)(nil), "reservation_items_reservation_idx", []string{"reservation_id"}},
		{(*models.TicketType)(nil), "ticket_types_event_idx", []string{"event_id"}},
		{(*models.Booking)(nil), "bookings_buyer_idx", []string{"buyer_id"}},
		{(*models.IssuedTicket)(nil), "issued_tickets_booking_idx", []string{"booking_id"}},
	}
	for _, idx := range indexes {
		_, err := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.columns...).IfNotExists().Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
