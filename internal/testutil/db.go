package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-booking/internal/database"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// NewDB returns an in-memory SQLite database with the full schema. A single
// connection is used because every ":memory:" connection is its own database.
func NewDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err, "open sqlite")
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.CreateSchema(context.Background(), db), "create schema")
	return db
}

// Epoch is the fixed start time used by service tests.
var Epoch = time.Date(2030, time.March, 1, 12, 0, 0, 0, time.UTC)

func SeedEvent(t *testing.T, db *bun.DB, startsAt time.Time) *models.Event {
	t.Helper()
	ev := &models.Event{
		ID:        utils.NewID(),
		Title:     "Test Event",
		StartsAt:  startsAt,
		EndsAt:    startsAt.Add(4 * time.Hour),
		Status:    models.EventPublished,
		CreatedAt: Epoch,
	}
	_, err := db.NewInsert().Model(ev).Exec(context.Background())
	require.NoError(t, err, "seed event")
	return ev
}

// TicketTypeOption tweaks a seeded ticket type.
type TicketTypeOption func(*models.TicketType)

func WithPrice(p int64) TicketTypeOption {
	return func(tt *models.TicketType) { tt.UnitPrice = p }
}

func WithBounds(min, max int) TicketTypeOption {
	return func(tt *models.TicketType) { tt.MinPerOrder, tt.MaxPerOrder = min, max }
}

func WithCounters(sold, held int) TicketTypeOption {
	return func(tt *models.TicketType) { tt.QuantitySold, tt.QuantityReserved = sold, held }
}

func WithSaleWindow(starts, ends *time.Time) TicketTypeOption {
	return func(tt *models.TicketType) { tt.SaleStarts, tt.SaleEnds = starts, ends }
}

func Inactive() TicketTypeOption {
	return func(tt *models.TicketType) { tt.IsActive = false }
}

func SeedTicketType(t *testing.T, db *bun.DB, eventID string, total int, opts ...TicketTypeOption) *models.TicketType {
	t.Helper()
	tt := &models.TicketType{
		ID:            utils.NewID(),
		EventID:       eventID,
		Name:          "General Admission",
		UnitPrice:     2500,
		QuantityTotal: total,
		MinPerOrder:   1,
		MaxPerOrder:   10,
		IsActive:      true,
		CreatedAt:     Epoch,
		UpdatedAt:     Epoch,
	}
	for _, opt := range opts {
		opt(tt)
	}
	_, err := db.NewInsert().Model(tt).Exec(context.Background())
	require.NoError(t, err, "seed ticket type")
	return tt
}

// LoadTicketType reads the current counters straight from the table.
func LoadTicketType(t *testing.T, db *bun.DB, id string) *models.TicketType {
	t.Helper()
	tt := new(models.TicketType)
	err := db.NewSelect().Model(tt).Where("id = ?", id).Scan(context.Background())
	require.NoError(t, err, "load ticket type %s", id)
	return tt
}

// SeedBooking inserts a booking with n tickets of one type, bypassing the
// reservation flow.
func SeedBooking(t *testing.T, db *bun.DB, tt *models.TicketType, status models.BookingStatus, payment models.PaymentStatus, n int) *models.Booking {
	t.Helper()
	ctx := context.Background()
	number, err := utils.NewBookingNumber()
	require.NoError(t, err, "booking number")
	b := &models.Booking{
		ID:            utils.NewID(),
		BookingNumber: number,
		ReservationID: utils.NewID(),
		BuyerID:       "buyer-seed",
		EventID:       tt.EventID,
		TotalAmount:   tt.UnitPrice * int64(n),
		Status:        status,
		PaymentStatus: payment,
		CreatedAt:     Epoch,
		UpdatedAt:     Epoch,
	}
	for i := 0; i < n; i++ {
		code, err := utils.NewTicketCode()
		require.NoError(t, err, "ticket code")
		b.Tickets = append(b.Tickets, models.IssuedTicket{
			ID:           utils.NewID(),
			TicketCode:   code,
			BookingID:    b.ID,
			TicketTypeID: tt.ID,
			EventID:      tt.EventID,
			UnitPrice:    tt.UnitPrice,
			AttendeeName: "Seed Attendee",
			CreatedAt:    Epoch,
		})
	}
	_, err = db.NewInsert().Model(b).Exec(ctx)
	require.NoError(t, err, "seed booking")
	if n > 0 {
		_, err = db.NewInsert().Model(&b.Tickets).Exec(ctx)
		require.NoError(t, err, "seed tickets")
	}
	return b
}
