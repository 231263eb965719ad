package inventory

import (
	"context"
	"testing"
	"time"

	"ms-booking/internal/clock"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogCreateAndList(t *testing.T) {
	db := testutil.NewDB(t)
	clk := clock.NewManual(testutil.Epoch)
	catalog := NewCatalog(db, clk, logger.NewNopLogger())
	ctx := context.Background()

	ev, err := catalog.CreateEvent(ctx, models.CreateEventRequest{
		Title:    "Harbour Jazz Night",
		StartsAt: testutil.Epoch.Add(48 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, models.EventPublished, ev.Status)

	vip, err := catalog.CreateTicketType(ctx, ev.ID, models.CreateTicketTypeRequest{
		Name: "VIP", UnitPrice: 9900, QuantityTotal: 20, MaxPerOrder: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, vip.MinPerOrder)
	assert.Equal(t, 4, vip.MaxPerOrder)
	assert.True(t, vip.IsActive)

	later := clk.Now().Add(time.Hour)
	_, err = catalog.CreateTicketType(ctx, ev.ID, models.CreateTicketTypeRequest{
		Name: "Early Bird", QuantityTotal: 5, SaleStarts: &later,
	})
	require.NoError(t, err)

	avail, err := catalog.Availability(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, avail, 2)
	byName := map[string]models.TicketAvailability{}
	for _, a := range avail {
		byName[a.Name] = a
	}
	assert.Equal(t, 20, byName["VIP"].Available)
	assert.True(t, byName["VIP"].OnSale)
	assert.False(t, byName["Early Bird"].OnSale)
}

func TestCatalogValidation(t *testing.T) {
	db := testutil.NewDB(t)
	catalog := NewCatalog(db, clock.NewManual(testutil.Epoch), logger.NewNopLogger())
	ctx := context.Background()

	_, err := catalog.CreateEvent(ctx, models.CreateEventRequest{Title: " "})
	assert.ErrorIs(t, err, models.ErrInvalidEvent)

	_, err = catalog.CreateTicketType(ctx, "missing", models.CreateTicketTypeRequest{Name: "GA", QuantityTotal: 1})
	assert.ErrorIs(t, err, models.ErrEventNotFound)

	ev := testutil.SeedEvent(t, db, testutil.Epoch.Add(time.Hour))
	_, err = catalog.CreateTicketType(ctx, ev.ID, models.CreateTicketTypeRequest{Name: "GA", QuantityTotal: 1, MinPerOrder: 5, MaxPerOrder: 2})
	assert.ErrorIs(t, err, models.ErrInvalidTicketType)

	_, err = catalog.CreateTicketType(ctx, ev.ID, models.CreateTicketTypeRequest{Name: "GA", QuantityTotal: 1, UnitPrice: -1})
	assert.ErrorIs(t, err, models.ErrInvalidTicketType)
}

func TestUpdateTicketTypeLeavesCountersAlone(t *testing.T) {
	db := testutil.NewDB(t)
	clk := clock.NewManual(testutil.Epoch)
	catalog := NewCatalog(db, clk, logger.NewNopLogger())
	ctx := context.Background()
	ev := testutil.SeedEvent(t, db, testutil.Epoch.Add(48*time.Hour))
	tt := testutil.SeedTicketType(t, db, ev.ID, 10, testutil.WithCounters(3, 2))

	inactive := false
	ends := testutil.Epoch.Add(24 * time.Hour)
	clk.Advance(time.Minute)
	got, err := catalog.UpdateTicketType(ctx, tt.ID, models.UpdateTicketTypeRequest{
		Name: "  Standing  ", UnitPrice: 4200, MinPerOrder: 2, MaxPerOrder: 6, SaleEnds: &ends, IsActive: &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "Standing", got.Name)
	assert.Equal(t, int64(4200), got.UnitPrice)
	assert.Equal(t, 2, got.MinPerOrder)
	assert.Equal(t, 6, got.MaxPerOrder)
	require.NotNil(t, got.SaleEnds)
	assert.True(t, got.SaleEnds.Equal(ends))
	assert.False(t, got.IsActive)
	assert.Equal(t, 10, got.QuantityTotal)
	assert.Equal(t, 3, got.QuantitySold)
	assert.Equal(t, 2, got.QuantityReserved)

	// Omitting is_active keeps the current flag.
	got, err = catalog.UpdateTicketType(ctx, tt.ID, models.UpdateTicketTypeRequest{Name: "Standing", UnitPrice: 4200})
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, 1, got.MinPerOrder)
	assert.Equal(t, 10, got.MaxPerOrder)
}

func TestUpdateTicketTypeValidation(t *testing.T) {
	db := testutil.NewDB(t)
	catalog := NewCatalog(db, clock.NewManual(testutil.Epoch), logger.NewNopLogger())
	ctx := context.Background()
	ev := testutil.SeedEvent(t, db, testutil.Epoch.Add(48*time.Hour))
	tt := testutil.SeedTicketType(t, db, ev.ID, 10, testutil.WithPrice(1500))

	starts := testutil.Epoch.Add(2 * time.Hour)
	ends := testutil.Epoch.Add(time.Hour)
	bad := []models.UpdateTicketTypeRequest{
		{Name: " ", UnitPrice: 100},
		{Name: "GA", UnitPrice: -1},
		{Name: "GA", MinPerOrder: 5, MaxPerOrder: 2},
		{Name: "GA", SaleStarts: &starts, SaleEnds: &ends},
	}
	for _, req := range bad {
		_, err := catalog.UpdateTicketType(ctx, tt.ID, req)
		assert.ErrorIs(t, err, models.ErrInvalidTicketType, "%+v", req)
	}
	assert.Equal(t, int64(1500), testutil.LoadTicketType(t, db, tt.ID).UnitPrice)

	_, err := catalog.UpdateTicketType(ctx, "missing", models.UpdateTicketTypeRequest{})
	assert.ErrorIs(t, err, models.ErrTicketTypeNotFound)
}

func TestUpdateTicketTypeRefusesToReactivateDrift(t *testing.T) {
	db := testutil.NewDB(t)
	catalog := NewCatalog(db, clock.NewManual(testutil.Epoch), logger.NewNopLogger())
	ctx := context.Background()
	ev := testutil.SeedEvent(t, db, testutil.Epoch.Add(48*time.Hour))
	tt := testutil.SeedTicketType(t, db, ev.ID, 10, testutil.Inactive(), testutil.WithCounters(8, 4))

	active := true
	_, err := catalog.UpdateTicketType(ctx, tt.ID, models.UpdateTicketTypeRequest{Name: "GA", IsActive: &active})
	assert.ErrorIs(t, err, models.ErrLedgerIntegrity)
	assert.False(t, testutil.LoadTicketType(t, db, tt.ID).IsActive)
}

func TestDeleteTicketType(t *testing.T) {
	db := testutil.NewDB(t)
	clk := clock.NewManual(testutil.Epoch)
	catalog := NewCatalog(db, clk, logger.NewNopLogger())
	ctx := context.Background()
	ev := testutil.SeedEvent(t, db, testutil.Epoch.Add(48*time.Hour))

	held := testutil.SeedTicketType(t, db, ev.ID, 10, testutil.WithCounters(0, 2))
	assert.ErrorIs(t, catalog.DeleteTicketType(ctx, held.ID), models.ErrTicketTypeInUse)

	sold := testutil.SeedTicketType(t, db, ev.ID, 10, testutil.WithCounters(1, 0))
	testutil.SeedBooking(t, db, sold, models.BookingConfirmed, models.PaymentPaid, 1)
	assert.ErrorIs(t, catalog.DeleteTicketType(ctx, sold.ID), models.ErrTicketTypeInUse)

	refunded := testutil.SeedTicketType(t, db, ev.ID, 10, testutil.WithCounters(1, 0))
	testutil.SeedBooking(t, db, refunded, models.BookingCancelled, models.PaymentFailed, 1)
	require.NoError(t, catalog.DeleteTicketType(ctx, refunded.ID))

	_, err := catalog.GetTicketType(ctx, refunded.ID)
	assert.ErrorIs(t, err, models.ErrTicketTypeNotFound)
	assert.ErrorIs(t, catalog.DeleteTicketType(ctx, refunded.ID), models.ErrTicketTypeNotFound)
	_, err = catalog.UpdateTicketType(ctx, refunded.ID, models.UpdateTicketTypeRequest{Name: "GA"})
	assert.ErrorIs(t, err, models.ErrTicketTypeNotFound)

	// The row stays for the tickets that reference it.
	kept := new(models.TicketType)
	require.NoError(t, db.NewSelect().Model(kept).WhereDeleted().Where("id = ?", refunded.ID).Scan(ctx))
	assert.False(t, kept.DeletedAt.IsZero())
	assert.False(t, kept.IsActive)

	avail, err := catalog.Availability(ctx, ev.ID)
	require.NoError(t, err)
	assert.Len(t, avail, 2)

	assert.ErrorIs(t, catalog.DeleteTicketType(ctx, "missing"), models.ErrTicketTypeNotFound)
}

func TestDeletedTicketTypeCannotBeReserved(t *testing.T) {
	db := testutil.NewDB(t)
	clk := clock.NewManual(testutil.Epoch)
	log := logger.NewNopLogger()
	catalog := NewCatalog(db, clk, log)
	ledger := NewLedger(db, clk, log)
	ctx := context.Background()
	ev := testutil.SeedEvent(t, db, testutil.Epoch.Add(48*time.Hour))
	tt := testutil.SeedTicketType(t, db, ev.ID, 10)

	require.NoError(t, catalog.DeleteTicketType(ctx, tt.ID))
	assert.ErrorIs(t, ledger.Reserve(ctx, tt.ID, 1), models.ErrTicketTypeNotFound)
}
