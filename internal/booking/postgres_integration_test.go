//go:build integration

package booking_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ms-booking/internal/booking"
	bookingdb "ms-booking/internal/booking/db"
	"ms-booking/internal/clock"
	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/inventory"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/reservation"
	resdb "ms-booking/internal/reservation/db"
	"ms-booking/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
)

func startPostgres(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "booking",
				"POSTGRES_PASSWORD": "booking",
				"POSTGRES_DB":       "booking",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { pg.Terminate(ctx) })

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432")
	require.NoError(t, err)

	log := logger.NewNopLogger()
	db, err := database.Open(ctx, config.DatabaseConfig{
		DSN:            fmt.Sprintf("postgres://booking:booking@%s:%s/booking?sslmode=disable", host, port.Port()),
		MaxOpenConns:   20,
		MaxIdleConns:   20,
		MaxLifetime:    time.Minute,
		ConnectRetries: 5,
		SlowQuery:      time.Second,
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runner := migrations.NewRunner(db, log)
	require.NoError(t, runner.RunMigrations())
	require.NoError(t, runner.Close())
	return db
}

func TestPostgresNoOversell(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}
	db := startPostgres(t)
	clk := clock.NewManual(testutil.Epoch)
	log := logger.NewNopLogger()
	ledger := inventory.NewLedger(db, clk, log)
	store := reservation.NewStore(&resdb.DB{Bun: db}, ledger, clk, log)
	finalizer := booking.NewFinalizer(&bookingdb.DB{Bun: db}, store, ledger, clk, log)

	event := testutil.SeedEvent(t, db, testutil.Epoch.Add(48*time.Hour))
	a := testutil.SeedTicketType(t, db, event.ID, 5)
	b := testutil.SeedTicketType(t, db, event.ID, 5)

	const buyers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		booked  int
		refused int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := context.Background()
			buyer := fmt.Sprintf("buyer-%d", i)
			// alternate line order so row locks are requested in both orders
			lines := []models.LineItemRequest{{TicketTypeID: a.ID, Quantity: 1}, {TicketTypeID: b.ID, Quantity: 1}}
			if i%2 == 1 {
				lines[0], lines[1] = lines[1], lines[0]
			}
			r, err := store.Create(ctx, buyer, event.ID, lines)
			if err != nil {
				mu.Lock()
				defer mu.Unlock()
				if errors.Is(err, models.ErrInsufficientInventory) {
					refused++
					return
				}
				t.Errorf("reserve %s: %v", buyer, err)
				return
			}
			_, err = finalizer.Confirm(ctx, r.Token, buyer, models.PaymentData{PaymentMethod: "card"})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.Errorf("confirm %s: %v", buyer, err)
				return
			}
			booked++
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, booked)
	assert.Equal(t, buyers-5, refused)
	for _, id := range []string{a.ID, b.ID} {
		tt := testutil.LoadTicketType(t, db, id)
		assert.Equal(t, 5, tt.QuantitySold)
		assert.Zero(t, tt.QuantityReserved)
		assert.True(t, tt.Consistent())
	}
}

func TestPostgresConcurrentConfirmOneBooking(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}
	db := startPostgres(t)
	clk := clock.NewManual(testutil.Epoch)
	log := logger.NewNopLogger()
	ledger := inventory.NewLedger(db, clk, log)
	store := reservation.NewStore(&resdb.DB{Bun: db}, ledger, clk, log)
	finalizer := booking.NewFinalizer(&bookingdb.DB{Bun: db}, store, ledger, clk, log)

	event := testutil.SeedEvent(t, db, testutil.Epoch.Add(48*time.Hour))
	tt := testutil.SeedTicketType(t, db, event.ID, 10)
	r, err := store.Create(context.Background(), "buyer-1", event.ID, []models.LineItemRequest{{TicketTypeID: tt.ID, Quantity: 3}})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		numbers = map[string]bool{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := finalizer.Confirm(context.Background(), r.Token, "buyer-1", models.PaymentData{})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.Errorf("confirm: %v", err)
				return
			}
			if res.Created {
				created++
			}
			numbers[res.Booking.BookingNumber] = true
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, numbers, 1)
	got := testutil.LoadTicketType(t, db, tt.ID)
	assert.Equal(t, 3, got.QuantitySold)
	assert.Zero(t, got.QuantityReserved)
}

func TestPostgresMalformedIDsAreNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}
	db := startPostgres(t)
	ctx := context.Background()
	clk := clock.NewManual(testutil.Epoch)
	log := logger.NewNopLogger()
	ledger := inventory.NewLedger(db, clk, log)
	catalog := inventory.NewCatalog(db, clk, log)
	store := reservation.NewStore(&resdb.DB{Bun: db}, ledger, clk, log)
	finalizer := booking.NewFinalizer(&bookingdb.DB{Bun: db}, store, ledger, clk, log)

	event := testutil.SeedEvent(t, db, testutil.Epoch.Add(48*time.Hour))
	tt := testutil.SeedTicketType(t, db, event.ID, 5)

	_, err := store.Create(ctx, "buyer-1", "abc", []models.LineItemRequest{{TicketTypeID: tt.ID, Quantity: 1}})
	assert.ErrorIs(t, err, models.ErrEventNotFound)

	_, err = store.Create(ctx, "buyer-1", event.ID, []models.LineItemRequest{{TicketTypeID: tt.ID, Quantity: 1}, {TicketTypeID: "x", Quantity: 1}})
	assert.ErrorIs(t, err, models.ErrTicketTypeNotFound)

	_, err = ledger.UpdateCapacity(ctx, "x", 10)
	assert.ErrorIs(t, err, models.ErrTicketTypeNotFound)

	_, err = catalog.UpdateTicketType(ctx, "x", models.UpdateTicketTypeRequest{})
	assert.ErrorIs(t, err, models.ErrTicketTypeNotFound)
	assert.ErrorIs(t, catalog.DeleteTicketType(ctx, "x"), models.ErrTicketTypeNotFound)

	_, err = finalizer.ListEventBookings(ctx, "abc")
	assert.ErrorIs(t, err, models.ErrEventNotFound)

	// nothing was held by the refused attempts
	assert.Zero(t, testutil.LoadTicketType(t, db, tt.ID).QuantityReserved)
}
