package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ms-booking/internal/clock"
	"ms-booking/internal/inventory"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	resdb "ms-booking/internal/reservation/db"
	"ms-booking/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type fakeTracker struct {
	mu        sync.Mutex
	tracked   map[string]time.Duration
	deadlines map[string]time.Time
	dropped   []string
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{tracked: map[string]time.Duration{}, deadlines: map[string]time.Time{}}
}

func (f *fakeTracker) Track(_ context.Context, token string, expiresAt time.Time, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked[token] = ttl
	f.deadlines[token] = expiresAt
	return nil
}

func (f *fakeTracker) Untrack(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tracked, token)
	f.dropped = append(f.dropped, token)
	return nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	expired []models.ReservationEvent
}

func (f *fakeNotifier) ReservationExpired(_ context.Context, ev models.ReservationEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, ev)
}

type fixture struct {
	db       *bun.DB
	clock    *clock.Manual
	store    *Store
	ledger   *inventory.Ledger
	tracker  *fakeTracker
	notifier *fakeNotifier
	event    *models.Event
}

func setup(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	clk := clock.NewManual(testutil.Epoch)
	log := logger.NewNopLogger()
	ledger := inventory.NewLedger(db, clk, log)
	tracker := newFakeTracker()
	notifier := &fakeNotifier{}
	store := NewStore(&resdb.DB{Bun: db}, ledger, clk, log,
		WithHoldTracker(tracker), WithNotifier(notifier))
	return &fixture{
		db:       db,
		clock:    clk,
		store:    store,
		ledger:   ledger,
		tracker:  tracker,
		notifier: notifier,
		event:    testutil.SeedEvent(t, db, testutil.Epoch.Add(30*24*time.Hour)),
	}
}

func (f *fixture) held(t *testing.T, ticketTypeID string) int {
	return testutil.LoadTicketType(t, f.db, ticketTypeID).QuantityReserved
}

func line(id string, qty int) models.LineItemRequest {
	return models.LineItemRequest{TicketTypeID: id, Quantity: qty}
}

func TestCreateReservationHoldsInventory(t *testing.T) {
	f := setup(t)
	ga := testutil.SeedTicketType(t, f.db, f.event.ID, 5, testutil.WithPrice(2500))
	vip := testutil.SeedTicketType(t, f.db, f.event.ID, 2, testutil.WithPrice(9000))

	r, err := f.store.Create(context.Background(), "buyer-1", f.event.ID, []models.LineItemRequest{line(ga.ID, 2), line(vip.ID, 1)})
	require.NoError(t, err)

	assert.Len(t, r.Token, 64)
	assert.Equal(t, models.ReservationActive, r.Status)
	assert.Equal(t, testutil.Epoch.Add(10*time.Minute), r.ExpiresAt)
	assert.Equal(t, int64(2*2500+9000), r.TotalAmount)
	require.Len(t, r.Items, 2)
	assert.Equal(t, ga.ID, r.Items[0].TicketTypeID)
	assert.Equal(t, int64(2500), r.Items[0].UnitPrice)

	assert.Equal(t, 2, f.held(t, ga.ID))
	assert.Equal(t, 1, f.held(t, vip.ID))
	assert.Equal(t, 10*time.Minute, f.tracker.tracked[r.Token])
	assert.Equal(t, r.ExpiresAt, f.tracker.deadlines[r.Token])
}

func TestCreateReservationIsAllOrNothing(t *testing.T) {
	f := setup(t)
	x := testutil.SeedTicketType(t, f.db, f.event.ID, 1)
	y := testutil.SeedTicketType(t, f.db, f.event.ID, 5)
	ctx := context.Background()

	_, err := f.store.Create(ctx, "buyer-1", f.event.ID, []models.LineItemRequest{line(x.ID, 2), line(y.ID, 1)})
	require.ErrorIs(t, err, models.ErrInsufficientInventory)
	var invErr *models.InventoryError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, x.ID, invErr.TicketTypeID)
	assert.Equal(t, 0, f.held(t, y.ID))

	// Second line fails after the first already took its hold.
	_, err = f.store.Create(ctx, "buyer-1", f.event.ID, []models.LineItemRequest{line(y.ID, 1), line(x.ID, 2)})
	require.ErrorIs(t, err, models.ErrInsufficientInventory)
	assert.Equal(t, 0, f.held(t, y.ID), "hold on the first line must roll back")
	assert.Equal(t, 0, f.held(t, x.ID))

	count, err := f.db.NewSelect().Model((*models.Reservation)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, f.tracker.tracked)
}

func TestCreateReservationValidation(t *testing.T) {
	f := setup(t)
	ga := testutil.SeedTicketType(t, f.db, f.event.ID, 50, testutil.WithBounds(2, 4))
	other := testutil.SeedEvent(t, f.db, testutil.Epoch.Add(time.Hour))
	foreign := testutil.SeedTicketType(t, f.db, other.ID, 50)
	draft := testutil.SeedEvent(t, f.db, testutil.Epoch.Add(time.Hour))
	_, err := f.db.NewUpdate().Model((*models.Event)(nil)).Set("status = ?", models.EventDraft).Where("id = ?", draft.ID).Exec(context.Background())
	require.NoError(t, err)
	draftType := testutil.SeedTicketType(t, f.db, draft.ID, 50)

	cases := []struct {
		name    string
		eventID string
		lines   []models.LineItemRequest
		want    error
	}{
		{"empty", f.event.ID, nil, models.ErrEmptyReservation},
		{"zero quantity", f.event.ID, []models.LineItemRequest{line(ga.ID, 0)}, models.ErrInvalidQuantity},
		{"below min", f.event.ID, []models.LineItemRequest{line(ga.ID, 1)}, models.ErrQuantityOutOfRange},
		{"above max", f.event.ID, []models.LineItemRequest{line(ga.ID, 5)}, models.ErrQuantityOutOfRange},
		{"duplicate line", f.event.ID, []models.LineItemRequest{line(ga.ID, 2), line(ga.ID, 2)}, models.ErrDuplicateLineItem},
		{"other event", f.event.ID, []models.LineItemRequest{line(foreign.ID, 1)}, models.ErrTicketTypeEventMismatch},
		{"unknown type", f.event.ID, []models.LineItemRequest{line("nope", 1)}, models.ErrTicketTypeNotFound},
		{"unknown event", "nope", []models.LineItemRequest{line(ga.ID, 2)}, models.ErrEventNotFound},
		{"draft event", draft.ID, []models.LineItemRequest{line(draftType.ID, 1)}, models.ErrNotOnSale},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.store.Create(context.Background(), "buyer-1", tc.eventID, tc.lines)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, 0, f.held(t, ga.ID))
}

func TestPriceSnapshotSurvivesPriceChange(t *testing.T) {
	f := setup(t)
	ga := testutil.SeedTicketType(t, f.db, f.event.ID, 5, testutil.WithPrice(1000))
	ctx := context.Background()

	r, err := f.store.Create(ctx, "buyer-1", f.event.ID, []models.LineItemRequest{line(ga.ID, 1)})
	require.NoError(t, err)

	catalog := inventory.NewCatalog(f.db, f.clock, logger.NewNopLogger())
	repriced, err := catalog.UpdateTicketType(ctx, ga.ID, models.UpdateTicketTypeRequest{Name: ga.Name, UnitPrice: 5000})
	require.NoError(t, err)
	require.Equal(t, int64(5000), repriced.UnitPrice)
	assert.Equal(t, 1, repriced.QuantityReserved)

	got, err := f.store.GetActive(ctx, r.Token, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.Items[0].UnitPrice)
	assert.Equal(t, int64(1000), got.Total())
}

func TestCancelReservation(t *testing.T) {
	f := setup(t)
	ga := testutil.SeedTicketType(t, f.db, f.event.ID, 5)
	ctx := context.Background()

	r, err := f.store.Create(ctx, "buyer-1", f.event.ID, []models.LineItemRequest{line(ga.ID, 3)})
	require.NoError(t, err)

	assert.ErrorIs(t, f.store.Cancel(ctx, r.Token, "buyer-2"), models.ErrNotOwner)
	assert.Equal(t, 3, f.held(t, ga.ID))

	require.NoError(t, f.store.Cancel(ctx, r.Token, "buyer-1"))
	assert.Equal(t, 0, f.held(t, ga.ID))
	assert.NotContains(t, f.tracker.tracked, r.Token)

	// Double submit is a no-op.
	require.NoError(t, f.store.Cancel(ctx, r.Token, "buyer-1"))
	assert.Equal(t, 0, f.held(t, ga.ID))

	_, err = f.store.GetActive(ctx, r.Token, "buyer-1")
	assert.ErrorIs(t, err, models.ErrReservationCancelled)

	assert.ErrorIs(t, f.store.Cancel(ctx, "missing", "buyer-1"), models.ErrReservationNotFound)
}

func TestCancelAfterDeadlineExpires(t *testing.T) {
	f := setup(t)
	ga := testutil.SeedTicketType(t, f.db, f.event.ID, 5)
	ctx := context.Background()

	r, err := f.store.Create(ctx, "buyer-1", f.event.ID, []models.LineItemRequest{line(ga.ID, 2)})
	require.NoError(t, err)
	f.clock.Advance(11 * time.Minute)

	require.NoError(t, f.store.Cancel(ctx, r.Token, "buyer-1"))
	assert.Equal(t, 0, f.held(t, ga.ID))
	require.Len(t, f.notifier.expired, 1)
	assert.Equal(t, 2, f.notifier.expired[0].Released)

	stored := new(models.Reservation)
	require.NoError(t, f.db.NewSelect().Model(stored).Where("token = ?", r.Token).Scan(ctx))
	assert.Equal(t, models.ReservationExpired, stored.Status)

	require.NoError(t, f.store.Cancel(ctx, r.Token, "buyer-1"))
	assert.Equal(t, 0, f.held(t, ga.ID))
	assert.Len(t, f.notifier.expired, 1)
}

func TestGetActiveLazilyExpires(t *testing.T) {
	f := setup(t)
	ga := testutil.SeedTicketType(t, f.db, f.event.ID, 5)
	ctx := context.Background()

	r, err := f.store.Create(ctx, "buyer-1", f.event.ID, []models.LineItemRequest{line(ga.ID, 2)})
	require.NoError(t, err)

	f.clock.Advance(9 * time.Minute)
	_, err = f.store.GetActive(ctx, r.Token, "buyer-1")
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	_, err = f.store.GetActive(ctx, r.Token, "buyer-1")
	assert.ErrorIs(t, err, models.ErrReservationExpired)
	assert.Equal(t, 0, f.held(t, ga.ID))

	stored := new(models.Reservation)
	require.NoError(t, f.db.NewSelect().Model(stored).Where("token = ?", r.Token).Scan(ctx))
	assert.Equal(t, models.ReservationExpired, stored.Status)

	_, err = f.store.GetActive(ctx, r.Token, "buyer-1")
	assert.ErrorIs(t, err, models.ErrReservationExpired)
	assert.Equal(t, 0, f.held(t, ga.ID))

	require.Len(t, f.notifier.expired, 1)
	assert.Equal(t, 2, f.notifier.expired[0].Released)
}

func TestGetActiveHidesForeignReservations(t *testing.T) {
	f := setup(t)
	ga := testutil.SeedTicketType(t, f.db, f.event.ID, 5)

	r, err := f.store.Create(context.Background(), "buyer-1", f.event.ID, []models.LineItemRequest{line(ga.ID, 1)})
	require.NoError(t, err)

	_, err = f.store.GetActive(context.Background(), r.Token, "buyer-2")
	assert.ErrorIs(t, err, models.ErrReservationNotFound)
}

func TestExpireReleasesExactlyOnce(t *testing.T) {
	f := setup(t)
	ga := testutil.SeedTicketType(t, f.db, f.event.ID, 10)
	ctx := context.Background()

	target, err := f.store.Create(ctx, "buyer-1", f.event.ID, []models.LineItemRequest{line(ga.ID, 2)})
	require.NoError(t, err)
	_, err = f.store.Create(ctx, "buyer-2", f.event.ID, []models.LineItemRequest{line(ga.ID, 3)})
	require.NoError(t, err)
	require.Equal(t, 5, f.held(t, ga.ID))

	const workers = 4
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			copyOf := *target
			won, err := f.store.Expire(ctx, &copyOf)
			if err != nil {
				t.Errorf("expire: %v", err)
				return
			}
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 3, f.held(t, ga.ID), "only the winner releases")
}

func TestExpireByTokenWaitsForDeadline(t *testing.T) {
	f := setup(t)
	ga := testutil.SeedTicketType(t, f.db, f.event.ID, 10)
	ctx := context.Background()

	r, err := f.store.Create(ctx, "buyer-1", f.event.ID, []models.LineItemRequest{line(ga.ID, 2)})
	require.NoError(t, err)

	won, err := f.store.ExpireByToken(ctx, r.Token)
	require.NoError(t, err)
	assert.False(t, won, "hold still running")

	f.clock.Advance(10 * time.Minute)
	won, err = f.store.ExpireByToken(ctx, r.Token)
	require.NoError(t, err)
	assert.True(t, won, "expires_at is inclusive")
	assert.Equal(t, 0, f.held(t, ga.ID))
}
