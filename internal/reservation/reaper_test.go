package reservation

import (
	"context"
	"sync"
	"testing"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLock struct {
	grant    bool
	acquired int
	released int
}

func (l *stubLock) Acquire(context.Context) (bool, error) {
	l.acquired++
	return l.grant, nil
}

func (l *stubLock) Release(context.Context) error {
	l.released++
	return nil
}

type stubAuditor struct{ calls int }

func (a *stubAuditor) Audit(context.Context) ([]models.TicketType, error) {
	a.calls++
	return nil, nil
}

func TestSweepReleasesOnlyExpiredHolds(t *testing.T) {
	f := setup(t)
	ga := testutil.SeedTicketType(t, f.db, f.event.ID, 20)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.store.Create(ctx, "early", f.event.ID, []models.LineItemRequest{line(ga.ID, 2)})
		require.NoError(t, err)
	}
	f.clock.Advance(5 * time.Minute)
	late, err := f.store.Create(ctx, "late", f.event.ID, []models.LineItemRequest{line(ga.ID, 3)})
	require.NoError(t, err)
	require.Equal(t, 7, f.held(t, ga.ID))

	f.clock.Advance(6 * time.Minute)
	reaper := NewReaper(f.store, logger.NewNopLogger(), WithBatchSize(1))

	n, err := reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, f.held(t, ga.ID))

	n, err = reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second sweep finds nothing")

	_, err = f.store.GetActive(ctx, late.Token, "late")
	assert.NoError(t, err)
}

func TestConcurrentSweepAndLazyExpiry(t *testing.T) {
	f := setup(t)
	ga := testutil.SeedTicketType(t, f.db, f.event.ID, 10)
	ctx := context.Background()

	r, err := f.store.Create(ctx, "buyer-1", f.event.ID, []models.LineItemRequest{line(ga.ID, 4)})
	require.NoError(t, err)
	_, err = f.store.Create(ctx, "buyer-2", f.event.ID, []models.LineItemRequest{line(ga.ID, 1)})
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)
	// keep buyer-2's hold alive by moving its deadline out
	_, err = f.db.NewUpdate().Model((*models.Reservation)(nil)).
		Set("expires_at = ?", f.clock.Now().Add(time.Hour)).
		Where("buyer_id = ?", "buyer-2").Exec(ctx)
	require.NoError(t, err)

	reaperA := NewReaper(f.store, logger.NewNopLogger())
	reaperB := NewReaper(f.store, logger.NewNopLogger())

	var wg sync.WaitGroup
	var mu sync.Mutex
	swept := 0
	for _, rp := range []*Reaper{reaperA, reaperB} {
		wg.Add(1)
		go func(rp *Reaper) {
			defer wg.Done()
			n, err := rp.Sweep(ctx)
			assert.NoError(t, err)
			mu.Lock()
			swept += n
			mu.Unlock()
		}(rp)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.store.GetActive(ctx, r.Token, "buyer-1")
		assert.ErrorIs(t, err, models.ErrReservationExpired)
	}()
	wg.Wait()

	assert.LessOrEqual(t, swept, 1)
	assert.Equal(t, 1, f.held(t, ga.ID), "the expired hold is released exactly once")
	require.Len(t, f.notifier.expired, 1)
}

func TestRunOnceRespectsSweepLock(t *testing.T) {
	f := setup(t)
	ga := testutil.SeedTicketType(t, f.db, f.event.ID, 10)
	ctx := context.Background()

	_, err := f.store.Create(ctx, "buyer-1", f.event.ID, []models.LineItemRequest{line(ga.ID, 2)})
	require.NoError(t, err)
	f.clock.Advance(time.Hour)

	lock := &stubLock{grant: false}
	auditor := &stubAuditor{}
	reaper := NewReaper(f.store, logger.NewNopLogger(), WithSweepLock(lock), WithAuditor(auditor))

	n, err := reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, f.held(t, ga.ID))
	assert.Zero(t, auditor.calls)

	lock.grant = true
	n, err = reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, f.held(t, ga.ID))
	assert.Equal(t, 1, lock.released)
	assert.Equal(t, 1, auditor.calls)
}

func TestRunStopsWithContext(t *testing.T) {
	f := setup(t)
	reaper := NewReaper(f.store, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}
