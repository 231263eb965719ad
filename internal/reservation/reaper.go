package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

const DefaultSweepBatch = 100

// SweepLock keeps several service instances from sweeping at the same time.
// Losing it only skips a cycle; correctness comes from the status
// compare-and-set.
type SweepLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Auditor checks the ledger invariant after each sweep.
type Auditor interface {
	Audit(ctx context.Context) ([]models.TicketType, error)
}

type Reaper struct {
	store   *Store
	logger  *logger.Logger
	batch   int
	lock    SweepLock
	auditor Auditor
}

type ReaperOption func(*Reaper)

func WithBatchSize(n int) ReaperOption {
	return func(r *Reaper) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithSweepLock(l SweepLock) ReaperOption {
	return func(r *Reaper) { r.lock = l }
}

func WithAuditor(a Auditor) ReaperOption {
	return func(r *Reaper) { r.auditor = a }
}

func NewReaper(store *Store, log *logger.Logger, opts ...ReaperOption) *Reaper {
	r := &Reaper{store: store, logger: log, batch: DefaultSweepBatch}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sweep expires every active reservation whose hold has run out and returns
// how many this call released. Reservations another worker expired first
// are skipped.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	released := 0
	var errs []error

	for {
		expired, err := r.store.ListExpired(ctx, r.batch)
		if err != nil {
			return released, err
		}
		progress := 0
		for i := range expired {
			res := &expired[i]
			won, err := r.store.Expire(ctx, res)
			if err != nil {
				errs = append(errs, fmt.Errorf("expire reservation %s: %w", res.ID, err))
				continue
			}
			progress++
			if won {
				released++
			}
		}
		if len(expired) < r.batch || progress == 0 || ctx.Err() != nil {
			break
		}
	}

	if released > 0 {
		r.logger.Info("REAPER", fmt.Sprintf("Released %d expired reservations", released))
	}
	return released, errors.Join(errs...)
}

// RunOnce performs one locked sweep plus the ledger audit.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	if r.lock != nil {
		ok, err := r.lock.Acquire(ctx)
		if err != nil {
			r.logger.Warn("REAPER", fmt.Sprintf("sweep lock unavailable, sweeping anyway: %v", err))
		} else if !ok {
			r.logger.Debug("REAPER", "another instance holds the sweep lock")
			return 0, nil
		} else {
			defer func() {
				if err := r.lock.Release(context.WithoutCancel(ctx)); err != nil {
					r.logger.Warn("REAPER", fmt.Sprintf("release sweep lock: %v", err))
				}
			}()
		}
	}

	n, err := r.Sweep(ctx)
	if err != nil {
		r.logger.Error("REAPER", fmt.Sprintf("sweep finished with errors: %v", err))
	}
	if r.auditor != nil {
		broken, auditErr := r.auditor.Audit(ctx)
		if auditErr != nil {
			r.logger.Error("REAPER", fmt.Sprintf("ledger audit failed: %v", auditErr))
		} else if len(broken) > 0 {
			r.logger.Error("REAPER", fmt.Sprintf("ledger audit suspended %d ticket types", len(broken)))
		}
		err = errors.Join(err, auditErr)
	}
	return n, err
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	r.logger.LogProcess("REAPER", fmt.Sprintf("started, interval=%s batch=%d", interval, r.batch))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.LogProcess("REAPER", "stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}
