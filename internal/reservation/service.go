package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/clock"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

const DefaultHoldDuration = 10 * time.Minute

type DBLayer interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	GetTicketTypes(ctx context.Context, ids []string) (map[string]*models.TicketType, error)
	InsertReservation(ctx context.Context, r *models.Reservation) error
	GetByToken(ctx context.Context, token string) (*models.Reservation, error)
	GetStatus(ctx context.Context, id string) (models.ReservationStatus, error)
	GetItems(ctx context.Context, reservationID string) ([]models.ReservationItem, error)
	TransitionStatus(ctx context.Context, id string, from, to models.ReservationStatus, now time.Time) (bool, error)
	CompleteIfUnexpired(ctx context.Context, id string, now time.Time) (bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
}

type InventoryLedger interface {
	Reserve(ctx context.Context, ticketTypeID string, qty int) error
	Release(ctx context.Context, ticketTypeID string, qty int) error
}

// HoldTracker mirrors open holds into a TTL store so expiry can be pushed
// instead of polled. It is never the source of truth.
type HoldTracker interface {
	Track(ctx context.Context, token string, expiresAt time.Time, ttl time.Duration) error
	Untrack(ctx context.Context, token string) error
}

type Notifier interface {
	ReservationExpired(ctx context.Context, ev models.ReservationEvent)
}

type Store struct {
	db           DBLayer
	ledger       InventoryLedger
	clock        clock.Clock
	logger       *logger.Logger
	holdDuration time.Duration
	tracker      HoldTracker
	notifier     Notifier
	newToken     func() (string, error)
}

type Option func(*Store)

func WithHoldDuration(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.holdDuration = d
		}
	}
}

func WithHoldTracker(t HoldTracker) Option {
	return func(s *Store) { s.tracker = t }
}

func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

func NewStore(db DBLayer, ledger InventoryLedger, clk clock.Clock, log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		db:           db,
		ledger:       ledger,
		clock:        clk,
		logger:       log,
		holdDuration: DefaultHoldDuration,
		newToken:     utils.NewReservationToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) HoldDuration() time.Duration {
	return s.holdDuration
}

// Create holds inventory for every line item and records the reservation.
// Validation, the ledger holds and the insert share one transaction, so a
// failure on any line leaves every ticket type untouched.
func (s *Store) Create(ctx context.Context, buyerID, eventID string, lines []models.LineItemRequest) (*models.Reservation, error) {
	if buyerID == "" {
		return nil, models.ErrNotOwner
	}
	if err := validateLines(lines); err != nil {
		return nil, err
	}
	token, err := s.newToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	r := &models.Reservation{
		ID:        utils.NewID(),
		Token:     token,
		BuyerID:   buyerID,
		EventID:   eventID,
		Status:    models.ReservationActive,
		ExpiresAt: now.Add(s.holdDuration),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.WithTx(ctx, func(ctx context.Context) error {
		ev, err := s.db.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.Status != models.EventPublished {
			return fmt.Errorf("event %s is %s: %w", eventID, ev.Status, models.ErrNotOnSale)
		}

		ids := make([]string, len(lines))
		for i, line := range lines {
			ids[i] = line.TicketTypeID
		}
		types, err := s.db.GetTicketTypes(ctx, ids)
		if err != nil {
			return err
		}

		r.Items = make([]models.ReservationItem, 0, len(lines))
		for i, line := range lines {
			tt, ok := types[line.TicketTypeID]
			if !ok {
				return fmt.Errorf("ticket type %s: %w", line.TicketTypeID, models.ErrTicketTypeNotFound)
			}
			if tt.EventID != eventID {
				return fmt.Errorf("ticket type %s: %w", tt.ID, models.ErrTicketTypeEventMismatch)
			}
			if line.Quantity < tt.MinPerOrder || line.Quantity > tt.MaxPerOrder {
				return fmt.Errorf("ticket type %s allows %d-%d, got %d: %w",
					tt.ID, tt.MinPerOrder, tt.MaxPerOrder, line.Quantity, models.ErrQuantityOutOfRange)
			}
			r.Items = append(r.Items, models.ReservationItem{
				ID:            utils.NewID(),
				ReservationID: r.ID,
				TicketTypeID:  tt.ID,
				Position:      i,
				Quantity:      line.Quantity,
				UnitPrice:     tt.UnitPrice,
			})
		}
		for _, it := range models.LockOrder(r.Items) {
			if err := s.ledger.Reserve(ctx, it.TicketTypeID, it.Quantity); err != nil {
				return err
			}
		}
		r.TotalAmount = r.Total()
		return s.db.InsertReservation(ctx, r)
	})
	if err != nil {
		s.logger.Info("RESERVATION", fmt.Sprintf("hold refused for buyer %s on event %s: %v", buyerID, eventID, err))
		return nil, err
	}

	s.track(ctx, r)
	s.logger.LogReservation("CREATE", r.Token, fmt.Sprintf("buyer=%s event=%s items=%d total=%d expires=%s",
		buyerID, eventID, len(r.Items), r.TotalAmount, r.ExpiresAt.Format(time.RFC3339)))
	return r, nil
}

// GetActive returns the reservation while it is usable. An active
// reservation past its expiry is expired on the spot, through the same
// compare-and-set the reaper uses, before ErrReservationExpired is returned.
func (s *Store) GetActive(ctx context.Context, token, buyerID string) (*models.Reservation, error) {
	r, err := s.db.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if r.BuyerID != buyerID {
		return nil, models.ErrReservationNotFound
	}

	switch r.Status {
	case models.ReservationActive:
		if r.IsExpiredAt(s.clock.Now()) {
			if _, err := s.Expire(ctx, r); err != nil {
				return nil, err
			}
			return nil, models.ErrReservationExpired
		}
		return r, nil
	default:
		return nil, statusError(r.Status)
	}
}

// Cancel releases the holds of an active reservation. Cancelling one that is
// already terminal is a no-op, and one past its deadline ends up expired
// rather than cancelled.
func (s *Store) Cancel(ctx context.Context, token, buyerID string) error {
	r, err := s.db.GetByToken(ctx, token)
	if err != nil {
		return err
	}
	if r.BuyerID != buyerID {
		s.logger.LogSecurity("RESERVATION_CANCEL", fmt.Sprintf("buyer %s tried to cancel a reservation of %s", buyerID, r.BuyerID))
		return models.ErrNotOwner
	}
	if r.Status.IsTerminal() {
		return nil
	}
	if r.IsExpiredAt(s.clock.Now()) {
		_, err := s.Expire(ctx, r)
		return err
	}

	won, err := s.finish(ctx, r, models.ReservationCancelled)
	if err != nil {
		return err
	}
	if won {
		s.logger.LogReservation("CANCEL", r.Token, "holds released")
	}
	return nil
}

// Expire moves an active reservation to expired and releases its holds. Only
// the caller whose compare-and-set applies releases anything; everyone else
// gets false. Safe to call concurrently from the reaper, lazy expiry and the
// Redis subscriber.
func (s *Store) Expire(ctx context.Context, r *models.Reservation) (bool, error) {
	won, err := s.finish(ctx, r, models.ReservationExpired)
	if err != nil || !won {
		return won, err
	}

	released := 0
	for _, it := range r.Items {
		released += it.Quantity
	}
	s.logger.LogReservation("EXPIRE", r.Token, fmt.Sprintf("released %d held tickets", released))
	if s.notifier != nil {
		s.notifier.ReservationExpired(ctx, models.ReservationEvent{
			Type:          models.EventReservationExpired,
			ReservationID: r.ID,
			BuyerID:       r.BuyerID,
			EventID:       r.EventID,
			Released:      released,
			OccurredAt:    s.clock.Now(),
		})
	}
	return true, nil
}

// ExpireByToken expires the reservation if its hold has actually run out.
func (s *Store) ExpireByToken(ctx context.Context, token string) (bool, error) {
	r, err := s.db.GetByToken(ctx, token)
	if err != nil {
		return false, err
	}
	if r.Status != models.ReservationActive || !r.IsExpiredAt(s.clock.Now()) {
		return false, nil
	}
	return s.Expire(ctx, r)
}

// Complete marks the reservation consumed by a booking. It must run inside
// the booking transaction; a lost race comes back as the status error of
// whoever won.
func (s *Store) Complete(ctx context.Context, r *models.Reservation) error {
	won, err := s.db.CompleteIfUnexpired(ctx, r.ID, s.clock.Now())
	if err != nil {
		return err
	}
	if won {
		return nil
	}
	status, err := s.db.GetStatus(ctx, r.ID)
	if err != nil {
		return err
	}
	if status == models.ReservationActive {
		return models.ErrReservationExpired
	}
	return statusError(status)
}

// Forget drops the hold mirror once a reservation left the active state.
func (s *Store) Forget(ctx context.Context, token string) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.Untrack(ctx, token); err != nil {
		s.logger.Warn("REDIS", fmt.Sprintf("untrack hold: %v", err))
	}
}

// ListExpired exposes the reaper query.
func (s *Store) ListExpired(ctx context.Context, limit int) ([]models.Reservation, error) {
	return s.db.ListExpired(ctx, s.clock.Now(), limit)
}

func (s *Store) finish(ctx context.Context, r *models.Reservation, to models.ReservationStatus) (bool, error) {
	won := false
	err := s.db.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.db.TransitionStatus(ctx, r.ID, models.ReservationActive, to, s.clock.Now())
		if err != nil || !ok {
			return err
		}
		items, err := s.db.GetItems(ctx, r.ID)
		if err != nil {
			return err
		}
		for _, it := range models.LockOrder(items) {
			if err := s.ledger.Release(ctx, it.TicketTypeID, it.Quantity); err != nil {
				return fmt.Errorf("release line %d: %w", it.Position, err)
			}
		}
		r.Items = items
		won = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if won {
		r.Status = to
		s.Forget(ctx, r.Token)
	}
	return won, nil
}

func (s *Store) track(ctx context.Context, r *models.Reservation) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.Track(ctx, r.Token, r.ExpiresAt, r.ExpiresAt.Sub(s.clock.Now())); err != nil {
		s.logger.Warn("REDIS", fmt.Sprintf("track hold: %v", err))
	}
}

func validateLines(lines []models.LineItemRequest) error {
	if len(lines) == 0 {
		return models.ErrEmptyReservation
	}
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if line.TicketTypeID == "" {
			return fmt.Errorf("empty ticket type id: %w", models.ErrTicketTypeNotFound)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("ticket type %s: %w", line.TicketTypeID, models.ErrInvalidQuantity)
		}
		if _, dup := seen[line.TicketTypeID]; dup {
			return fmt.Errorf("ticket type %s: %w", line.TicketTypeID, models.ErrDuplicateLineItem)
		}
		seen[line.TicketTypeID] = struct{}{}
	}
	return nil
}

func statusError(status models.ReservationStatus) error {
	switch status {
	case models.ReservationExpired:
		return models.ErrReservationExpired
	case models.ReservationCompleted:
		return models.ErrReservationCompleted
	case models.ReservationCancelled:
		return models.ErrReservationCancelled
	}
	return errors.New("reservation in unknown status " + string(status))
}
