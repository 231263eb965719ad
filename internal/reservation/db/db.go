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

// WithTx runs fn in a transaction shared by every call made with its context.
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.WithTx(ctx, d.Bun, fn)
}

// GetEvent → fetch the event a reservation is for
func (d *DB) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	ev := new(models.Event)
	err := d.conn(ctx).NewSelect().Model(ev).Where("id = ?", eventID).Limit(1).Scan(ctx)
	if database.IsNotFound(err) {
		return nil, fmt.Errorf("event %s: %w", eventID, models.ErrEventNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", eventID, err)
	}
	return ev, nil
}

// GetTicketTypes → ticket types by id, keyed by id
func (d *DB) GetTicketTypes(ctx context.Context, ids []string) (map[string]*models.TicketType, error) {
	var types []models.TicketType
	if len(ids) > 0 {
		err := d.conn(ctx).NewSelect().Model(&types).Where("id IN (?)", bun.In(ids)).Scan(ctx)
		if database.IsInvalidInput(err) {
			return nil, fmt.Errorf("ticket types %v: %w", ids, models.ErrTicketTypeNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("load ticket types: %w", err)
		}
	}
	out := make(map[string]*models.TicketType, len(types))
	for i := range types {
		out[types[i].ID] = &types[i]
	}
	return out, nil
}

// InsertReservation → persist a reservation and its line items
func (d *DB) InsertReservation(ctx context.Context, r *models.Reservation) error {
	conn := d.conn(ctx)
	if _, err := conn.NewInsert().Model(r).Exec(ctx); err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	if len(r.Items) > 0 {
		if _, err := conn.NewInsert().Model(&r.Items).Exec(ctx); err != nil {
			return fmt.Errorf("insert reservation items: %w", err)
		}
	}
	return nil
}

// GetByToken → reservation with its line items. On Postgres the row is
// locked when called inside a transaction.
func (d *DB) GetByToken(ctx context.Context, token string) (*models.Reservation, error) {
	conn := d.conn(ctx)
	r := new(models.Reservation)
	q := conn.NewSelect().Model(r).Where("token = ?", token).Limit(1)
	if database.InTx(ctx) {
		q = database.LockForUpdate(conn, q)
	}
	err := q.Scan(ctx)
	if database.IsNotFound(err) {
		return nil, models.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load reservation: %w", err)
	}
	items, err := d.GetItems(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.Items = items
	return r, nil
}

// GetStatus → current status only, used after a lost compare-and-set
func (d *DB) GetStatus(ctx context.Context, id string) (models.ReservationStatus, error) {
	var status string
	err := d.conn(ctx).NewSelect().
		Model((*models.Reservation)(nil)).
		Column("status").
		Where("id = ?", id).
		Scan(ctx, &status)
	if database.IsNotFound(err) {
		return "", models.ErrReservationNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load reservation status: %w", err)
	}
	return models.ReservationStatus(status), nil
}

func (d *DB) GetItems(ctx context.Context, reservationID string) ([]models.ReservationItem, error) {
	var items []models.ReservationItem
	err := d.conn(ctx).NewSelect().
		Model(&items).
		Where("reservation_id = ?", reservationID).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reservation items: %w", err)
	}
	return items, nil
}

// TransitionStatus is the compare-and-set on status. It reports whether this
// caller moved the row; false means another actor got there first.
func (d *DB) TransitionStatus(ctx context.Context, id string, from, to models.ReservationStatus, now time.Time) (bool, error) {
	if err := from.TransitionTo(to); err != nil {
		return false, err
	}
	res, err := d.conn(ctx).NewUpdate().
		Model((*models.Reservation)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("reservation %s %s -> %s: %w", id, from, to, err)
	}
	n, err := database.Affected(res)
	return n == 1, err
}

// CompleteIfUnexpired moves active to completed only while expires_at is in the future.
func (d *DB) CompleteIfUnexpired(ctx context.Context, id string, now time.Time) (bool, error) {
	if err := models.ReservationActive.TransitionTo(models.ReservationCompleted); err != nil {
		return false, err
	}
	res, err := d.conn(ctx).NewUpdate().
		Model((*models.Reservation)(nil)).
		Set("status = ?", models.ReservationCompleted).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", models.ReservationActive).
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("complete reservation %s: %w", id, err)
	}
	n, err := database.Affected(res)
	return n == 1, err
}

// ListExpired → active reservations whose hold has run out, oldest first
func (d *DB) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	var out []models.Reservation
	err := d.conn(ctx).NewSelect().
		Model(&out).
		Where("status = ?", models.ReservationActive).
		Where("expires_at <= ?", now).
		Order("expires_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	return out, nil
}
