package inventory

import (
	"context"
	"fmt"

	"ms-booking/internal/clock"
	"ms-booking/internal/database"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

// Ledger owns the ticket type counters. Every mutation is one guarded UPDATE
// whose affected-row count decides the outcome, so concurrent callers only
// contend on the ticket type row they touch. Calls made with a context from
// database.WithTx join that transaction.
type Ledger struct {
	db     *bun.DB
	clock  clock.Clock
	logger *logger.Logger
}

func NewLedger(db *bun.DB, clk clock.Clock, log *logger.Logger) *Ledger {
	return &Ledger{db: db, clock: clk, logger: log}
}

// Reserve moves qty from available to held.
func (l *Ledger) Reserve(ctx context.Context, ticketTypeID string, qty int) error {
	if qty <= 0 {
		return models.ErrInvalidQuantity
	}
	now := l.clock.Now()
	idb := database.Conn(ctx, l.db)

	res, err := idb.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("quantity_reserved = quantity_reserved + ?", qty).
		Set("updated_at = ?", now).
		Where("id = ?", ticketTypeID).
		Where("is_active = ?", true).
		Where("(sale_starts IS NULL OR sale_starts <= ?)", now).
		Where("(sale_ends IS NULL OR sale_ends >= ?)", now).
		Where("quantity_total - quantity_sold - quantity_reserved >= ?", qty).
		Exec(ctx)
	if err != nil {
		return l.mutationError(fmt.Sprintf("reserve %d", qty), ticketTypeID, err)
	}
	n, err := database.Affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		tt, err := l.get(ctx, idb, ticketTypeID)
		if err != nil {
			return err
		}
		if !tt.OnSaleAt(now) {
			return &models.InventoryError{TicketTypeID: ticketTypeID, Requested: qty, Available: tt.Available(), Err: models.ErrNotOnSale}
		}
		return &models.InventoryError{TicketTypeID: ticketTypeID, Requested: qty, Available: tt.Available(), Err: models.ErrInsufficientInventory}
	}

	l.logger.LogLedger("RESERVE", ticketTypeID, fmt.Sprintf("held +%d", qty))
	return l.verify(ctx, idb, ticketTypeID)
}

// Release gives held quantity back. It never drives held below zero; if the
// caller releases more than is held the counter is floored and a warning logged.
func (l *Ledger) Release(ctx context.Context, ticketTypeID string, qty int) error {
	if qty <= 0 {
		return models.ErrInvalidQuantity
	}
	now := l.clock.Now()
	idb := database.Conn(ctx, l.db)

	res, err := idb.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("quantity_reserved = quantity_reserved - ?", qty).
		Set("updated_at = ?", now).
		Where("id = ?", ticketTypeID).
		Where("quantity_reserved >= ?", qty).
		Exec(ctx)
	if err != nil {
		return l.mutationError(fmt.Sprintf("release %d", qty), ticketTypeID, err)
	}
	n, err := database.Affected(res)
	if err != nil {
		return err
	}
	if n == 1 {
		l.logger.LogLedger("RELEASE", ticketTypeID, fmt.Sprintf("held -%d", qty))
		return l.verify(ctx, idb, ticketTypeID)
	}

	tt, err := l.get(ctx, idb, ticketTypeID)
	if err != nil {
		return err
	}
	l.logger.Warn("LEDGER", fmt.Sprintf("release of %d on %s exceeds held %d, flooring at 0", qty, ticketTypeID, tt.QuantityReserved))
	_, err = idb.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("quantity_reserved = CASE WHEN quantity_reserved >= ? THEN quantity_reserved - ? ELSE 0 END", qty, qty).
		Set("updated_at = ?", now).
		Where("id = ?", ticketTypeID).
		Exec(ctx)
	if err != nil {
		return l.mutationError("floor release", ticketTypeID, err)
	}
	return l.verify(ctx, idb, ticketTypeID)
}

// Commit reclassifies qty from held to sold.
func (l *Ledger) Commit(ctx context.Context, ticketTypeID string, qty int) error {
	if qty <= 0 {
		return models.ErrInvalidQuantity
	}
	idb := database.Conn(ctx, l.db)

	res, err := idb.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("quantity_reserved = quantity_reserved - ?", qty).
		Set("quantity_sold = quantity_sold + ?", qty).
		Set("updated_at = ?", l.clock.Now()).
		Where("id = ?", ticketTypeID).
		Where("quantity_reserved >= ?", qty).
		Exec(ctx)
	if err != nil {
		return l.mutationError(fmt.Sprintf("commit %d", qty), ticketTypeID, err)
	}
	n, err := database.Affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		tt, err := l.get(ctx, idb, ticketTypeID)
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("commit of %d but only %d held", qty, tt.QuantityReserved)
		l.logger.LogIntegrity(ticketTypeID, msg)
		return fmt.Errorf("ticket type %s: %s: %w", ticketTypeID, msg, models.ErrLedgerIntegrity)
	}

	l.logger.LogLedger("COMMIT", ticketTypeID, fmt.Sprintf("held -%d sold +%d", qty, qty))
	return l.verify(ctx, idb, ticketTypeID)
}

// UpdateCapacity sets a new total, refusing anything below sold + held.
func (l *Ledger) UpdateCapacity(ctx context.Context, ticketTypeID string, newTotal int) (*models.TicketType, error) {
	if newTotal < 0 {
		return nil, models.ErrInvalidCapacity
	}
	idb := database.Conn(ctx, l.db)

	res, err := idb.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("quantity_total = ?", newTotal).
		Set("updated_at = ?", l.clock.Now()).
		Where("id = ?", ticketTypeID).
		Where("quantity_sold + quantity_reserved <= ?", newTotal).
		Exec(ctx)
	if err != nil {
		return nil, l.mutationError(fmt.Sprintf("capacity %d", newTotal), ticketTypeID, err)
	}
	n, err := database.Affected(res)
	if err != nil {
		return nil, err
	}
	tt, err := l.get(ctx, idb, ticketTypeID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, &models.InventoryError{
			TicketTypeID: ticketTypeID,
			Requested:    newTotal,
			Available:    tt.QuantitySold + tt.QuantityReserved,
			Err:          models.ErrCapacityBelowCommitted,
		}
	}
	l.logger.LogLedger("CAPACITY", ticketTypeID, fmt.Sprintf("total=%d", newTotal))
	return tt, nil
}

func (l *Ledger) Get(ctx context.Context, ticketTypeID string) (*models.TicketType, error) {
	return l.get(ctx, database.Conn(ctx, l.db), ticketTypeID)
}

// Audit scans every ticket type for counter drift. Offenders are taken off
// sale and reported; Reserve refuses inactive types so nothing more is sold.
func (l *Ledger) Audit(ctx context.Context) ([]models.TicketType, error) {
	idb := database.Conn(ctx, l.db)

	var broken []models.TicketType
	err := idb.NewSelect().
		Model(&broken).
		Where("quantity_sold < 0 OR quantity_reserved < 0 OR quantity_sold + quantity_reserved > quantity_total").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit ticket types: %w", err)
	}

	for i := range broken {
		tt := &broken[i]
		l.logger.LogIntegrity(tt.ID, fmt.Sprintf("total=%d sold=%d held=%d, suspending sales", tt.QuantityTotal, tt.QuantitySold, tt.QuantityReserved))
		if !tt.IsActive {
			continue
		}
		_, err := idb.NewUpdate().
			Model((*models.TicketType)(nil)).
			Set("is_active = ?", false).
			Set("updated_at = ?", l.clock.Now()).
			Where("id = ?", tt.ID).
			Exec(ctx)
		if err != nil {
			return broken, fmt.Errorf("suspend ticket type %s: %w", tt.ID, err)
		}
		tt.IsActive = false
	}
	return broken, nil
}

func (l *Ledger) get(ctx context.Context, idb bun.IDB, ticketTypeID string) (*models.TicketType, error) {
	tt := new(models.TicketType)
	err := idb.NewSelect().Model(tt).Where("id = ?", ticketTypeID).Limit(1).Scan(ctx)
	if database.IsNotFound(err) {
		return nil, fmt.Errorf("ticket type %s: %w", ticketTypeID, models.ErrTicketTypeNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket type %s: %w", ticketTypeID, err)
	}
	return tt, nil
}

// mutationError types what a guarded UPDATE can fail with before its
// affected-row count is known. A malformed id cannot name a row, and a hit
// on the ledger check constraint is drift the guard should have prevented.
func (l *Ledger) mutationError(op, ticketTypeID string, err error) error {
	switch {
	case database.IsInvalidInput(err):
		return fmt.Errorf("ticket type %s: %w", ticketTypeID, models.ErrTicketTypeNotFound)
	case database.IsCheckViolation(err):
		l.logger.LogIntegrity(ticketTypeID, op+" rejected by the ledger check constraint")
		return fmt.Errorf("%s on ticket type %s: %w", op, ticketTypeID, models.ErrLedgerIntegrity)
	}
	return fmt.Errorf("%s on ticket type %s: %w", op, ticketTypeID, err)
}

// verify re-reads the row after a mutation. A drifted row fails the
// operation so the surrounding transaction rolls back.
func (l *Ledger) verify(ctx context.Context, idb bun.IDB, ticketTypeID string) error {
	tt, err := l.get(ctx, idb, ticketTypeID)
	if err != nil {
		return err
	}
	if !tt.Consistent() {
		msg := fmt.Sprintf("total=%d sold=%d held=%d", tt.QuantityTotal, tt.QuantitySold, tt.QuantityReserved)
		l.logger.LogIntegrity(ticketTypeID, msg)
		return fmt.Errorf("ticket type %s: %s: %w", ticketTypeID, msg, models.ErrLedgerIntegrity)
	}
	return nil
}
