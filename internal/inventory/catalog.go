package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-booking/internal/clock"
	"ms-booking/internal/database"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"

	"github.com/uptrace/bun"
)

// Catalog manages events and ticket type definitions. Counter changes after
// creation belong to the Ledger.
type Catalog struct {
	db     *bun.DB
	clock  clock.Clock
	logger *logger.Logger
}

func NewCatalog(db *bun.DB, clk clock.Clock, log *logger.Logger) *Catalog {
	return &Catalog{db: db, clock: clk, logger: log}
}

func (c *Catalog) CreateEvent(ctx context.Context, req models.CreateEventRequest) (*models.Event, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" || req.StartsAt.IsZero() {
		return nil, fmt.Errorf("title and starts_at are required: %w", models.ErrInvalidEvent)
	}
	endsAt := req.EndsAt
	if endsAt.IsZero() {
		endsAt = req.StartsAt
	}
	if endsAt.Before(req.StartsAt) {
		return nil, fmt.Errorf("ends_at before starts_at: %w", models.ErrInvalidEvent)
	}
	status := models.EventStatus(req.Status)
	switch status {
	case "":
		status = models.EventPublished
	case models.EventDraft, models.EventPublished, models.EventCancelled:
	default:
		return nil, fmt.Errorf("unknown status %q: %w", req.Status, models.ErrInvalidEvent)
	}

	ev := &models.Event{
		ID:        utils.NewID(),
		Title:     title,
		StartsAt:  req.StartsAt.UTC(),
		EndsAt:    endsAt.UTC(),
		Status:    status,
		CreatedAt: c.clock.Now(),
	}
	if _, err := database.Conn(ctx, c.db).NewInsert().Model(ev).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	c.logger.LogDatabase("INSERT", "events", fmt.Sprintf("event %s created", ev.ID))
	return ev, nil
}

func (c *Catalog) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	ev := new(models.Event)
	err := database.Conn(ctx, c.db).NewSelect().Model(ev).Where("id = ?", eventID).Limit(1).Scan(ctx)
	if database.IsNotFound(err) {
		return nil, fmt.Errorf("event %s: %w", eventID, models.ErrEventNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", eventID, err)
	}
	return ev, nil
}

func (c *Catalog) CreateTicketType(ctx context.Context, eventID string, req models.CreateTicketTypeRequest) (*models.TicketType, error) {
	if _, err := c.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	if req.QuantityTotal < 0 {
		return nil, fmt.Errorf("quantity_total must not be negative: %w", models.ErrInvalidTicketType)
	}
	def := definition{
		Name:        req.Name,
		UnitPrice:   req.UnitPrice,
		MinPerOrder: req.MinPerOrder,
		MaxPerOrder: req.MaxPerOrder,
		SaleStarts:  req.SaleStarts,
		SaleEnds:    req.SaleEnds,
	}
	if err := def.normalize(); err != nil {
		return nil, err
	}

	now := c.clock.Now()
	tt := &models.TicketType{
		ID:            utils.NewID(),
		EventID:       eventID,
		Name:          def.Name,
		UnitPrice:     def.UnitPrice,
		QuantityTotal: req.QuantityTotal,
		MinPerOrder:   def.MinPerOrder,
		MaxPerOrder:   def.MaxPerOrder,
		SaleStarts:    def.SaleStarts,
		SaleEnds:      def.SaleEnds,
		IsActive:      !req.Inactive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := database.Conn(ctx, c.db).NewInsert().Model(tt).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert ticket type: %w", err)
	}
	c.logger.LogDatabase("INSERT", "ticket_types", fmt.Sprintf("ticket type %s for event %s, total=%d", tt.ID, eventID, tt.QuantityTotal))
	return tt, nil
}

func (c *Catalog) GetTicketType(ctx context.Context, ticketTypeID string) (*models.TicketType, error) {
	tt := new(models.TicketType)
	err := database.Conn(ctx, c.db).NewSelect().Model(tt).Where("id = ?", ticketTypeID).Limit(1).Scan(ctx)
	if database.IsNotFound(err) {
		return nil, fmt.Errorf("ticket type %s: %w", ticketTypeID, models.ErrTicketTypeNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket type %s: %w", ticketTypeID, err)
	}
	return tt, nil
}

// UpdateTicketType rewrites the definition of a ticket type. The counters are
// left alone; capacity changes go through Ledger.UpdateCapacity. Reservations
// already taken keep the price they were quoted.
func (c *Catalog) UpdateTicketType(ctx context.Context, ticketTypeID string, req models.UpdateTicketTypeRequest) (*models.TicketType, error) {
	current, err := c.GetTicketType(ctx, ticketTypeID)
	if err != nil {
		return nil, err
	}

	def := definition{
		Name:        req.Name,
		UnitPrice:   req.UnitPrice,
		MinPerOrder: req.MinPerOrder,
		MaxPerOrder: req.MaxPerOrder,
		SaleStarts:  req.SaleStarts,
		SaleEnds:    req.SaleEnds,
	}
	if err := def.normalize(); err != nil {
		return nil, err
	}
	active := current.IsActive
	if req.IsActive != nil {
		active = *req.IsActive
	}
	if active && !current.IsActive && !current.Consistent() {
		c.logger.LogIntegrity(ticketTypeID, fmt.Sprintf("refusing to reactivate: total=%d sold=%d held=%d",
			current.QuantityTotal, current.QuantitySold, current.QuantityReserved))
		return nil, fmt.Errorf("reactivate ticket type %s: %w", ticketTypeID, models.ErrLedgerIntegrity)
	}

	res, err := database.Conn(ctx, c.db).NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("name = ?", def.Name).
		Set("unit_price = ?", def.UnitPrice).
		Set("min_per_order = ?", def.MinPerOrder).
		Set("max_per_order = ?", def.MaxPerOrder).
		Set("sale_starts = ?", def.SaleStarts).
		Set("sale_ends = ?", def.SaleEnds).
		Set("is_active = ?", active).
		Set("updated_at = ?", c.clock.Now()).
		Where("id = ?", ticketTypeID).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update ticket type %s: %w", ticketTypeID, err)
	}
	n, err := database.Affected(res)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Deleted between the lookup and the update.
		return nil, fmt.Errorf("ticket type %s: %w", ticketTypeID, models.ErrTicketTypeNotFound)
	}
	c.logger.LogDatabase("UPDATE", "ticket_types", fmt.Sprintf("ticket type %s redefined, price=%d active=%t", ticketTypeID, def.UnitPrice, active))
	return c.GetTicketType(ctx, ticketTypeID)
}

// DeleteTicketType retires a ticket type that nothing live depends on: no
// units held by an active reservation and no ticket in a booking that is not
// cancelled. The row is soft deleted in a single guarded UPDATE so a
// concurrent Reserve either lands first and blocks the delete, or finds the
// type gone.
func (c *Catalog) DeleteTicketType(ctx context.Context, ticketTypeID string) error {
	idb := database.Conn(ctx, c.db)
	liveTickets := idb.NewSelect().
		TableExpr("issued_tickets AS it").
		Join("JOIN bookings AS b ON b.id = it.booking_id").
		ColumnExpr("1").
		Where("it.ticket_type_id = ?", ticketTypeID).
		Where("b.status <> ?", models.BookingCancelled)

	res, err := idb.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("deleted_at = ?", c.clock.Now()).
		Set("is_active = ?", false).
		Where("id = ?", ticketTypeID).
		Where("quantity_reserved = 0").
		Where("NOT EXISTS (?)", liveTickets).
		Exec(ctx)
	if database.IsInvalidInput(err) {
		return fmt.Errorf("ticket type %s: %w", ticketTypeID, models.ErrTicketTypeNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete ticket type %s: %w", ticketTypeID, err)
	}
	n, err := database.Affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		tt, err := c.GetTicketType(ctx, ticketTypeID)
		if err != nil {
			return err
		}
		return fmt.Errorf("ticket type %s with %d held and %d sold: %w",
			ticketTypeID, tt.QuantityReserved, tt.QuantitySold, models.ErrTicketTypeInUse)
	}
	c.logger.LogDatabase("DELETE", "ticket_types", fmt.Sprintf("ticket type %s deleted", ticketTypeID))
	return nil
}

func (c *Catalog) ListTicketTypes(ctx context.Context, eventID string) ([]models.TicketType, error) {
	var types []models.TicketType
	err := database.Conn(ctx, c.db).NewSelect().
		Model(&types).
		Where("event_id = ?", eventID).
		Order("created_at ASC", "name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ticket types for event %s: %w", eventID, err)
	}
	return types, nil
}

// Availability is the buyer-facing snapshot of an event's ticket types.
func (c *Catalog) Availability(ctx context.Context, eventID string) ([]models.TicketAvailability, error) {
	if _, err := c.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	types, err := c.ListTicketTypes(ctx, eventID)
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	out := make([]models.TicketAvailability, 0, len(types))
	for i := range types {
		tt := &types[i]
		out = append(out, models.TicketAvailability{
			ID:          tt.ID,
			Name:        tt.Name,
			UnitPrice:   tt.UnitPrice,
			Available:   tt.Available(),
			MinPerOrder: tt.MinPerOrder,
			MaxPerOrder: tt.MaxPerOrder,
			OnSale:      tt.OnSaleAt(now),
			SaleStarts:  tt.SaleStarts,
			SaleEnds:    tt.SaleEnds,
		})
	}
	return out, nil
}

// definition is the editable part of a ticket type, shared by create and update.
type definition struct {
	Name        string
	UnitPrice   int64
	MinPerOrder int
	MaxPerOrder int
	SaleStarts  *time.Time
	SaleEnds    *time.Time
}

// normalize applies the order bound defaults and validates the definition.
func (d *definition) normalize() error {
	d.Name = strings.TrimSpace(d.Name)
	if d.MinPerOrder == 0 {
		d.MinPerOrder = 1
	}
	if d.MaxPerOrder == 0 {
		d.MaxPerOrder = 10
	}
	switch {
	case d.Name == "":
		return fmt.Errorf("name is required: %w", models.ErrInvalidTicketType)
	case d.UnitPrice < 0:
		return fmt.Errorf("unit_price must not be negative: %w", models.ErrInvalidTicketType)
	case d.MinPerOrder < 1 || d.MaxPerOrder < d.MinPerOrder:
		return fmt.Errorf("min/max per order %d/%d: %w", d.MinPerOrder, d.MaxPerOrder, models.ErrInvalidTicketType)
	case d.SaleStarts != nil && d.SaleEnds != nil && d.SaleEnds.Before(*d.SaleStarts):
		return fmt.Errorf("sale window ends before it starts: %w", models.ErrInvalidTicketType)
	}
	d.SaleStarts, d.SaleEnds = utcPtr(d.SaleStarts), utcPtr(d.SaleEnds)
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
