package analytics

import (
	"context"
	"sort"

	"ms-booking/internal/models"
)

type DBLayer interface {
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	GetTicketTypesByEventID(ctx context.Context, eventID string) ([]models.TicketType, error)
	GetBookingsByEventID(ctx context.Context, eventID string) ([]models.Booking, error)
	GetTicketsByEventID(ctx context.Context, eventID string) ([]models.IssuedTicket, error)
}

// Service handles analytics operations
type Service struct {
	db DBLayer
}

// NewService creates a new analytics service
func NewService(db DBLayer) *Service {
	return &Service{db: db}
}

// EventStats summarises inventory, bookings and attendance for an event.
// Amounts are minor currency units.
type EventStats struct {
	EventID           string              `json:"event_id"`
	Title             string              `json:"title"`
	Capacity          int                 `json:"capacity"`
	Sold              int                 `json:"sold"`
	Reserved          int                 `json:"reserved"`
	Available         int                 `json:"available"`
	TotalBookings     int                 `json:"total_bookings"`
	ConfirmedBookings int                 `json:"confirmed_bookings"`
	PendingBookings   int                 `json:"pending_bookings"`
	CancelledBookings int                 `json:"cancelled_bookings"`
	PaidRevenue       int64               `json:"paid_revenue"`
	TicketsIssued     int                 `json:"tickets_issued"`
	CheckedIn         int                 `json:"checked_in"`
	ByTicketType      []TicketTypeMetrics `json:"by_ticket_type"`
	DailySales        []DailySalesMetrics `json:"daily_sales"`
}

// TicketTypeMetrics contains sales metrics for a specific ticket type
type TicketTypeMetrics struct {
	TicketTypeID string `json:"ticket_type_id"`
	Name         string `json:"name"`
	Capacity     int    `json:"capacity"`
	Sold         int    `json:"sold"`
	Reserved     int    `json:"reserved"`
	Available    int    `json:"available"`
	CheckedIn    int    `json:"checked_in"`
}

// DailySalesMetrics contains metrics for a single day
type DailySalesMetrics struct {
	Date     string `json:"date"`
	Bookings int    `json:"bookings"`
	Revenue  int64  `json:"revenue"`
}

// GetEventStats returns the statistics of one event. Paid revenue counts
// bookings that are paid and not cancelled.
func (s *Service) GetEventStats(ctx context.Context, eventID string) (*EventStats, error) {
	ev, err := s.db.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	types, err := s.db.GetTicketTypesByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	bookings, err := s.db.GetBookingsByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	tickets, err := s.db.GetTicketsByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	stats := &EventStats{
		EventID:       ev.ID,
		Title:         ev.Title,
		TotalBookings: len(bookings),
		TicketsIssued: len(tickets),
		ByTicketType:  make([]TicketTypeMetrics, 0, len(types)),
		DailySales:    []DailySalesMetrics{},
	}

	checkedByType := make(map[string]int)
	for _, t := range tickets {
		if t.CheckedIn {
			stats.CheckedIn++
			checkedByType[t.TicketTypeID]++
		}
	}

	for _, tt := range types {
		stats.Capacity += tt.QuantityTotal
		stats.Sold += tt.QuantitySold
		stats.Reserved += tt.QuantityReserved
		stats.Available += tt.Available()
		stats.ByTicketType = append(stats.ByTicketType, TicketTypeMetrics{
			TicketTypeID: tt.ID,
			Name:         tt.Name,
			Capacity:     tt.QuantityTotal,
			Sold:         tt.QuantitySold,
			Reserved:     tt.QuantityReserved,
			Available:    tt.Available(),
			CheckedIn:    checkedByType[tt.ID],
		})
	}

	daily := make(map[string]*DailySalesMetrics)
	for _, b := range bookings {
		switch b.Status {
		case models.BookingConfirmed:
			stats.ConfirmedBookings++
		case models.BookingPending:
			stats.PendingBookings++
		case models.BookingCancelled:
			stats.CancelledBookings++
			continue
		}

		date := b.CreatedAt.UTC().Format("2006-01-02")
		d, ok := daily[date]
		if !ok {
			d = &DailySalesMetrics{Date: date}
			daily[date] = d
		}
		d.Bookings++
		if b.PaymentStatus == models.PaymentPaid {
			stats.PaidRevenue += b.TotalAmount
			d.Revenue += b.TotalAmount
		}
	}
	for _, d := range daily {
		stats.DailySales = append(stats.DailySales, *d)
	}
	sort.Slice(stats.DailySales, func(i, j int) bool { return stats.DailySales[i].Date < stats.DailySales[j].Date })

	return stats, nil
}
