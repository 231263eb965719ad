package api

import (
	"context"
	"net/http"
	"time"

	"ms-booking/internal/analytics"
	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/tickets/qr"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Catalog interface {
	CreateEvent(ctx context.Context, req models.CreateEventRequest) (*models.Event, error)
	CreateTicketType(ctx context.Context, eventID string, req models.CreateTicketTypeRequest) (*models.TicketType, error)
	UpdateTicketType(ctx context.Context, ticketTypeID string, req models.UpdateTicketTypeRequest) (*models.TicketType, error)
	DeleteTicketType(ctx context.Context, ticketTypeID string) error
	Availability(ctx context.Context, eventID string) ([]models.TicketAvailability, error)
}

type Ledger interface {
	UpdateCapacity(ctx context.Context, ticketTypeID string, newTotal int) (*models.TicketType, error)
}

type Reservations interface {
	Create(ctx context.Context, buyerID, eventID string, lines []models.LineItemRequest) (*models.Reservation, error)
	GetActive(ctx context.Context, token, buyerID string) (*models.Reservation, error)
	Cancel(ctx context.Context, token, buyerID string) error
}

type Bookings interface {
	Confirm(ctx context.Context, token, buyerID string, payment models.PaymentData) (*booking.ConfirmResult, error)
	CancelBooking(ctx context.Context, number string, actor models.Actor, reason string) (*models.Booking, error)
	UpdatePaymentStatus(ctx context.Context, number string, status models.PaymentStatus, intentID string) (*models.Booking, error)
	GetBooking(ctx context.Context, number string, actor models.Actor) (*models.Booking, error)
	ListBuyerBookings(ctx context.Context, buyerID string, filter models.BookingFilter) ([]models.Booking, error)
	ListEventBookings(ctx context.Context, eventID string) ([]models.Booking, error)
}

type Gate interface {
	CheckIn(ctx context.Context, code string) (*models.IssuedTicket, error)
	CheckInQR(ctx context.Context, sealed string) (*models.IssuedTicket, error)
}

type TicketLookup interface {
	GetTicketByCode(ctx context.Context, code string) (*models.IssuedTicket, error)
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
}

type Stats interface {
	GetEventStats(ctx context.Context, eventID string) (*analytics.EventStats, error)
}

type Sweeper interface {
	RunOnce(ctx context.Context) (int, error)
}

type CheckInFeed interface {
	SubscribeToEvent(ctx context.Context, eventID string) <-chan models.CheckInEvent
}

type QRRenderer interface {
	PNG(p qr.Payload, size int) ([]byte, error)
}

type Handler struct {
	Catalog      Catalog
	Ledger       Ledger
	Reservations Reservations
	Bookings     Bookings
	Gate         Gate
	Tickets      TicketLookup
	Stats        Stats
	Sweeper      Sweeper
	Feed         CheckInFeed
	QR           QRRenderer
	Logger       *logger.Logger
}

// NewRouter wires every route. Everything under /api except the public
// availability listing requires a bearer token.
func NewRouter(h *Handler, verifier auth.Verifier) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
	})
	r.Get("/api/events/{eventID}/ticket-types", h.ListTicketTypes)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier, h.Logger))

		r.Route("/api", func(r chi.Router) {
			r.Post("/events/{eventID}/reservations", h.CreateReservation)
			r.Route("/reservations/{token}", func(r chi.Router) {
				r.Get("/", h.GetReservation)
				r.Delete("/", h.CancelReservation)
				r.Post("/confirm", h.ConfirmReservation)
			})

			r.Get("/bookings", h.ListBookings)
			r.Route("/bookings/{bookingNumber}", func(r chi.Router) {
				r.Get("/", h.GetBooking)
				r.Post("/cancel", h.CancelBooking)
				r.With(auth.RequireStaff).Post("/payment", h.UpdatePaymentStatus)
			})
			r.Get("/tickets/{ticketCode}/qr", h.TicketQR)

			// organiser and door staff
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireStaff)
				r.Post("/events", h.CreateEvent)
				r.Post("/events/{eventID}/ticket-types", h.CreateTicketType)
				r.Put("/ticket-types/{ticketTypeID}", h.UpdateTicketType)
				r.Delete("/ticket-types/{ticketTypeID}", h.DeleteTicketType)
				r.Put("/ticket-types/{ticketTypeID}/capacity", h.UpdateCapacity)
				r.Get("/events/{eventID}/stats", h.EventStats)
				r.Get("/events/{eventID}/bookings", h.EventBookings)
				r.Get("/events/{eventID}/checkins/stream", h.CheckInStream)
				r.Post("/checkin", h.CheckIn)
				r.Post("/admin/sweep", h.Sweep)
			})
		})
	})
	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.Logger.LogAPI(r.Method, r.URL.Path, http.StatusText(ww.Status()), time.Since(start).String())
	})
}

func actor(r *http.Request) models.Actor {
	p, _ := auth.PrincipalFrom(r.Context())
	return models.Actor{ID: p.UserID, Staff: p.Staff}
}
