package api

import (
	"net/http"

	"ms-booking/internal/auth"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.BookingFilter{
		Status:   models.BookingStatus(q.Get("status")),
		Upcoming: q.Get("upcoming") == "true",
	}
	bookings, err := h.Bookings.ListBuyerBookings(r.Context(), auth.UserID(r.Context()), filter)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Bookings", bookings))
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.GetBooking(r.Context(), chi.URLParam(r, "bookingNumber"), actor(r))
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking", b))
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req models.CancelBookingRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	b, err := h.Bookings.CancelBooking(r.Context(), chi.URLParam(r, "bookingNumber"), actor(r), req.Reason)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking cancelled", b))
}

func (h *Handler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.Bookings.UpdatePaymentStatus(r.Context(), chi.URLParam(r, "bookingNumber"), req.Status, req.PaymentIntentID)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Payment status updated", b))
}

func (h *Handler) EventBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Bookings.ListEventBookings(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event bookings", bookings))
}
