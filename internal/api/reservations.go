package api

import (
	"errors"
	"net/http"

	"ms-booking/internal/auth"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req models.CreateReservationRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Reservations.Create(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "eventID"), req.Items)
	if err != nil {
		var data any
		var invErr *models.InventoryError
		if errors.As(err, &invErr) {
			data = map[string]any{
				"ticket_type_id": invErr.TicketTypeID,
				"requested":      invErr.Requested,
				"available":      invErr.Available,
			}
		}
		h.writeError(w, r, err, data)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Tickets held", res))
}

func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.Reservations.GetActive(r.Context(), chi.URLParam(r, "token"), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Reservation", res))
}

func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	if err := h.Reservations.Cancel(r.Context(), chi.URLParam(r, "token"), auth.UserID(r.Context())); err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Reservation cancelled", nil))
}

func (h *Handler) ConfirmReservation(w http.ResponseWriter, r *http.Request) {
	var payment models.PaymentData
	if !h.decodeOptional(w, r, &payment) {
		return
	}
	res, err := h.Bookings.Confirm(r.Context(), chi.URLParam(r, "token"), auth.UserID(r.Context()), payment)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	if !res.Created {
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking already exists", res.Booking))
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Booking created", res.Booking))
}
