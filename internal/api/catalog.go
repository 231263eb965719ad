package api

import (
	"net/http"

	"ms-booking/internal/models"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListTicketTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Catalog.Availability(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket types", types))
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req models.CreateEventRequest
	if !h.decode(w, r, &req) {
		return
	}
	ev, err := h.Catalog.CreateEvent(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Event created", ev))
}

func (h *Handler) CreateTicketType(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTicketTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	tt, err := h.Catalog.CreateTicketType(r.Context(), chi.URLParam(r, "eventID"), req)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Ticket type created", tt))
}

func (h *Handler) UpdateTicketType(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateTicketTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	tt, err := h.Catalog.UpdateTicketType(r.Context(), chi.URLParam(r, "ticketTypeID"), req)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket type updated", tt))
}

func (h *Handler) DeleteTicketType(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteTicketType(r.Context(), chi.URLParam(r, "ticketTypeID")); err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket type deleted", nil))
}

func (h *Handler) UpdateCapacity(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateCapacityRequest
	if !h.decode(w, r, &req) {
		return
	}
	tt, err := h.Ledger.UpdateCapacity(r.Context(), chi.URLParam(r, "ticketTypeID"), req.QuantityTotal)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Capacity updated", tt))
}

func (h *Handler) EventStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Stats.GetEventStats(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event statistics", stats))
}

func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.Sweeper.RunOnce(r.Context())
	if err != nil {
		h.writeError(w, r, err, map[string]int{"released": n})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Sweep finished", map[string]int{"released": n}))
}
