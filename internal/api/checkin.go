package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"ms-booking/internal/models"
	"ms-booking/internal/tickets/qr"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

// TicketQR renders the admission QR code of a ticket for its buyer.
func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "ticketCode")
	ticket, err := h.Tickets.GetTicketByCode(r.Context(), code)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	b, err := h.Tickets.GetBooking(r.Context(), ticket.BookingID)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	if !actor(r).CanManage(b.BuyerID) {
		h.writeError(w, r, models.ErrTicketNotFound, nil)
		return
	}

	size := 256
	if s, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && s >= 64 && s <= 1024 {
		size = s
	}
	png, err := h.QR.PNG(qr.Payload{TicketCode: ticket.TicketCode, BookingNumber: b.BookingNumber}, size)
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// CheckIn accepts either a plain ticket code or a scanned QR payload.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req models.CheckInRequest
	if !h.decode(w, r, &req) {
		return
	}

	var (
		ticket *models.IssuedTicket
		err    error
	)
	switch {
	case req.QRPayload != "":
		ticket, err = h.Gate.CheckInQR(r.Context(), req.QRPayload)
	case req.TicketCode != "":
		ticket, err = h.Gate.CheckIn(r.Context(), req.TicketCode)
	default:
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", "BAD_REQUEST", "ticket_code or qr_payload is required"))
		return
	}
	if errors.Is(err, models.ErrAlreadyCheckedIn) {
		h.writeError(w, r, err, ticket)
		return
	}
	if err != nil {
		h.writeError(w, r, err, nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Checked in", ticket))
}

// CheckInStream is a server-sent event feed of admissions for one event.
func (h *Handler) CheckInStream(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Streaming unsupported", "INTERNAL", ""))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	events := h.Feed.SubscribeToEvent(ctx, eventID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"eventID\":%q}\n\n", eventID)
	flusher.Flush()
	h.Logger.Info("SSE", "check-in feed opened for event "+eventID)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			jsonData, err := json.Marshal(ev)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize check-in event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: checkin\ndata: %s\n\n", jsonData)
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", "check-in feed closed for event "+eventID)
			return
		}
	}
}
