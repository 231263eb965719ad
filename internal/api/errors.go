package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"ms-booking/internal/models"
	"ms-booking/internal/tickets/qr"
	"ms-booking/internal/utils"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// Checked in order; the first match wins.
var errorTable = []errorMapping{
	{models.ErrInsufficientInventory, http.StatusConflict, "INSUFFICIENT_INVENTORY"},
	{models.ErrNotOnSale, http.StatusConflict, "NOT_ON_SALE"},
	{models.ErrCapacityBelowCommitted, http.StatusConflict, "CAPACITY_BELOW_COMMITTED"},
	{models.ErrInvalidQuantity, http.StatusBadRequest, "INVALID_QUANTITY"},
	{models.ErrQuantityOutOfRange, http.StatusBadRequest, "QUANTITY_OUT_OF_RANGE"},
	{models.ErrEmptyReservation, http.StatusBadRequest, "EMPTY_RESERVATION"},
	{models.ErrDuplicateLineItem, http.StatusBadRequest, "DUPLICATE_LINE_ITEM"},
	{models.ErrTicketTypeEventMismatch, http.StatusBadRequest, "TICKET_TYPE_EVENT_MISMATCH"},
	{models.ErrInvalidCapacity, http.StatusBadRequest, "INVALID_CAPACITY"},
	{models.ErrInvalidTicketType, http.StatusBadRequest, "INVALID_TICKET_TYPE"},
	{models.ErrInvalidEvent, http.StatusBadRequest, "INVALID_EVENT"},
	{models.ErrInvalidPaymentStatus, http.StatusBadRequest, "INVALID_PAYMENT_STATUS"},
	{models.ErrInvalidFilter, http.StatusBadRequest, "INVALID_FILTER"},
	{qr.ErrInvalidPayload, http.StatusBadRequest, "INVALID_QR"},
	{models.ErrEventNotFound, http.StatusNotFound, "EVENT_NOT_FOUND"},
	{models.ErrTicketTypeNotFound, http.StatusNotFound, "TICKET_TYPE_NOT_FOUND"},
	{models.ErrReservationNotFound, http.StatusNotFound, "RESERVATION_NOT_FOUND"},
	{models.ErrBookingNotFound, http.StatusNotFound, "BOOKING_NOT_FOUND"},
	{models.ErrTicketNotFound, http.StatusNotFound, "TICKET_NOT_FOUND"},
	{models.ErrNotOwner, http.StatusForbidden, "NOT_OWNER"},
	{models.ErrReservationExpired, http.StatusGone, "RESERVATION_EXPIRED"},
	{models.ErrReservationCancelled, http.StatusGone, "RESERVATION_CANCELLED"},
	{models.ErrReservationCompleted, http.StatusConflict, "RESERVATION_COMPLETED"},
	{models.ErrBookingNotCancellable, http.StatusConflict, "BOOKING_NOT_CANCELLABLE"},
	{models.ErrBookingNotPayable, http.StatusConflict, "BOOKING_NOT_PAYABLE"},
	{models.ErrAlreadyCheckedIn, http.StatusConflict, "ALREADY_CHECKED_IN"},
	{models.ErrAlreadyHandled, http.StatusConflict, "ALREADY_HANDLED"},
	{models.ErrIllegalTransition, http.StatusConflict, "ILLEGAL_TRANSITION"},
	{models.ErrTicketTypeInUse, http.StatusConflict, "TICKET_TYPE_IN_USE"},
}

func classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// writeError maps a service error onto the response envelope. Unknown
// errors are logged and hidden behind a generic 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, data any) {
	status, code := classify(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		h.Logger.Error("API", r.Method+" "+r.URL.Path+": "+detail)
		detail = ""
	}
	resp := utils.ErrorResponse(http.StatusText(status), code, detail)
	resp.Data = data
	utils.WriteJSON(w, status, resp)
}

// decodeOptional accepts an empty body.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", "BAD_REQUEST", err.Error()))
		return false
	}
	return true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", "BAD_REQUEST", err.Error()))
		return false
	}
	return true
}
