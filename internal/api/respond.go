package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-access-scheduling/internal/appointment"
	"github.com/hackgods/clinic-access-scheduling/internal/booking"
	"github.com/hackgods/clinic-access-scheduling/internal/emergency"
	"github.com/hackgods/clinic-access-scheduling/internal/identity"
	"github.com/hackgods/clinic-access-scheduling/internal/timewindow"
)

const retryMessage = "something went wrong, please retry"

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// handleError maps domain errors to responses. Validation and contention
// errors carry their own message; anything else gets a generic retry prompt.
func (h *handlers) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, timewindow.ErrInvalidFormat):
		writeError(w, http.StatusBadRequest, "invalid_format", err.Error())
	case errors.Is(err, timewindow.ErrInvalidWeekday):
		writeError(w, http.StatusBadRequest, "invalid_weekday", err.Error())
	case errors.Is(err, timewindow.ErrInvalidRange):
		writeError(w, http.StatusUnprocessableEntity, "invalid_range", "end time must be after start time")
	case errors.Is(err, timewindow.ErrFutureDate):
		writeError(w, http.StatusUnprocessableEntity, "future_date", err.Error())

	case errors.Is(err, booking.ErrSlotNoLongerAvailable),
		errors.Is(err, appointment.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_no_longer_available", "this slot was just booked, please pick another")
	case errors.Is(err, booking.ErrUnknownSpecialty):
		writeError(w, http.StatusUnprocessableEntity, "unknown_specialty", err.Error())
	case errors.Is(err, booking.ErrUnknownDoctor):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, booking.ErrUnknownSlot):
		writeError(w, http.StatusUnprocessableEntity, "unknown_slot", err.Error())
	case errors.Is(err, booking.ErrDateInPast):
		writeError(w, http.StatusUnprocessableEntity, "date_in_past", err.Error())

	case errors.Is(err, identity.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "appointment_cancelled", err.Error())

	case errors.Is(err, emergency.ErrEmptyReason):
		writeError(w, http.StatusUnprocessableEntity, "empty_reason", err.Error())
	case errors.Is(err, emergency.ErrInvalidDuration):
		writeError(w, http.StatusUnprocessableEntity, "invalid_duration", err.Error())
	case errors.Is(err, emergency.ErrUnknownSubject):
		writeError(w, http.StatusUnprocessableEntity, "unknown_subject", err.Error())
	case errors.Is(err, emergency.ErrGrantNotFound):
		writeError(w, http.StatusNotFound, "grant_not_found", err.Error())

	default:
		h.logger.Error().Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", retryMessage)
	}
}
