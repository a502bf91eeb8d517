package api

import (
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/hackgods/clinic-booking-engine/internal/appointment"
	"github.com/hackgods/clinic-booking-engine/internal/profile"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// writeServiceError maps engine and profile errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	details := err.Error()

	switch {
	case errors.Is(err, appointment.ErrValidation), errors.Is(err, profile.ErrInvalid):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, appointment.ErrDuplicateSpecialty):
		status, code = http.StatusConflict, "duplicate_specialty"
	case errors.Is(err, appointment.ErrProviderConflict):
		status, code = http.StatusConflict, "provider_conflict"
	case errors.Is(err, appointment.ErrAuthorization), errors.Is(err, profile.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
		details = "permission denied"
	case errors.Is(err, appointment.ErrNotOwner):
		status, code = http.StatusForbidden, "not_owner"
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		status, code = http.StatusNotFound, "appointment_not_found"
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		status, code = http.StatusConflict, "invalid_status_transition"
	case errors.Is(err, profile.ErrEmailTaken):
		status, code = http.StatusConflict, "email_taken"
	case errors.Is(err, appointment.ErrStore), errors.Is(err, profile.ErrStore):
		status, code = http.StatusServiceUnavailable, "store_unavailable"
		details = "temporary storage failure, retry later"
		w.Header().Set("Retry-After", "1")
	default:
		details = "unexpected error"
	}

	resp := ErrorResponse{Error: code, Details: details}
	var be *appointment.BookingError
	if errors.As(err, &be) {
		resp.State = string(be.State)
	}
	writeJSON(w, status, resp)
}
