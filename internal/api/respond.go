package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/clinicdesk/scheduling-ledger/internal/clinic"
	"github.com/clinicdesk/scheduling-ledger/internal/docstore"
	"github.com/clinicdesk/scheduling-ledger/internal/identity"
	redisclient "github.com/clinicdesk/scheduling-ledger/internal/redis"
	"github.com/clinicdesk/scheduling-ledger/internal/scheduling"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// ErrorCode returns the stable machine code for a domain error, so
// callers can distinguish "your request was invalid" from "retry later".
func ErrorCode(err error) string {
	var conflict *scheduling.ConflictError
	var validation *clinic.ValidationError

	switch {
	case errors.As(err, &conflict):
		return "slot_conflict"
	case errors.As(err, &validation):
		return "validation_error"
	case errors.Is(err, scheduling.ErrUnknownDoctor):
		return "unknown_doctor"
	case errors.Is(err, scheduling.ErrUnknownPatient):
		return "unknown_patient"
	case errors.Is(err, scheduling.ErrInvalidWindow):
		return "invalid_window"
	case errors.Is(err, scheduling.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		return "appointment_not_found"
	case errors.Is(err, scheduling.ErrBookingContended), errors.Is(err, redisclient.ErrLockNotAcquired):
		return "booking_contended"
	case errors.Is(err, clinic.ErrDoctorNotFound):
		return "doctor_not_found"
	case errors.Is(err, clinic.ErrPatientNotFound):
		return "patient_not_found"
	case errors.Is(err, identity.ErrEmailInUse):
		return "email_in_use"
	case errors.Is(err, identity.ErrWeakPassword):
		return "weak_password"
	case errors.Is(err, identity.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, identity.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, identity.ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, docstore.ErrConflict):
		return "write_conflict"
	case errors.Is(err, docstore.ErrUnavailable):
		return "unavailable"
	default:
		return "internal_error"
	}
}

func httpStatus(code string) int {
	switch code {
	case "validation_error", "invalid_window", "weak_password":
		return http.StatusBadRequest
	case "invalid_credentials", "token_expired", "token_invalid":
		return http.StatusUnauthorized
	case "unknown_doctor", "unknown_patient", "appointment_not_found",
		"doctor_not_found", "patient_not_found":
		return http.StatusNotFound
	case "slot_conflict", "invalid_transition", "email_in_use",
		"booking_contended", "write_conflict":
		return http.StatusConflict
	case "unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError maps a domain error onto the wire in one place so every
// handler reports the same taxonomy.
func handleError(w http.ResponseWriter, err error) {
	code := ErrorCode(err)
	status := httpStatus(code)
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
	}
	writeError(w, status, code, err.Error())
}
