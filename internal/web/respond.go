package web

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/example/tablesched/internal/auth"
	"github.com/example/tablesched/internal/reservation"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// errorStatus maps engine errors to an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, reservation.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, reservation.ErrTooLateToCancel):
		return http.StatusUnprocessableEntity, "too_late_to_cancel"
	case errors.Is(err, reservation.ErrPastReservation):
		return http.StatusUnprocessableEntity, "past_reservation"
	case errors.Is(err, reservation.ErrPolicyViolation):
		return http.StatusUnprocessableEntity, "policy_violation"
	case errors.Is(err, reservation.ErrSchedulingConflict):
		return http.StatusConflict, "scheduling_conflict"
	case errors.Is(err, reservation.ErrNoTableAvailable):
		return http.StatusConflict, "no_table_available"
	case errors.Is(err, reservation.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, reservation.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, reservation.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, reservation.ErrTransactionFailure):
		return http.StatusServiceUnavailable, "transaction_failure"
	}
	return http.StatusInternalServerError, "internal_error"
}

func handleError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
		msg = "internal server error"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	respondError(w, status, code, msg)
}
