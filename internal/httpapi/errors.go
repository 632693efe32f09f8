package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"samplecore/pkg/domain"
)

// errorBody is the JSON envelope for every non-2xx response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeDomainError maps engine errors onto HTTP statuses. The guard's
// decision is authoritative; this layer only translates it.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		invalid   domain.InvalidTransitionError
		forbidden domain.ForbiddenError
		stale     domain.StaleStateError
		reason    domain.ReasonRequiredError
		notFound  domain.NotFoundError
		unavail   domain.StoreUnavailableError
		violation domain.RuleViolationError
		fieldErrs validator.ValidationErrors
	)
	switch {
	case errors.As(err, &stale):
		writeErrorCode(w, http.StatusConflict, "stale_state", err.Error())
	case errors.As(err, &forbidden):
		writeErrorCode(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.As(err, &notFound):
		writeErrorCode(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &invalid):
		writeErrorCode(w, http.StatusUnprocessableEntity, "invalid_transition", err.Error())
	case errors.As(err, &reason):
		writeErrorCode(w, http.StatusUnprocessableEntity, "reason_required", err.Error())
	case errors.As(err, &violation):
		writeErrorCode(w, http.StatusUnprocessableEntity, "rule_violation", err.Error())
	case errors.As(err, &unavail):
		writeErrorCode(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
	case errors.As(err, &fieldErrs):
		writeErrorCode(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		writeErrorCode(w, http.StatusBadRequest, "bad_request", err.Error())
	}
}
