package utils

import (
	"encoding/json"
	"net/http"

	"github.com/codescrafter/luxury-backend-sub000/internal/apperr"
)

// StatusForKind maps the error taxonomy onto HTTP statuses. This is the
// only place presentation knows about kinds.
func StatusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindInvalidState:
		return http.StatusUnprocessableEntity
	case apperr.KindExpired:
		return http.StatusGone
	default:
		return http.StatusServiceUnavailable
	}
}

func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, message string, err error) {
	kind := apperr.KindOf(err)
	WriteJSON(w, StatusForKind(kind), ErrorResponse(message, string(kind), err.Error()))
}
