// Package httputil maps coded domain errors onto HTTP responses so handlers
// never hand-roll status codes.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "github.com/Ohseho81/autus-sub014/pkg/domain-errors"
)

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeBadRequest:         http.StatusBadRequest,
	dErrors.CodeNotFound:           http.StatusNotFound,
	dErrors.CodeConflict:           http.StatusConflict,
	dErrors.CodeTimeout:            http.StatusGatewayTimeout,
	dErrors.CodeInvariantViolation: http.StatusUnprocessableEntity,
	dErrors.CodeMissingConsent:     http.StatusForbidden,
	dErrors.CodeConfig:             http.StatusInternalServerError,
	dErrors.CodeInternal:           http.StatusInternalServerError,
}

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteError renders err as JSON. Internal and configuration errors omit the
// description so server details never leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := errorBody{Error: string(code)}
	if status < http.StatusInternalServerError {
		body.Description = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteJSON renders v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
