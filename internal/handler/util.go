package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/capitalize-ai/agent-chat/internal/service"
	"github.com/capitalize-ai/agent-chat/internal/transport"
)

// errorBody is the JSON error envelope of the gateway.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// writeServiceError maps a service or upstream failure onto a status code.
// The body carries the user-facing text of the error.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := http.StatusBadGateway, ""

	var limitErr *service.LimitError
	var apiErr *transport.APIError
	switch {
	case errors.Is(err, service.ErrEmptyMessage), errors.Is(err, service.ErrMissingAgent):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrAlreadySending):
		status, code = http.StatusConflict, "already_sending"
	case errors.As(err, &limitErr):
		status, code = http.StatusForbidden, string(transport.KindTokenLimit)
	case errors.As(err, &apiErr):
		code = string(apiErr.Kind)
		switch apiErr.Kind {
		case transport.KindTokenLimit:
			status = http.StatusForbidden
		case transport.KindUnauthorized:
			status = http.StatusUnauthorized
		case transport.KindRateLimited:
			status = http.StatusTooManyRequests
		case transport.KindTimeout:
			status = http.StatusGatewayTimeout
		default:
			if apiErr.StatusCode == http.StatusNotFound {
				status = http.StatusNotFound
			}
		}
	}

	writeJSON(w, status, errorBody{Error: service.FormatError(err), Code: code})
}
