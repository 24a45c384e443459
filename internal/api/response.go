package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/billsync/pkg/logger"
)

// JSONResponse is the envelope for every API response.
type JSONResponse struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respond(w http.ResponseWriter, status int, data any, meta map[string]any) {
	writeJSON(w, status, JSONResponse{Data: data, Meta: meta})
}

// respondError renders err in the envelope. Server side failures are logged
// and their message is withheld from the client.
func respondError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	he := toHTTPError(err)
	detail := &ErrorDetail{Code: he.Key, Message: err.Error()}
	if he.Code >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "Request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Error(err),
		)
		if he.Code == http.StatusInternalServerError {
			detail.Message = http.StatusText(he.Code)
		}
	}
	writeJSON(w, he.Code, JSONResponse{Error: detail})
}

// decodeJSON reads a JSON request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return HTTPError{Code: http.StatusBadRequest, Key: "invalid_json"}
	}
	return nil
}
