package utils

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"medwaste-backend/internal/apperr"
)

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// RespondAppError maps an error from the apperr taxonomy to its status and
// reports the offending field for validation failures. Unclassified errors
// are logged and hidden behind a generic 500.
func RespondAppError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("❌ Internal error: %v", err)
		message = "Internal server error"
	}

	body := map[string]interface{}{
		"success": false,
		"error":   message,
	}
	if field := apperr.Field(err); field != "" {
		body["field"] = field
	}
	if errors.Is(err, apperr.ErrTokenExpired) {
		body["code"] = "token_expired"
	}
	RespondJSON(w, status, body)
}

// DecodeJSON reads a JSON request body into dst, rejecting unknown fields.
// An empty body leaves dst untouched.
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("body", "invalid request body: %v", err)
	}
	return nil
}
