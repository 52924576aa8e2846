package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/lsc-studio/lscauth"
)

// ErrorBody is the payload of the error envelope.
type ErrorBody struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Violations []string `json:"violations,omitempty"`
}

// ErrorEnvelope is the JSON shape of every error response: {"error":{"code","message"}}.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// WriteError renders err as the error envelope with the status of its kind. Errors that
// are not *lscauth.Error render as INTERNAL_ERROR without exposing their text. Rate limit
// errors also set Retry-After and the RateLimit-* headers.
func WriteError(w http.ResponseWriter, err error) {
	var e *lscauth.Error
	if !errors.As(err, &e) {
		e = lscauth.ErrInternal
	}

	if limit, seconds, ok := retryAfter(e); ok {
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		if limit > 0 && w.Header().Get("RateLimit-Limit") == "" {
			w.Header().Set("RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("RateLimit-Remaining", "0")
			w.Header().Set("RateLimit-Reset", strconv.Itoa(seconds))
		}
	}

	message := e.Message
	if e.Kind == lscauth.KindInternal {
		message = lscauth.ErrInternal.Message
	}
	writeEnvelope(w, e.Status(), string(e.Kind), message, e.Violations)
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeEnvelope(w http.ResponseWriter, status int, code, message string, violations []string) {
	WriteJSON(w, status, ErrorEnvelope{Error: ErrorBody{
		Code:       code,
		Message:    message,
		Violations: violations,
	}})
}
