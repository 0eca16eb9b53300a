// Package httputil writes JSON responses and maps infrastructure errors to HTTP
// status codes.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"trailhead/pkg/platform/sentinel"
)

// Error codes returned in the "error" field.
const (
	CodeBadRequest         = "bad_request"
	CodeValidationFailed   = "validation_failed"
	CodePreconditionFailed = "precondition_failed"
	CodeNotFound           = "not_found"
	CodeUnauthorized       = "unauthorized"
	CodeUnavailable        = "service_unavailable"
	CodeInternal           = "internal_error"
)

type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// RequestError is a client mistake detected before any store is called.
type RequestError struct {
	Code    string
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// DefaultMaxBody bounds JSON request bodies read by DecodeJSON.
const DefaultMaxBody = 1 << 20

// DecodeJSON reads one JSON value of type T from r's body, rejecting unknown fields
// and bodies over maxBytes. Failures are returned as BadRequest.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, maxBytes int64) (*T, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBody
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	dec.DisallowUnknownFields()
	var v T
	if err := dec.Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &RequestError{Code: CodeBadRequest, Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
		}
		return nil, BadRequest("invalid request body: " + err.Error())
	}
	return &v, nil
}

func BadRequest(msg string) error {
	return &RequestError{Code: CodeBadRequest, Status: http.StatusBadRequest, Message: msg}
}

func Unauthorized(msg string) error {
	return &RequestError{Code: CodeUnauthorized, Status: http.StatusUnauthorized, Message: msg}
}

// WriteJSON encodes v with status. Encoding failures are logged; the header is
// already sent by then.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// WriteError maps err to a status and error code. Internal errors never expose
// their message.
func WriteError(w http.ResponseWriter, err error) {
	status, code := Classify(err)
	resp := ErrorResponse{Error: code}
	if status != http.StatusInternalServerError {
		resp.Description = err.Error()
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	WriteJSON(w, status, resp)
}

// Classify returns the status and code WriteError would use for err.
func Classify(err error) (int, string) {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.Status, reqErr.Code
	case errors.Is(err, sentinel.ErrInvalid):
		return http.StatusUnprocessableEntity, CodeValidationFailed
	case errors.Is(err, sentinel.ErrConflict):
		return http.StatusPreconditionFailed, CodePreconditionFailed
	case errors.Is(err, sentinel.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, sentinel.ErrUnavailable):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
