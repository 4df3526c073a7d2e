// Package apierror maps errors onto the JSON error envelope and HTTP status
// codes used by the API.
package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/attune-app/attune/pkg/store"
)

type Type string

const (
	ErrInvalidRequest Type = "invalid_request_error"
	ErrAuthentication Type = "authentication_error"
	ErrPermission     Type = "permission_error"
	ErrNotFound       Type = "not_found_error"
	ErrRateLimit      Type = "rate_limit_error"
	ErrAPI            Type = "api_error"
)

// Error is the canonical API error shape.
type Error struct {
	Type       Type   `json:"type"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	Param      string `json:"param,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func NewInvalidRequest(message, param string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message, Param: param}
}

func NewNotFound(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}

type Envelope struct {
	Error *Error `json:"error"`
}

// FromError converts err into an Error plus HTTP status. Unknown errors are
// reported as internal without leaking details.
func FromError(err error, requestID string) (*Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Type:      ErrAPI,
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &Error{
			Type:      ErrAPI,
			Message:   "request cancelled",
			Code:      "cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr != nil {
		out := *apiErr
		out.RequestID = requestID
		return &out, StatusFromType(out.Type)
	}

	if errors.Is(err, store.ErrNotFound) {
		return &Error{
			Type:      ErrNotFound,
			Message:   "not found",
			RequestID: requestID,
		}, http.StatusNotFound
	}

	return &Error{
		Type:      ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

func StatusFromType(t Type) int {
	switch t {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrAuthentication:
		return http.StatusUnauthorized
	case ErrPermission:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Write encodes the error envelope with the given status.
func Write(w http.ResponseWriter, status int, apiErr *Error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Error: apiErr})
}
