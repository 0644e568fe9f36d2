package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Error is a failure reported by PostgREST, GoTrue, Storage or an edge function.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Hint       string `json:"hint,omitempty"`
	StatusCode int    `json:"status_code"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Is matches sentinel errors by status code, so ErrNotFound matches any 404.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.StatusCode == e.StatusCode
}

// Sentinel errors.
var (
	ErrUnauthorized = &Error{Code: "unauthorized", Message: "unauthorized", StatusCode: http.StatusUnauthorized}
	ErrForbidden    = &Error{Code: "forbidden", Message: "forbidden", StatusCode: http.StatusForbidden}
	ErrNotFound     = &Error{Code: "not_found", Message: "resource not found", StatusCode: http.StatusNotFound}
	ErrNoSession    = errors.New("no active session")
)

// parseError converts an error body into *Error. GoTrue uses error/error_description or msg,
// PostgREST uses code/message/details/hint.
func parseError(body []byte, statusCode int) *Error {
	var payload struct {
		Code             json.RawMessage `json:"code"`
		Message          string          `json:"message"`
		Msg              string          `json:"msg"`
		Details          string          `json:"details"`
		Hint             string          `json:"hint"`
		Error            string          `json:"error"`
		ErrorDescription string          `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(statusCode)
		}
		return &Error{Code: "unknown", Message: msg, StatusCode: statusCode}
	}

	msg := firstNonEmpty(payload.Message, payload.Msg, payload.ErrorDescription, payload.Error)
	if msg == "" {
		msg = http.StatusText(statusCode)
	}
	return &Error{
		Code:       strings.Trim(string(payload.Code), `"`),
		Message:    msg,
		Details:    payload.Details,
		Hint:       payload.Hint,
		StatusCode: statusCode,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
