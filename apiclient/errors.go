package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrRefreshFailed wraps every error returned because the token refresh failed.
var ErrRefreshFailed = errors.New("token refresh failed")

// Error is the single error shape feature code sees. Status is zero when no
// response was received.
type Error struct {
	Status  int
	Message string
	Data    json.RawMessage
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DecodeData unmarshals the response body that accompanied the error.
func (e *Error) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return errors.New("error carries no response body")
	}
	return json.Unmarshal(e.Data, v)
}

// errorBody is the backend's error envelope.
type errorBody struct {
	OK  *bool  `json:"ok"`
	Msg string `json:"msg"`
}

// newStatusError builds an Error from a non-2xx response.
func newStatusError(status int, body []byte) *Error {
	e := &Error{
		Status:  status,
		Message: http.StatusText(status),
	}
	if json.Valid(body) {
		e.Data = json.RawMessage(body)
		var env errorBody
		if err := json.Unmarshal(body, &env); err == nil && env.Msg != "" {
			e.Message = env.Msg
		}
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("request failed with status %d", status)
	}
	return e
}

// Wrap normalizes err for feature code. An *Error keeps its status and data;
// the server's message wins over fallback. Anything else becomes an *Error
// with fallback as message unless err carries its own.
func Wrap(err error, fallback string) error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if len(apiErr.Data) == 0 || !hasServerMessage(apiErr.Data) {
			message = fallback
		}
		return &Error{
			Status:  apiErr.Status,
			Message: message,
			Data:    apiErr.Data,
			Err:     err,
		}
	}

	message := fallback
	if msg := err.Error(); msg != "" {
		message = fmt.Sprintf("%s: %s", fallback, msg)
	}
	return &Error{Message: message, Err: err}
}

func hasServerMessage(data json.RawMessage) bool {
	var env errorBody
	return json.Unmarshal(data, &env) == nil && env.Msg != ""
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsUnauthorized reports whether err carries a 401.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}
