package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for service calls.
var (
	// ErrUnauthenticated indicates no credential was available for a protected call.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrUpstreamRejected indicates the service answered with a non-2xx status.
	ErrUpstreamRejected = errors.New("upstream rejected request")

	// ErrUpstreamUnreachable indicates no response was received at all.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")

	// ErrMalformedResponse indicates a 2xx response whose body could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")
)

// Fixed messages for authorization failures. They replace whatever the body says.
const (
	MessageSessionExpired = "authentication expired, please log in again"
	MessageForbidden      = "access denied"
	messageRequestFailed  = "request failed"
)

// APIError is a non-2xx answer from one of the services.
type APIError struct {
	// Service is the logical backend (e.g. "prediction").
	Service string

	// Op is the call that failed (e.g. "predict").
	Op string

	// Status is the HTTP status code.
	Status int

	// Message is the human-readable error text.
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

// Is matches ErrUpstreamRejected. A 401 is still a rejection: ErrUnauthenticated
// only ever means no credential was present locally.
func (e *APIError) Is(target error) bool {
	return target == ErrUpstreamRejected
}

// Unauthorized reports whether the service refused the credential.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// TransportError is a failure to obtain any response.
type TransportError struct {
	Service string
	Op      string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s unreachable: %v", e.Service, e.Err)
}

// Is matches ErrUpstreamUnreachable.
func (e *TransportError) Is(target error) bool {
	return target == ErrUpstreamUnreachable
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError is a 2xx response that did not match the expected shape.
type DecodeError struct {
	Service string
	Op      string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: unexpected response: %v", e.Service, e.Err)
}

// Is matches ErrMalformedResponse.
func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsUnreachable returns true if err is a transport-level failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUpstreamUnreachable)
}

// IsRejected returns true if err is a non-2xx answer.
func IsRejected(err error) bool {
	return errors.Is(err, ErrUpstreamRejected)
}

// Message returns the human-readable text carried by err, preferring the
// upstream message over wrapping context.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

// errorMessage derives the message for a non-2xx response body.
// 401 and 403 always map to the fixed messages.
func errorMessage(status int, body []byte) string {
	switch status {
	case http.StatusUnauthorized:
		return MessageSessionExpired
	case http.StatusForbidden:
		return MessageForbidden
	}
	if msg := extractError(body); msg != "" {
		return msg
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return messageRequestFailed
}

func extractError(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if msg := rawText(payload.Detail); msg != "" {
		return msg
	}
	return rawText(payload.Message)
}

// rawText renders a detail/message field. Strings are returned as-is; FastAPI
// style validation lists are flattened to their "msg" entries.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		var msgs []string
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return strings.TrimSpace(string(raw))
}
