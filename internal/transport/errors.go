package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an APIError.
type Kind string

const (
	KindNetwork    Kind = "network"
	KindNotFound   Kind = "not-found"
	KindServer     Kind = "server"
	KindValidation Kind = "validation"
)

// Sentinel errors matched by APIError.Is, one per Kind.
var (
	ErrNetwork    = errors.New("network error")
	ErrNotFound   = errors.New("not found")
	ErrServer     = errors.New("server error")
	ErrValidation = errors.New("validation error")
)

// APIError is the only error type returned by the transport and the clients built on it.
type APIError struct {
	Message string
	Status  int    // HTTP status, 0 when no response was received
	Body    []byte // raw response body, if any
	Kind    Kind
	Err     error // underlying cause, if any
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s error (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrServer:
		return e.Kind == KindServer
	case ErrValidation:
		return e.Kind == KindValidation
	}
	return false
}

// IsRetryable reports whether repeating the same call may succeed.
func (e *APIError) IsRetryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindServer
}

// UserMessage returns a short message suitable for a toast or CLI error line.
func (e *APIError) UserMessage() string {
	switch e.Kind {
	case KindNetwork:
		return "Could not reach the download service. Check your connection and try again."
	case KindNotFound:
		return "That download no longer exists."
	case KindServer:
		return "The download service ran into a problem. Try again shortly."
	default:
		if e.Message != "" {
			return e.Message
		}
		return "The request was rejected."
	}
}

// KindForStatus maps an HTTP status to an error kind.
// A 2xx status only reaches here when the envelope reported success=false,
// which is a rejection of the request itself. A 3xx the client did not
// follow will not change on retry, so it is a validation error too.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindValidation
	case status >= 200 && status < 400:
		return KindValidation
	default:
		return KindServer
	}
}

// NewStatusError builds an APIError for a failed HTTP exchange.
func NewStatusError(status int, message string, body []byte) *APIError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &APIError{
		Message: message,
		Status:  status,
		Body:    body,
		Kind:    KindForStatus(status),
	}
}

// NewNetworkError wraps a transport-level failure.
func NewNetworkError(message string, err error) *APIError {
	return &APIError{Message: message, Kind: KindNetwork, Err: err}
}

// NewValidationError builds a client-side validation error.
func NewValidationError(message string) *APIError {
	return &APIError{Message: message, Kind: KindValidation}
}

// AsAPIError extracts an APIError from err's chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsRetryable reports whether err is a retryable APIError.
func IsRetryable(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.IsRetryable()
}

// IsNotFound reports whether err is a not-found APIError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
