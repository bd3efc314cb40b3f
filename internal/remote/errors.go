package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnavailable covers transport failures, server errors and
	// responses that cannot be decoded.
	ErrUnavailable = errors.New("remote unavailable")
	// ErrRejected means the server refused the request, e.g. empty text.
	ErrRejected = errors.New("remote rejected request")
)

// Error describes a failed remote operation. Use errors.Is with
// ErrUnavailable or ErrRejected to branch on the kind:
//
//	if errors.Is(err, remote.ErrRejected) { ... }
type Error struct {
	// Op names the operation, e.g. "fetch messages".
	Op string
	// Kind is ErrUnavailable or ErrRejected.
	Kind error
	// StatusCode is the HTTP status, zero when no response was received.
	StatusCode int
	// Message is the server's error text, if it sent one.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("remote: %s: %v (%d): %s", e.Op, e.Kind, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("remote: %s: %v (%d)", e.Op, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("remote: %s: %v: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("remote: %s: %v", e.Op, e.Kind)
	}
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// kindForStatus maps a non-2xx status to an error kind. Timeouts and
// throttling are transient and count as unavailability.
func kindForStatus(status int) error {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return ErrUnavailable
	case status >= 400 && status < 500:
		return ErrRejected
	default:
		return ErrUnavailable
	}
}
