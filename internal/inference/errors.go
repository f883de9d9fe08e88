package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailureClass names why an inference attempt failed
type FailureClass string

const (
	ClassConnectivity      FailureClass = "connectivity"
	ClassTimeout           FailureClass = "timeout"
	ClassBackendRejected   FailureClass = "backend_rejected"
	ClassMalformedResponse FailureClass = "malformed_response"
)

// ErrRetriesExhausted is wrapped by the error returned after the last attempt fails
var ErrRetriesExhausted = errors.New("inference retries exhausted")

// Error is a classified inference failure
type Error struct {
	Class      FailureClass
	Attempts   int
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("inference %s", e.Class)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempt(s)", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Rejected builds a backend_rejected error for a non-2xx status
func Rejected(status int, body string) *Error {
	return &Error{Class: ClassBackendRejected, StatusCode: status, Err: fmt.Errorf("non-2xx status: %s", truncate(body, 512))}
}

// Malformed builds a malformed_response error
func Malformed(err error) *Error {
	return &Error{Class: ClassMalformedResponse, Err: err}
}

// classify tags an attempt error; typed errors from backends keep their class
func classify(err error) *Error {
	var ie *Error
	if errors.As(err, &ie) {
		return ie
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Class: ClassTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Class: ClassTimeout, Err: err}
	}
	return &Error{Class: ClassConnectivity, Err: err}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
