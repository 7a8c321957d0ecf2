package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrAlreadyExists  = errors.New("already exists")
	ErrFeedClosed     = errors.New("feed closed")
	ErrNotImplemented = errors.New("not implemented")
)

// ValidationError reports an outbound payload that failed schema validation.
// Such payloads are dropped and logged, never sent and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// TransportError wraps a network or timeout failure from an external call.
// Retried per gateway policy, then swallowed for calendar create/update and
// surfaced for calendar delete.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteError is a well-formed error response from an external provider
// (4xx-equivalent). Never retried.
type RemoteError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s failed: status=%d code=%s message=%s", e.Op, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s failed: status=%d message=%s", e.Op, e.StatusCode, e.Message)
}

// Retryable reports whether an external call failure may be retried.
func Retryable(err error) bool {
	var transport *TransportError
	return errors.As(err, &transport)
}
