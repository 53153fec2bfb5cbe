package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMessage means the caller supplied a message without
	// recipients or sender. Such messages never occupy a queue slot.
	ErrInvalidMessage = errors.New("invalid mail message")
	// ErrQueueFull is the backpressure signal; the caller must retry later
	// or shed the message.
	ErrQueueFull = errors.New("mail queue full")
	// ErrNotConfigured means Configure has not been called yet.
	ErrNotConfigured = errors.New("mail queue not configured")
	// ErrConnect matches every *ConnectError.
	ErrConnect = errors.New("failed to connect to mail transport")
	// ErrSend matches every *SendError.
	ErrSend = errors.New("failed to send mail message")
	// ErrNotFound is returned by Requeue for unknown dead-letter IDs.
	ErrNotFound = errors.New("message not found")
)

// Reason classifies a transport failure so operators know what to fix.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonUnreachable
	ReasonAuthRejected
	ReasonRecipientRejected
)

func (r Reason) String() string {
	switch r {
	case ReasonUnreachable:
		return "provider unreachable"
	case ReasonAuthRejected:
		return "authentication rejected"
	case ReasonRecipientRejected:
		return "recipient rejected"
	default:
		return "unknown error"
	}
}

// ConnectError is returned when a transport connection cannot be opened.
type ConnectError struct {
	Reason Reason
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrConnect, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", ErrConnect, e.Reason, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

func (e *ConnectError) Is(target error) bool { return target == ErrConnect }

// SendError is returned when an open connection fails to transmit a message.
type SendError struct {
	Reason Reason
	Err    error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrSend, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", ErrSend, e.Reason, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

func (e *SendError) Is(target error) bool { return target == ErrSend }

// ReasonOf extracts the failure reason from a drain error.
func ReasonOf(err error) Reason {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	var se *SendError
	if errors.As(err, &se) {
		return se.Reason
	}
	return ReasonUnknown
}

func asConnectError(err error) *ConnectError {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce
	}
	return &ConnectError{Reason: ReasonUnknown, Err: err}
}

func asSendError(err error) error {
	var se *SendError
	if errors.As(err, &se) {
		return se
	}
	// Adapters may report connection loss during send as a ConnectError.
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce
	}
	return &SendError{Reason: ReasonUnknown, Err: err}
}
