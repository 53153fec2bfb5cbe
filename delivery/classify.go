package delivery

import (
	"context"
	"errors"
	"io"
	"net"
	"net/textproto"

	gomail "gopkg.in/mail.v2"

	"mailqueue/queue"
)

// Classify maps a transport error to the reason reported to operators.
func Classify(err error) queue.Reason {
	if err == nil {
		return queue.ReasonUnknown
	}

	// gomail.SendError has no Unwrap.
	var sendErr *gomail.SendError
	if errors.As(err, &sendErr) && sendErr.Cause != nil {
		return Classify(sendErr.Cause)
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return classifyCode(protoErr.Code)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return queue.ReasonUnreachable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return queue.ReasonUnreachable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return queue.ReasonUnreachable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return queue.ReasonUnreachable
	}

	return queue.ReasonUnknown
}

func classifyCode(code int) queue.Reason {
	switch code {
	case 530, 534, 535, 538, 454:
		return queue.ReasonAuthRejected
	case 450, 451, 452, 550, 551, 552, 553:
		return queue.ReasonRecipientRejected
	case 421:
		return queue.ReasonUnreachable
	default:
		return queue.ReasonUnknown
	}
}

func connectError(err error) *queue.ConnectError {
	return &queue.ConnectError{Reason: Classify(err), Err: err}
}

func sendError(err error) *queue.SendError {
	return &queue.SendError{Reason: Classify(err), Err: err}
}
