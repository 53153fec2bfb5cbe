package queue

import "context"

// Transport opens connections to a mail relay or provider. Timeouts are the
// transport's own configuration; the queue never imposes one.
type Transport interface {
	// Open establishes a connection. Failures should be reported as
	// *ConnectError; other errors are wrapped with ReasonUnknown.
	Open(ctx context.Context) (Connection, error)
}

// Connection is used for exactly one drain and then closed.
type Connection interface {
	// Send transmits every protocol message derived from m. It succeeds
	// only if all of them were accepted. Failures should be reported as
	// *SendError.
	Send(ctx context.Context, m *Message) error
	// Close releases the connection. Errors are logged and discarded by
	// the queue.
	Close() error
}

// Settings is the live queue configuration.
type Settings struct {
	Transport Transport
	// Header and Footer override the default texts. nil selects the
	// default and a pointer to "" omits the section.
	Header *string
	Footer *string
}

func (s Settings) clone() *Settings {
	out := &Settings{Transport: s.Transport}
	if s.Header != nil {
		out.Header = Text(*s.Header)
	}
	if s.Footer != nil {
		out.Footer = Text(*s.Footer)
	}
	return out
}
