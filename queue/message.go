package queue

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mailqueue/internal/email"
)

// Attachment is an opaque file payload carried with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is one outbound mail item. It is built with NewMessage and is
// read-only afterwards, except for the text rewrite performed by Prepare
// when the message is enqueued.
type Message struct {
	id          string
	createdAt   time.Time
	from        string
	replyTo     string
	recipients  []string
	subject     string
	body        string
	text        string
	attributes  map[string]string
	attachments []Attachment
	buildErr    error

	// queued is set by the first successful Enqueue; the text is
	// immutable from then on.
	queued atomic.Bool
}

// MessageOption configures a Message during construction.
type MessageOption func(*Message)

// WithRecipients appends recipient addresses. Each address is validated;
// an invalid address makes the message invalid.
func WithRecipients(addrs ...string) MessageOption {
	return func(m *Message) {
		for _, addr := range addrs {
			parsed, err := email.ParseAddress(addr)
			if err != nil {
				m.fail(fmt.Errorf("recipient %q: %w", addr, err))
				continue
			}
			m.recipients = append(m.recipients, parsed)
		}
	}
}

// WithRecipientList appends recipients from a comma separated address list
// such as "alice@example.com, Bob <bob@example.net>".
func WithRecipientList(list string) MessageOption {
	return func(m *Message) {
		addrs, err := email.ParseAddressList(list)
		if err != nil {
			m.fail(fmt.Errorf("failed to parse mail address(es) %q: %w", list, err))
			return
		}
		m.recipients = append(m.recipients, addrs...)
	}
}

// WithReplyTo sets the Reply-To address.
func WithReplyTo(addr string) MessageOption {
	return func(m *Message) {
		parsed, err := email.ParseAddress(addr)
		if err != nil {
			m.fail(fmt.Errorf("reply-to %q: %w", addr, err))
			return
		}
		m.replyTo = parsed
	}
}

// WithAttribute adds a named value rendered below the footer, for example
// the URL or client IP that triggered the message.
func WithAttribute(name, value string) MessageOption {
	return func(m *Message) {
		m.attributes[name] = value
	}
}

// WithAttachment adds a file attachment. The data slice is copied.
func WithAttachment(filename, contentType string, data []byte) MessageOption {
	return func(m *Message) {
		m.attachments = append(m.attachments, Attachment{
			Filename:    filename,
			ContentType: contentType,
			Data:        slices.Clone(data),
		})
	}
}

// NewMessage creates a message. Validation errors from options are not
// returned here; they surface as ErrInvalidMessage from Validate and from
// Queue.Enqueue so that construction can be chained freely.
func NewMessage(from, subject, body string, opts ...MessageOption) *Message {
	m := &Message{
		id:         uuid.NewString(),
		createdAt:  time.Now(),
		subject:    subject,
		body:       body,
		text:       body,
		attributes: make(map[string]string),
	}
	if strings.TrimSpace(from) != "" {
		parsed, err := email.ParseAddress(from)
		if err != nil {
			m.fail(fmt.Errorf("sender %q: %w", from, err))
		} else {
			m.from = parsed
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Message) fail(err error) {
	if m.buildErr == nil {
		m.buildErr = err
	}
}

// Validate reports whether the message can be queued: it needs at least one
// recipient and a sender.
func (m *Message) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}
	if m.buildErr != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, m.buildErr)
	}
	if len(m.recipients) == 0 {
		return fmt.Errorf("%w: no recipients", ErrInvalidMessage)
	}
	if m.from == "" {
		return fmt.Errorf("%w: no sender for message to %q", ErrInvalidMessage, m.Recipient())
	}
	return nil
}

// ID returns the unique message identifier.
func (m *Message) ID() string { return m.id }

// CreatedAt returns the construction time.
func (m *Message) CreatedAt() time.Time { return m.createdAt }

// From returns the sender address.
func (m *Message) From() string { return m.from }

// ReplyTo returns the Reply-To address or an empty string.
func (m *Message) ReplyTo() string { return m.replyTo }

// Subject returns the subject line.
func (m *Message) Subject() string { return m.subject }

// Body returns the caller supplied text, before preparation.
func (m *Message) Body() string { return m.body }

// Text returns the send-ready text. Until the message has been prepared this
// equals Body.
func (m *Message) Text() string { return m.text }

// Recipients returns a copy of the recipient addresses.
func (m *Message) Recipients() []string { return slices.Clone(m.recipients) }

// Recipient returns the recipients joined for display.
func (m *Message) Recipient() string { return strings.Join(m.recipients, ", ") }

// Attribute returns a named attribute value.
func (m *Message) Attribute(name string) (string, bool) {
	v, ok := m.attributes[name]
	return v, ok
}

// Attributes returns a copy of all attributes.
func (m *Message) Attributes() map[string]string { return maps.Clone(m.attributes) }

// AttributeNames returns the attribute names in sorted order.
func (m *Message) AttributeNames() []string {
	return slices.Sorted(maps.Keys(m.attributes))
}

// Attachments returns copies of the attachments.
func (m *Message) Attachments() []Attachment {
	out := make([]Attachment, len(m.attachments))
	for i, a := range m.attachments {
		out[i] = Attachment{Filename: a.Filename, ContentType: a.ContentType, Data: slices.Clone(a.Data)}
	}
	return out
}

// String renders a short textual form for logs and diagnostics.
func (m *Message) String() string {
	var b strings.Builder
	b.WriteString("To: ")
	b.WriteString(m.Recipient())
	b.WriteString("\n")
	if m.replyTo != "" {
		b.WriteString("Reply-To: ")
		b.WriteString(m.replyTo)
		b.WriteString("\n")
	}
	b.WriteString("Subject: ")
	b.WriteString(m.subject)
	b.WriteString("\n\n")
	b.WriteString(m.text)
	return b.String()
}
