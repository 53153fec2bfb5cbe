package delivery

import (
	"bytes"
	"fmt"
	"io"

	gomail "gopkg.in/mail.v2"

	"mailqueue/internal/dkim"
	"mailqueue/queue"
)

// Build expands m into one MIME message per recipient. Each copy carries
// a single To address and a Message-ID derived from the queue message ID,
// so a retried send reuses the same IDs.
func Build(m *queue.Message, hostname string) []*gomail.Message {
	recipients := m.Recipients()
	attachments := m.Attachments()
	out := make([]*gomail.Message, 0, len(recipients))

	for i, rcpt := range recipients {
		msg := gomail.NewMessage()
		msg.SetHeader("From", m.From())
		if replyTo := m.ReplyTo(); replyTo != "" {
			msg.SetHeader("Reply-To", replyTo)
		}
		msg.SetHeader("To", rcpt)
		msg.SetHeader("Subject", m.Subject())
		msg.SetDateHeader("Date", m.CreatedAt())
		msg.SetHeader("Message-ID", messageID(m.ID(), i, hostname))
		msg.SetBody("text/plain", m.Text())

		for _, a := range attachments {
			data := a.Data
			contentType := a.ContentType
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			msg.Attach(a.Filename,
				gomail.SetCopyFunc(func(w io.Writer) error {
					_, err := w.Write(data)
					return err
				}),
				gomail.SetHeader(map[string][]string{
					"Content-Type": {fmt.Sprintf("%s; name=%q", contentType, a.Filename)},
				}),
			)
		}
		out = append(out, msg)
	}
	return out
}

// Render writes msg in wire format, DKIM-signed when signer is non-nil.
func Render(msg *gomail.Message, signer *dkim.Signer) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render message: %w", err)
	}
	if signer == nil {
		return buf.Bytes(), nil
	}
	from := ""
	if values := msg.GetHeader("From"); len(values) > 0 {
		from = values[0]
	}
	return signer.Sign(buf.Bytes(), from)
}

func messageID(id string, index int, hostname string) string {
	if hostname == "" {
		hostname = "localhost"
	}
	return fmt.Sprintf("<%s.%d@%s>", id, index, hostname)
}

// signingSender signs each rendered message before handing it to the
// underlying SMTP sender.
type signingSender struct {
	gomail.SendCloser
	signer *dkim.Signer
}

func (s *signingSender) Send(from string, to []string, msg io.WriterTo) error {
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return err
	}
	signed, err := s.signer.Sign(buf.Bytes(), from)
	if err != nil {
		return err
	}
	return s.SendCloser.Send(from, to, bytes.NewReader(signed))
}

func withSigner(sc gomail.SendCloser, signer *dkim.Signer) gomail.SendCloser {
	if signer == nil {
		return sc
	}
	return &signingSender{SendCloser: sc, signer: signer}
}
