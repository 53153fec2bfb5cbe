package delivery

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/mrz1836/postmark"

	"mailqueue/internal/logger"
	"mailqueue/queue"
)

// Postmark API error codes that map to a specific reason. Invalid request
// (300) and sender signature not found (400) describe the message or the
// sending account, not the recipient or the token, so they stay unknown.
const (
	postmarkBadToken        = 10
	postmarkInactiveAddress = 406
)

// PostmarkTransport sends through the Postmark HTTP API.
type PostmarkTransport struct {
	client *postmark.Client
	opts   options
}

// NewPostmark returns a Postmark transport. The account token may be empty.
func NewPostmark(serverToken, accountToken string, opts ...Option) *PostmarkTransport {
	return &PostmarkTransport{
		client: postmark.NewClient(serverToken, accountToken),
		opts:   buildOptions("postmark", opts),
	}
}

// Open does no network work; the API is request scoped.
func (t *PostmarkTransport) Open(ctx context.Context) (queue.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, connectError(err)
	}
	return &postmarkConnection{t: t}, nil
}

type postmarkConnection struct {
	t *PostmarkTransport
}

func (c *postmarkConnection) Close() error { return nil }

// Send issues one API call per recipient.
func (c *postmarkConnection) Send(ctx context.Context, m *queue.Message) error {
	attachments := make([]postmark.Attachment, 0, len(m.Attachments()))
	for _, a := range m.Attachments() {
		attachments = append(attachments, postmark.Attachment{
			Name:        a.Filename,
			Content:     base64.StdEncoding.EncodeToString(a.Data),
			ContentType: a.ContentType,
		})
	}

	for _, rcpt := range m.Recipients() {
		resp, err := c.t.client.SendEmail(ctx, postmark.Email{
			From:        m.From(),
			To:          rcpt,
			ReplyTo:     m.ReplyTo(),
			Subject:     m.Subject(),
			TextBody:    m.Text(),
			Attachments: attachments,
		})
		if resp.ErrorCode != 0 {
			return &queue.SendError{
				Reason: postmarkReason(int64(resp.ErrorCode)),
				Err:    fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message),
			}
		}
		if err != nil {
			return sendError(err)
		}
		c.t.opts.logger.Debug("message accepted",
			logger.MessageID(resp.MessageID),
			logger.Recipients([]string{rcpt}),
		)
	}
	return nil
}

func postmarkReason(code int64) queue.Reason {
	switch code {
	case postmarkBadToken:
		return queue.ReasonAuthRejected
	case postmarkInactiveAddress:
		return queue.ReasonRecipientRejected
	default:
		return queue.ReasonUnknown
	}
}
