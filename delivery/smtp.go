package delivery

import (
	"context"
	"crypto/tls"
	"time"

	gomail "gopkg.in/mail.v2"

	"mailqueue/internal/logger"
	"mailqueue/queue"
)

// SMTPConfig describes a relay connection.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// LocalName is sent with EHLO.
	LocalName string
	// TLS is nil for plaintext sessions.
	TLS *tls.Config
	// Implicit selects TLS from the first byte instead of STARTTLS.
	Implicit bool
	Timeout  time.Duration
}

// SMTPTransport relays every message through one SMTP server.
type SMTPTransport struct {
	cfg  SMTPConfig
	opts options
}

// NewSMTP returns a relay transport.
func NewSMTP(cfg SMTPConfig, opts ...Option) *SMTPTransport {
	return &SMTPTransport{cfg: cfg, opts: buildOptions("smtp", opts)}
}

func (t *SMTPTransport) dialer() *gomail.Dialer {
	d := gomail.NewDialer(t.cfg.Host, t.cfg.Port, t.cfg.Username, t.cfg.Password)
	d.LocalName = t.cfg.LocalName
	d.Timeout = t.cfg.Timeout
	d.RetryFailure = false
	if t.cfg.TLS == nil {
		d.SSL = false
		d.StartTLSPolicy = gomail.NoStartTLS
		return d
	}
	d.SSL = t.cfg.Implicit
	d.TLSConfig = t.cfg.TLS
	d.StartTLSPolicy = gomail.OpportunisticStartTLS
	return d
}

// Open connects and authenticates to the relay.
func (t *SMTPTransport) Open(ctx context.Context) (queue.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, connectError(err)
	}
	start := time.Now()
	sc, err := dialFunc(t.dialer())
	if err != nil {
		t.opts.logger.Debug("relay connection failed", logger.Error(err), logger.Elapsed(start))
		return nil, connectError(err)
	}
	return &smtpConnection{
		sender:    withSigner(sc, t.opts.signer),
		localName: t.cfg.LocalName,
		opts:      t.opts,
	}, nil
}

type smtpConnection struct {
	sender    gomail.SendCloser
	localName string
	opts      options
}

// Send transmits one protocol message per recipient, stopping at the
// first rejection.
func (c *smtpConnection) Send(ctx context.Context, m *queue.Message) error {
	return sendAll(ctx, c.sender, Build(m, c.localName), c.opts)
}

func (c *smtpConnection) Close() error {
	return c.sender.Close()
}

func sendAll(ctx context.Context, sender gomail.Sender, msgs []*gomail.Message, opts options) error {
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return sendError(err)
		}
		if err := gomail.Send(sender, msg); err != nil {
			return sendError(err)
		}
		opts.logger.Debug("message accepted",
			logger.Recipients(msg.GetHeader("To")),
			logger.MessageID(first(msg.GetHeader("Message-ID"))),
		)
	}
	return nil
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
