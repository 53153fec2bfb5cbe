package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomail "gopkg.in/mail.v2"

	"mailqueue/internal/logger"
	"mailqueue/queue"
	"mailqueue/tlsconfig"
)

const directPort = 25

// DirectTransport delivers straight to each recipient domain's MX hosts.
type DirectTransport struct {
	localName string
	timeout   time.Duration
	opts      options
}

// NewDirect returns an MX routing transport.
func NewDirect(localName string, timeout time.Duration, opts ...Option) *DirectTransport {
	return &DirectTransport{localName: localName, timeout: timeout, opts: buildOptions("direct", opts)}
}

// Open does no network work; sessions are opened per domain in Send.
func (t *DirectTransport) Open(ctx context.Context) (queue.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, connectError(err)
	}
	return &directConnection{t: t}, nil
}

type directConnection struct {
	t *DirectTransport
}

func (c *directConnection) Close() error { return nil }

// Send delivers to every recipient domain. Each domain's MX hosts are
// tried in preference order; a recipient rejection stops the domain.
func (c *directConnection) Send(ctx context.Context, m *queue.Message) error {
	msgs := Build(m, c.t.localName)
	var order []string
	byDomain := make(map[string][]*gomail.Message)
	for i, rcpt := range m.Recipients() {
		domain, err := ExtractDomain(rcpt)
		if err != nil {
			return &queue.SendError{Reason: queue.ReasonRecipientRejected, Err: err}
		}
		if _, ok := byDomain[domain]; !ok {
			order = append(order, domain)
		}
		byDomain[domain] = append(byDomain[domain], msgs[i])
	}

	for _, domain := range order {
		if err := c.deliverDomain(ctx, domain, byDomain[domain]); err != nil {
			return err
		}
	}
	return nil
}

func (c *directConnection) deliverDomain(ctx context.Context, domain string, msgs []*gomail.Message) error {
	records, err := ResolveMX(ctx, domain)
	if err != nil {
		return &queue.SendError{
			Reason: queue.ReasonUnreachable,
			Err:    fmt.Errorf("MX lookup failed for %s: %w", domain, err),
		}
	}
	hosts := make([]string, 0, len(records))
	for _, mx := range records {
		hosts = append(hosts, mx.Host)
	}
	if len(hosts) == 0 {
		// Implicit MX (RFC 5321 section 5.1).
		hosts = append(hosts, domain)
	}

	var lastErr error
	for _, host := range hosts {
		err := c.deliverHost(ctx, host, msgs)
		if err == nil {
			return nil
		}
		lastErr = err
		c.t.opts.logger.Debug("mx host failed", "host", host, logger.Error(err))

		var se *queue.SendError
		if errors.As(err, &se) && se.Reason == queue.ReasonRecipientRejected {
			break
		}
	}
	return lastErr
}

func (c *directConnection) deliverHost(ctx context.Context, host string, msgs []*gomail.Message) error {
	d := gomail.NewDialer(host, directPort, "", "")
	d.LocalName = c.t.localName
	d.Timeout = c.t.timeout
	d.RetryFailure = false
	d.TLSConfig = tlsconfig.ForHost(host, false)
	d.StartTLSPolicy = gomail.OpportunisticStartTLS

	sc, err := dialFunc(d)
	if err != nil {
		return &queue.SendError{Reason: Classify(err), Err: fmt.Errorf("connect %s: %w", host, err)}
	}
	sender := withSigner(sc, c.t.opts.signer)
	defer func() {
		if err := sender.Close(); err != nil {
			c.t.opts.logger.Debug("mx close failed", "host", host, logger.Error(err))
		}
	}()
	return sendAll(ctx, sender, msgs, c.t.opts)
}
