// Package delivery implements the transports the queue drains into: an SMTP
// relay, direct MX delivery, the Postmark API and an on-disk spool.
package delivery

import (
	"errors"
	"fmt"

	"mailqueue/internal/config"
	"mailqueue/internal/dkim"
	"mailqueue/queue"
	"mailqueue/storage"
	"mailqueue/tlsconfig"
)

// New builds the transport selected by cfg.Transport. A DKIM signer is
// attached when cfg.DKIM is set, unless opts already supply one.
func New(cfg config.Config, opts ...Option) (queue.Transport, error) {
	signer, err := dkim.New(cfg.DKIM)
	if err != nil {
		return nil, err
	}
	if signer != nil {
		opts = append([]Option{WithSigner(signer)}, opts...)
	}

	switch cfg.Transport {
	case config.TransportSMTP, "":
		tlsConf, err := tlsconfig.Client(cfg)
		if err != nil && !errors.Is(err, tlsconfig.ErrTLSDisabled) {
			return nil, err
		}
		return NewSMTP(SMTPConfig{
			Host:      cfg.Host,
			Port:      cfg.Port,
			Username:  cfg.Username,
			Password:  cfg.Password,
			LocalName: cfg.Hostname,
			TLS:       tlsConf,
			Implicit:  cfg.TLSMode == config.TLSModeTLS,
			Timeout:   cfg.ConnectTimeout,
		}, opts...), nil
	case config.TransportDirect:
		return NewDirect(cfg.Hostname, cfg.ConnectTimeout, opts...), nil
	case config.TransportPostmark:
		if cfg.PostmarkServerToken == "" {
			return nil, errors.New("delivery: postmark transport requires a server token")
		}
		return NewPostmark(cfg.PostmarkServerToken, cfg.PostmarkAccountToken, opts...), nil
	case config.TransportSpool:
		return NewSpoolTransport(storage.NewSpool(cfg.SpoolDir), cfg.Hostname, opts...), nil
	default:
		return nil, fmt.Errorf("delivery: unknown transport %q", cfg.Transport)
	}
}
