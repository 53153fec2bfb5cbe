package delivery

import (
	"log/slog"

	"mailqueue/internal/dkim"
	"mailqueue/internal/logger"
)

type options struct {
	logger *slog.Logger
	signer *dkim.Signer
}

// Option configures a transport.
type Option func(*options)

// WithLogger sets the transport logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSigner DKIM-signs every rendered message.
func WithSigner(s *dkim.Signer) Option {
	return func(o *options) { o.signer = s }
}

func buildOptions(component string, opts []Option) options {
	o := options{logger: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With(logger.Component(component))
	return o
}
