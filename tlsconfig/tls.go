package tlsconfig

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"mailqueue/internal/config"
)

// ErrTLSDisabled is returned when the relay connection is configured
// without TLS.
var ErrTLSDisabled = errors.New("tlsconfig: tls disabled")

// Client returns the TLS settings used when connecting to a relay.
// It returns ErrTLSDisabled for MAIL_TLS_MODE=none.
func Client(cfg config.Config) (*tls.Config, error) {
	switch strings.ToLower(cfg.TLSMode) {
	case config.TLSModeNone:
		return nil, ErrTLSDisabled
	case config.TLSModeSTARTTLS, config.TLSModeTLS, "":
	default:
		return nil, fmt.Errorf("tlsconfig: unknown mode %q", cfg.TLSMode)
	}
	return ForHost(cfg.Host, cfg.TLSSkipVerify), nil
}

// ForHost returns a client configuration for serverName.
func ForHost(serverName string, skipVerify bool) *tls.Config {
	return &tls.Config{
		ServerName:         serverName,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: skipVerify, //nolint:gosec // opt-in via MAIL_TLS_SKIP_VERIFY
	}
}
