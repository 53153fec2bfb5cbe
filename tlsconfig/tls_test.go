package tlsconfig

import (
	"crypto/tls"
	"errors"
	"testing"

	"mailqueue/internal/config"
)

func TestClientDisabled(t *testing.T) {
	conf, err := Client(config.Config{Host: "relay.test", TLSMode: config.TLSModeNone})
	if !errors.Is(err, ErrTLSDisabled) {
		t.Fatalf("expected ErrTLSDisabled, got %v", err)
	}
	if conf != nil {
		t.Fatalf("expected nil config when disabled")
	}
}

func TestClientStartTLS(t *testing.T) {
	conf, err := Client(config.Config{Host: "relay.test", TLSMode: config.TLSModeSTARTTLS})
	if err != nil {
		t.Fatalf("Client error: %v", err)
	}
	if conf.ServerName != "relay.test" {
		t.Fatalf("expected server name relay.test, got %q", conf.ServerName)
	}
	if conf.MinVersion != tls.VersionTLS12 {
		t.Fatalf("expected MinVersion TLS1.2, got %d", conf.MinVersion)
	}
	if conf.InsecureSkipVerify {
		t.Fatalf("verification should be on by default")
	}
}

func TestClientSkipVerify(t *testing.T) {
	conf, err := Client(config.Config{Host: "relay.test", TLSMode: config.TLSModeTLS, TLSSkipVerify: true})
	if err != nil {
		t.Fatalf("Client error: %v", err)
	}
	if !conf.InsecureSkipVerify {
		t.Fatalf("expected InsecureSkipVerify")
	}
}

func TestClientUnknownMode(t *testing.T) {
	if _, err := Client(config.Config{TLSMode: "ssl2"}); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
