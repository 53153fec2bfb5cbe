package dkim

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	msgauthdkim "github.com/emersion/go-msgauth/dkim"

	"mailqueue/internal/config"
	"mailqueue/internal/email"
)

var defaultHeaderKeys = []string{
	"from",
	"reply-to",
	"to",
	"subject",
	"date",
	"mime-version",
	"content-type",
	"message-id",
}

// Signer applies DKIM signatures to outgoing messages.
type Signer struct {
	domain     string
	selector   string
	key        crypto.Signer
	headerKeys []string
}

// Selector returns the configured DKIM selector string.
func (s *Signer) Selector() string {
	if s == nil {
		return ""
	}
	return s.selector
}

// Domain returns the configured signing domain, if any.
func (s *Signer) Domain() string {
	if s == nil {
		return ""
	}
	return s.domain
}

// New builds a Signer from the DKIM settings. It returns nil, nil when
// DKIM is not configured at all.
//
// The selector is required once any DKIM value is present. The key comes
// from MAIL_DKIM_PRIVATE_KEY when set, otherwise from MAIL_DKIM_KEY_PATH.
// MAIL_DKIM_DOMAIN overrides the domain taken from the sender address.
func New(cfg config.DKIMConfig) (*Signer, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	selector := strings.TrimSpace(cfg.Selector)
	if selector == "" {
		return nil, errors.New("dkim: MAIL_DKIM_SELECTOR is required when enabling DKIM")
	}

	var pemData []byte
	switch keyPath := strings.TrimSpace(cfg.KeyPath); {
	case cfg.PrivateKey != "":
		pemData = []byte(cfg.PrivateKey)
	case keyPath != "":
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("dkim: read private key: %w", err)
		}
		pemData = data
	default:
		return nil, errors.New("dkim: provide MAIL_DKIM_KEY_PATH or MAIL_DKIM_PRIVATE_KEY")
	}

	key, err := parsePrivateKey(pemData)
	if err != nil {
		return nil, fmt.Errorf("dkim: parse private key: %w", err)
	}

	return &Signer{
		domain:     strings.ToLower(strings.TrimSpace(cfg.Domain)),
		selector:   selector,
		key:        key,
		headerKeys: defaultHeaderKeys,
	}, nil
}

// Sign returns message with a DKIM-Signature header prepended. A message
// already carrying a signature is returned unchanged. A nil Signer is a
// no-op.
func (s *Signer) Sign(message []byte, from string) ([]byte, error) {
	if s == nil || s.key == nil {
		return message, nil
	}
	if hasSignature(message) {
		return message, nil
	}

	domain := s.domain
	if domain == "" {
		domain, _ = email.Domain(from)
	}
	if domain == "" {
		return nil, errors.New("dkim: unable to determine signing domain")
	}

	opts := &msgauthdkim.SignOptions{
		Domain:                 domain,
		Selector:               s.selector,
		Signer:                 s.key,
		HeaderCanonicalization: msgauthdkim.CanonicalizationRelaxed,
		BodyCanonicalization:   msgauthdkim.CanonicalizationRelaxed,
		HeaderKeys:             s.headerKeys,
	}

	var signed bytes.Buffer
	if err := msgauthdkim.Sign(&signed, bytes.NewReader(normalizeLineEndings(message)), opts); err != nil {
		return nil, fmt.Errorf("dkim: signing failed: %w", err)
	}
	return signed.Bytes(), nil
}

func parsePrivateKey(pemData []byte) (crypto.Signer, error) {
	for {
		block, rest := pem.Decode(pemData)
		if block == nil {
			break
		}
		switch block.Type {
		case "RSA PRIVATE KEY":
			return x509.ParsePKCS1PrivateKey(block.Bytes)
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, err
			}
			if signer, ok := key.(crypto.Signer); ok {
				return signer, nil
			}
			return nil, errors.New("unsupported private key type in PKCS#8 container")
		}
		pemData = rest
	}
	return nil, errors.New("no private key found in PEM data")
}

func hasSignature(message []byte) bool {
	upper := bytes.ToUpper(message)
	return bytes.Contains(upper, []byte("\nDKIM-SIGNATURE:")) || bytes.HasPrefix(upper, []byte("DKIM-SIGNATURE:"))
}

func normalizeLineEndings(data []byte) []byte {
	if bytes.Contains(data, []byte("\r\n")) || !bytes.Contains(data, []byte("\n")) {
		return data
	}
	return bytes.ReplaceAll(data, []byte("\n"), []byte("\r\n"))
}
