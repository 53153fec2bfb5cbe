package email

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

var (
	// ErrEmptyList indicates an address list contained no addresses.
	ErrEmptyList = errors.New("empty address list")
	// ErrInvalidAddress indicates the address failed validation.
	ErrInvalidAddress = errors.New("invalid email address")
)

// ParseAddress validates a single address and returns its normalised
// addr-spec. Display names are dropped.
func ParseAddress(value string) (string, error) {
	if strings.ContainsAny(value, "\r\n") {
		return "", fmt.Errorf("%w: unexpected newline", ErrInvalidAddress)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}

	parsed, err := mail.ParseAddress(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return normalise(parsed.Address), nil
}

// ParseAddressList parses a comma separated RFC 5322 address list such as
// "alice@example.com, Bob <bob@example.net>".
func ParseAddressList(value string) ([]string, error) {
	if strings.ContainsAny(value, "\r\n") {
		return nil, fmt.Errorf("%w: unexpected newline", ErrInvalidAddress)
	}
	if strings.TrimSpace(value) == "" {
		return nil, ErrEmptyList
	}

	parsed, err := mail.ParseAddressList(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	out := make([]string, 0, len(parsed))
	for _, addr := range parsed {
		out = append(out, normalise(addr.Address))
	}
	return out, nil
}

// Domain returns the domain component of a validated email address.
func Domain(address string) (string, error) {
	at := strings.LastIndex(address, "@")
	if at == -1 || at == len(address)-1 {
		return "", fmt.Errorf("%w: missing domain", ErrInvalidAddress)
	}

	domain := address[at+1:]
	domain = strings.TrimSuffix(domain, ".")
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return "", fmt.Errorf("%w: empty domain", ErrInvalidAddress)
	}
	if strings.ContainsAny(domain, " \t") {
		return "", fmt.Errorf("%w: whitespace in domain", ErrInvalidAddress)
	}

	return strings.ToLower(domain), nil
}

// normalise lowercases the domain part only; local parts are case sensitive
// per RFC 5321.
func normalise(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at == -1 {
		return addr
	}
	return addr[:at+1] + strings.ToLower(addr[at+1:])
}
