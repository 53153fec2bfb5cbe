package config

import (
	"os"
)

const defaultHostname = "localhost"

// Hostname returns the name used in EHLO when MAIL_HOSTNAME is unset.
// Preference order: system hostname, fallback.
func Hostname() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultHostname
}
