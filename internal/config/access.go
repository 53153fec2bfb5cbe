package config

import (
	"fmt"
	"net"
	"strings"
)

// AllowedNetworks returns the CIDR blocks from MAIL_SUBMIT_ALLOW_NETWORKS.
// Bare IPs become single-host networks.
func (c Config) AllowedNetworks() ([]*net.IPNet, error) {
	return ParseNetworks(c.AllowNetworks)
}

// ParseNetworks converts CIDR strings and bare IPs to networks. Blank
// entries are ignored; anything else that does not parse is an error, so
// a typo never widens the allow-list to everyone.
func ParseNetworks(values []string) ([]*net.IPNet, error) {
	var result []*net.IPNet
	for _, part := range values {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			ip := net.ParseIP(part)
			if ip == nil {
				return nil, fmt.Errorf("config: MAIL_SUBMIT_ALLOW_NETWORKS entry %q is not an IP or CIDR", part)
			}
			if v4 := ip.To4(); v4 != nil {
				ip = v4
			}
			mask := net.CIDRMask(len(ip)*8, len(ip)*8)
			result = append(result, &net.IPNet{IP: ip, Mask: mask})
			continue
		}
		_, network, err := net.ParseCIDR(part)
		if err != nil {
			return nil, fmt.Errorf("config: MAIL_SUBMIT_ALLOW_NETWORKS entry %q: %w", part, err)
		}
		result = append(result, network)
	}
	return result, nil
}
