package delivery

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"sort"
	"strings"

	gomail "gopkg.in/mail.v2"

	"mailqueue/internal/email"
)

var mxLookup = net.DefaultResolver.LookupMX

// dialFunc opens an SMTP session; tests replace it to redirect ports.
var dialFunc = func(d *gomail.Dialer) (gomail.SendCloser, error) {
	return d.Dial()
}

// ResolveMX returns the MX hosts for domain ordered by preference. Hosts
// with equal preference are shuffled to spread load.
func ResolveMX(ctx context.Context, domain string) ([]*net.MX, error) {
	records, err := mxLookup(ctx, domain)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Pref < records[j].Pref
	})

	for i := 0; i < len(records); {
		j := i + 1
		for j < len(records) && records[j].Pref == records[i].Pref {
			j++
		}
		rand.Shuffle(j-i, func(a, b int) {
			records[i+a], records[i+b] = records[i+b], records[i+a]
		})
		i = j
	}

	for _, mx := range records {
		mx.Host = strings.TrimSuffix(mx.Host, ".")
	}

	return records, nil
}

// ExtractDomain extracts the domain part from an email address.
func ExtractDomain(address string) (string, error) {
	domain, err := email.Domain(address)
	if err != nil {
		return "", fmt.Errorf("invalid email format: %w", err)
	}
	return domain, nil
}
