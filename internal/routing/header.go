package routing

import (
	"strings"

	"github.com/infodancer/mailroute/internal/address"
)

// RecipientHeaders lists the headers probed for the original recipient, in
// priority order: the original-recipient family first, then headers added
// along a forwarding chain.
var RecipientHeaders = []string{
	"x-original-to",
	"original-recipient",
	"x-original-recipient",
	"x-envelope-to",
	"envelope-to",
	"x-forwarded-to",
	"x-forwarded-for",
	"delivered-to",
}

// ResolveHeaderRecipient returns the normalized address from the first
// header in RecipientHeaders that is not excluded and yields an address.
// Only the first value of each header is consulted. When no header matches,
// the normalized fallback is returned; ok is false only if that fails too.
func ResolveHeaderRecipient(headers map[string][]string, fallback string, excluded []string, opts address.Options) (addr string, ok bool) {
	skip := make(map[string]bool, len(excluded))
	for _, h := range excluded {
		skip[strings.ToLower(strings.TrimSpace(h))] = true
	}

	for _, name := range RecipientHeaders {
		if skip[name] {
			continue
		}
		values := headers[name]
		if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
			continue
		}
		if a, ok := address.Normalize(values[0], opts); ok {
			return a, true
		}
	}

	return address.Normalize(fallback, opts)
}
