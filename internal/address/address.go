// Package address canonicalizes mail addresses for routing lookups.
package address

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrNoAt        = errors.New("address: missing at-sign")
	ErrEmptyLocal  = errors.New("address: empty local-part")
	ErrEmptyDomain = errors.New("address: empty domain")
)

var (
	angleRe = regexp.MustCompile(`<([^<>]*)>`)
	tokenRe = regexp.MustCompile("[A-Za-z0-9!#$%&'*+/=?^_`{|}~.\\-]+@[A-Za-z0-9\\-]+(?:\\.[A-Za-z0-9\\-]+)*\\.?")
)

// Options controls Normalize.
type Options struct {
	// DropPlusTag truncates the local part at the first '+'.
	DropPlusTag bool
}

// DefaultOptions strips "+tag" suffixes.
var DefaultOptions = Options{DropPlusTag: true}

// Normalize extracts an address from raw (which may carry a display name)
// and returns it as lowercase local@domain. ok is false when no usable
// address is present.
//
// Normalize is idempotent: normalizing its own output returns it unchanged.
func Normalize(raw string, opts Options) (addr string, ok bool) {
	candidate := extract(raw)
	if candidate == "" {
		return "", false
	}

	local, domain, err := Split(strings.ToLower(candidate))
	if err != nil {
		return "", false
	}
	if opts.DropPlusTag {
		if i := strings.IndexByte(local, '+'); i >= 0 {
			local = local[:i]
		}
		if local == "" {
			return "", false
		}
	}
	return local + "@" + domain, true
}

// extract returns the first angle-bracketed address holding an '@', or else
// the first local@domain token found anywhere in s.
func extract(s string) string {
	for _, m := range angleRe.FindAllStringSubmatch(s, -1) {
		inner := strings.TrimSpace(m[1])
		if strings.Contains(inner, "@") {
			if tok := tokenRe.FindString(inner); tok != "" {
				return tok
			}
		}
	}
	return tokenRe.FindString(s)
}

// Split splits addr into local part and domain at the last '@'. A trailing
// dot on the domain is removed.
func Split(addr string) (local, domain string, err error) {
	i := strings.LastIndexByte(addr, '@')
	if i == -1 {
		return "", "", ErrNoAt
	}
	local = addr[:i]
	domain = strings.TrimSuffix(addr[i+1:], ".")
	if local == "" {
		return "", "", ErrEmptyLocal
	}
	if domain == "" {
		return "", "", ErrEmptyDomain
	}
	return local, domain, nil
}

// Domain returns the lowercased domain of addr, or "" if addr has none.
func Domain(addr string) string {
	_, d, err := Split(addr)
	if err != nil {
		return ""
	}
	return strings.ToLower(d)
}

// Local returns the local part of addr, or "" if addr cannot be split.
func Local(addr string) string {
	l, _, err := Split(addr)
	if err != nil {
		return ""
	}
	return l
}

// NormalizeDomain lowercases d and strips surrounding whitespace, a leading
// '@' and a trailing dot.
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	d = strings.TrimPrefix(d, "@")
	return strings.TrimSuffix(d, ".")
}

// IsDomain reports whether s looks like a bare domain rather than an address.
func IsDomain(s string) bool {
	return s != "" && !strings.Contains(s, "@")
}
