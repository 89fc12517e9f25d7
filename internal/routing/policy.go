package routing

import (
	"context"
	"strings"

	"github.com/infodancer/mailroute/internal/address"
)

// BanType is the enforcement level applied when a ban entry matches.
type BanType string

const (
	// BanAll drops the message.
	BanAll BanType = "ALL"
	// BanContent keeps the message but removes its bodies and attachments.
	BanContent BanType = "CONTENT"
)

// ParseBanType maps a stored value to a BanType. Anything other than
// CONTENT is treated as ALL.
func ParseBanType(s string) BanType {
	if strings.EqualFold(strings.TrimSpace(s), string(BanContent)) {
		return BanContent
	}
	return BanAll
}

// RolePolicy is the permission and ban configuration of an account's user.
type RolePolicy struct {
	BanEmail     []string
	BanEmailType BanType
	// AvailDomain lists permitted domains: "example.com", "*.example.com"
	// for subdomains, or "*". Empty means unrestricted.
	AvailDomain []string
}

// PolicyLookup returns the role policy for a user, or nil, nil if none.
type PolicyLookup interface {
	LookupRolePolicy(ctx context.Context, userID int64) (*RolePolicy, error)
}

// RedactedPlaceholder replaces message bodies under a CONTENT ban.
const RedactedPlaceholder = "[content removed by sender ban policy]"

// DomainPermitted reports whether domain satisfies any rule.
func DomainPermitted(domain string, rules []string) bool {
	if len(rules) == 0 {
		return true
	}
	domain = address.NormalizeDomain(domain)
	for _, r := range rules {
		r = address.NormalizeDomain(r)
		switch {
		case r == "*":
			return true
		case strings.HasPrefix(r, "*."):
			if strings.HasSuffix(domain, r[1:]) {
				return true
			}
		case r == domain:
			return true
		}
	}
	return false
}

// BanMatches reports whether sender hits an entry in bans. Bare-domain
// entries compare against the sender's domain, all others against the full
// sender address, case-insensitively.
func BanMatches(sender string, bans []string) bool {
	sender, ok := address.Normalize(sender, address.Options{})
	if !ok {
		return false
	}
	senderDomain := address.Domain(sender)
	for _, b := range bans {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		if address.IsDomain(b) || strings.HasPrefix(b, "@") {
			if address.NormalizeDomain(b) == senderDomain {
				return true
			}
			continue
		}
		if n, ok := address.Normalize(b, address.Options{}); ok && n == sender {
			return true
		}
	}
	return false
}

// EvaluatePolicy applies the permission check to finalAddress and then the
// ban check to sender. A nil policy permits everything.
func EvaluatePolicy(policy *RolePolicy, finalAddress, sender string) (Disposition, DropReason) {
	if policy == nil {
		return Delivered, ""
	}
	if !DomainPermitted(address.Domain(finalAddress), policy.AvailDomain) {
		return Dropped, ReasonNotPermitted
	}
	if BanMatches(sender, policy.BanEmail) {
		if policy.BanEmailType == BanContent {
			return Redacted, ""
		}
		return Dropped, ReasonBanned
	}
	return Delivered, ""
}
