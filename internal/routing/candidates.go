package routing

import (
	"strings"

	"github.com/infodancer/mailroute/internal/address"
)

// CandidateInput is everything needed to build the candidate list.
type CandidateInput struct {
	Local            string
	Domain           string
	BindingDomains   []string
	AliasDomains     []string
	CanonicalDomains []string
	PrimaryDomain    string
}

// BuildCandidates returns the ordered, case-insensitively deduplicated list
// of addresses to probe: sender-binding domains, alias domains, canonical
// domains, the primary domain, and finally local@Domain, which is always
// present and always last.
func BuildCandidates(in CandidateInput) []string {
	local := strings.ToLower(in.Local)
	identity := local + "@" + address.NormalizeDomain(in.Domain)

	seen := make(map[string]bool)
	var out []string
	add := func(domain string) {
		domain = address.NormalizeDomain(domain)
		if domain == "" {
			return
		}
		a := local + "@" + domain
		if seen[a] || a == identity {
			return
		}
		seen[a] = true
		out = append(out, a)
	}

	for _, d := range in.BindingDomains {
		add(d)
	}
	for _, d := range in.AliasDomains {
		add(d)
	}
	for _, d := range in.CanonicalDomains {
		add(d)
	}
	if in.PrimaryDomain != "" {
		add(in.PrimaryDomain)
	}

	return append(out, identity)
}
