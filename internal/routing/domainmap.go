package routing

import "github.com/infodancer/mailroute/internal/address"

// MapDomain returns the display domain for a receiving domain. When the map
// holds a list the first entry wins. Unknown domains map to themselves.
func MapDomain(domain string, m map[string][]string) string {
	domain = address.NormalizeDomain(domain)
	if targets := m[domain]; len(targets) > 0 && targets[0] != "" {
		return targets[0]
	}
	return domain
}

// AdmitDomain reports whether mail for domain may enter the pipeline.
// An empty allow-list admits everything.
func AdmitDomain(domain string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	domain = address.NormalizeDomain(domain)
	for _, d := range allowed {
		if d == domain {
			return true
		}
	}
	return false
}
