package routing

import "github.com/infodancer/mailroute/internal/address"

// RuleAllows reports whether finalAddress or envelopeAddress is on the
// rule list. Comparison is case-insensitive.
func RuleAllows(rules []string, finalAddress, envelopeAddress string) bool {
	want := make(map[string]bool, 2)
	for _, a := range []string{finalAddress, envelopeAddress} {
		if n, ok := address.Normalize(a, address.Options{}); ok {
			want[n] = true
		}
	}
	for _, r := range rules {
		if n, ok := address.Normalize(r, address.Options{}); ok && want[n] {
			return true
		}
	}
	return false
}

// Status is the persisted visibility state of a message.
type Status string

const (
	// StatusReceived is visible and tied to an account, or forced visible.
	StatusReceived Status = "RECEIVED"
	// StatusUnassigned is stored without an owning account.
	StatusUnassigned Status = "UNASSIGNED"
)

// DecideStatus returns the terminal status. persist is false when an
// unmatched message is neither accepted nor forced visible.
func DecideStatus(matched, acceptUnknown, forceVisible bool) (status Status, persist bool) {
	switch {
	case matched:
		return StatusReceived, true
	case forceVisible:
		return StatusReceived, true
	case acceptUnknown:
		return StatusUnassigned, true
	default:
		return "", false
	}
}
