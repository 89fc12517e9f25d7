package routing

import (
	"context"
	"fmt"
	"strings"
)

// Account is an internal mailbox. Routing never modifies it.
type Account struct {
	ID     int64
	UserID int64
	Email  string
}

// AccountLookup finds the account that owns an exact address. It returns
// nil, nil when no account exists. Soft-deleted accounts must be returned.
type AccountLookup interface {
	LookupAccount(ctx context.Context, address string) (*Account, error)
}

// Match is an account together with the address it was found under.
type Match struct {
	Account *Account
	Address string
}

// MatchAccount probes candidates in order and returns the first hit, or nil
// when none match.
func MatchAccount(ctx context.Context, lookup AccountLookup, candidates []string) (*Match, error) {
	for _, c := range candidates {
		acct, err := lookup.LookupAccount(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("looking up account %s: %w", c, err)
		}
		if acct != nil {
			return &Match{Account: acct, Address: c}, nil
		}
	}
	return nil, nil
}

// ResolveSink returns the sink account for displayDomain. The exact domain
// entry is preferred over the "*" entry, and adminAddress is the fallback
// when neither is configured or the configured sink has no account. A nil
// Match means no sink applies.
func ResolveSink(ctx context.Context, lookup AccountLookup, displayDomain string, sinks map[string]string, adminAddress string) (*Match, error) {
	sink, ok := sinks[displayDomain]
	if !ok || sink == "" {
		sink = sinks["*"]
	}

	for _, addr := range []string{sink, adminAddress} {
		if addr == "" {
			continue
		}
		acct, err := lookup.LookupAccount(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("looking up sink account %s: %w", addr, err)
		}
		if acct != nil {
			return &Match{Account: acct, Address: addr}, nil
		}
	}
	return nil, nil
}

// IsAdmin reports whether acct is the administrator account.
func IsAdmin(acct *Account, adminAddress string) bool {
	return acct != nil && adminAddress != "" && strings.EqualFold(acct.Email, adminAddress)
}
