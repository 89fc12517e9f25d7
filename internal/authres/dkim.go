// Package authres verifies DKIM signatures on inbound messages and records
// the outcome in Authentication-Results form.
package authres

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"

	msgauthres "github.com/emersion/go-msgauth/authres"
	"github.com/emersion/go-msgauth/dkim"
)

// DefaultMaxVerifications caps the number of signatures checked per message.
const DefaultMaxVerifications = 8

// LookupTXTFunc resolves TXT records for a domain.
type LookupTXTFunc func(ctx context.Context, domain string) ([]string, error)

// Verifier checks DKIM signatures.
type Verifier struct {
	lookupTXT        LookupTXTFunc
	maxVerifications int
}

// NewVerifier creates a Verifier. A nil lookup uses the system resolver.
func NewVerifier(lookup LookupTXTFunc) *Verifier {
	if lookup == nil {
		lookup = net.DefaultResolver.LookupTXT
	}
	return &Verifier{lookupTXT: lookup, maxVerifications: DefaultMaxVerifications}
}

// Result summarizes the DKIM signatures of one message.
type Result struct {
	// Value is pass when any signature verified, none when there were no
	// signatures, and otherwise the most significant failure.
	Value msgauthres.ResultValue
	// Domain is the signing domain of the deciding signature.
	Domain  string
	Results []msgauthres.Result
}

// Header returns the Authentication-Results header value for hostname.
func (r Result) Header(hostname string) string {
	results := r.Results
	if len(results) == 0 {
		results = []msgauthres.Result{&msgauthres.DKIMResult{Value: msgauthres.ResultNone}}
	}
	return msgauthres.Format(hostname, results)
}

// Verify checks every signature in raw.
func (v *Verifier) Verify(ctx context.Context, raw []byte) (Result, error) {
	verifications, err := dkim.VerifyWithOptions(bytes.NewReader(raw), &dkim.VerifyOptions{
		LookupTXT: func(domain string) ([]string, error) {
			return v.lookupTXT(ctx, domain)
		},
		MaxVerifications: v.maxVerifications,
	})
	if err != nil {
		return Result{Value: msgauthres.ResultTempError}, fmt.Errorf("dkim verification: %w", err)
	}

	res := Result{
		Value:   msgauthres.ResultNone,
		Results: make([]msgauthres.Result, 0, len(verifications)),
	}
	for _, verif := range verifications {
		var val msgauthres.ResultValue = msgauthres.ResultPass
		reason := ""
		if verif.Err != nil {
			val = msgauthres.ResultFail
			reason = strings.TrimPrefix(verif.Err.Error(), "dkim: ")
			if dkim.IsPermFail(verif.Err) {
				val = msgauthres.ResultPermError
			}
			if dkim.IsTempFail(verif.Err) {
				val = msgauthres.ResultTempError
			}
		}
		res.Results = append(res.Results, &msgauthres.DKIMResult{
			Value:      val,
			Reason:     reason,
			Domain:     verif.Domain,
			Identifier: verif.Identifier,
		})
		if rank(val) > rank(res.Value) {
			res.Value = val
			res.Domain = verif.Domain
		}
	}
	return res, nil
}

// rank orders results so that one passing signature outweighs any number
// of broken ones.
func rank(v msgauthres.ResultValue) int {
	switch v {
	case msgauthres.ResultPass:
		return 5
	case msgauthres.ResultTempError:
		return 4
	case msgauthres.ResultFail:
		return 3
	case msgauthres.ResultPermError:
		return 2
	case msgauthres.ResultNone:
		return 1
	default:
		return 0
	}
}
