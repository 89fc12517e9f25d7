// Package routing decides which internal account owns an inbound message.
//
// Each stage is a pure function that can be tested on its own; Pipeline
// runs them in a fixed order for one envelope recipient:
//
//	receive switch → admit domain → header recipient → sender binding → display domain →
//	candidates → account match / sink → policy → rule filter → status
package routing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/infodancer/mailroute/internal/address"
	"github.com/infodancer/mailroute/internal/message"
)

// Envelope is the SMTP-level view of one recipient of a message.
type Envelope struct {
	From string
	To   string
	// Headers maps lower-cased header names to raw values.
	Headers map[string][]string
}

// Pipeline resolves recipients against account and policy lookups.
type Pipeline struct {
	accounts AccountLookup
	policies PolicyLookup
	logger   *slog.Logger
}

// NewPipeline creates a Pipeline. logger may be nil.
func NewPipeline(accounts AccountLookup, policies PolicyLookup, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{accounts: accounts, policies: policies, logger: logger}
}

// Resolve runs every stage for env. msg may be nil, in which case the
// envelope sender is used and no body is attached to the outcome. Errors
// are returned only for lookup failures; policy decisions are reported in
// the Outcome.
func (p *Pipeline) Resolve(ctx context.Context, snap *Snapshot, env Envelope, msg *message.Message) (Outcome, error) {
	if !snap.ReceiveEnabled {
		return dropped(ReasonReceiveDisabled), nil
	}

	opts := snap.AddressOptions()

	envTo, ok := address.Normalize(env.To, opts)
	if !ok {
		return dropped(ReasonInvalidRecipient), nil
	}
	envDomain := address.Domain(envTo)

	if !AdmitDomain(envDomain, snap.AllowedDomains) {
		return dropped(ReasonDomainNotAllowed), nil
	}

	rcpt, ok := ResolveHeaderRecipient(env.Headers, env.To, snap.HeaderExclusions, opts)
	if !ok {
		rcpt = envTo
	}
	// Only the local part comes from the headers; the domain is always the
	// one the message was received for.
	local, _, err := address.Split(rcpt)
	if err != nil {
		return dropped(ReasonInvalidRecipient), nil
	}

	sender := env.From
	if msg != nil && msg.From.Address != "" {
		sender = msg.From.Address
	}

	binding, bound := ResolveSenderBinding(sender, snap.SenderBindings)
	if bound && !binding.Admits(envDomain) {
		p.logger.Debug("sender binding rejected envelope domain",
			slog.String("sender", sender),
			slog.String("envelope_domain", envDomain))
		return dropped(ReasonSenderBinding), nil
	}

	display := MapDomain(envDomain, snap.DisplayDomains)

	aliases := append([]string{}, snap.RecipientAliases[envDomain]...)
	aliases = append(aliases, display)
	candidates := BuildCandidates(CandidateInput{
		Local:            local,
		Domain:           envDomain,
		BindingDomains:   binding.TargetDomains,
		AliasDomains:     aliases,
		CanonicalDomains: snap.CanonicalDomains,
		PrimaryDomain:    snap.PrimaryDomain,
	})

	out := Outcome{
		DisplayDomain: display,
		Candidates:    candidates,
		Source:        SourceNone,
		Message:       msg,
	}

	match, err := MatchAccount(ctx, p.accounts, candidates)
	if err != nil {
		return Outcome{}, err
	}
	if match != nil {
		out.Source = SourceCandidate
	} else {
		match, err = ResolveSink(ctx, p.accounts, display, snap.SinkAccounts, snap.AdminAddress)
		if err != nil {
			return Outcome{}, err
		}
		if match != nil {
			out.Source = SourceSink
		}
	}

	if match != nil {
		out.Result = Result{Account: match.Account, FinalAddress: match.Address}
	} else {
		out.Result = Result{FinalAddress: local + "@" + display}
	}

	out.Disposition = Delivered
	if match != nil && p.policies != nil && !IsAdmin(match.Account, snap.AdminAddress) {
		policy, err := p.policies.LookupRolePolicy(ctx, match.Account.UserID)
		if err != nil {
			return Outcome{}, fmt.Errorf("looking up role policy for user %d: %w", match.Account.UserID, err)
		}
		disposition, reason := EvaluatePolicy(policy, out.Result.FinalAddress, sender)
		if disposition == Dropped {
			return p.drop(out, reason), nil
		}
		if disposition == Redacted {
			out.Disposition = Redacted
			if msg != nil {
				out.Message = msg.Redacted(RedactedPlaceholder)
			}
		}
	}

	if snap.RuleMode && !(snap.RuleSkipWhenForced && snap.ForceVisible) {
		rawTo, _ := address.Normalize(env.To, address.Options{})
		if !RuleAllows(snap.RuleAddresses, out.Result.FinalAddress, rawTo) {
			return p.drop(out, ReasonRuleFilter), nil
		}
	}

	status, persist := DecideStatus(match != nil, snap.AcceptUnknown, snap.ForceVisible)
	if !persist {
		return p.drop(out, ReasonUnknownRecipient), nil
	}
	out.Status = status

	return out, nil
}

// drop keeps the resolution details of out for logging but marks it Dropped
// and detaches the message.
func (p *Pipeline) drop(out Outcome, reason DropReason) Outcome {
	out.Disposition = Dropped
	out.Reason = reason
	out.Status = ""
	out.Message = nil
	return out
}
