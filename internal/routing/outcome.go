package routing

import "github.com/infodancer/mailroute/internal/message"

// Disposition is the terminal decision for one recipient of a message.
type Disposition string

const (
	// Delivered messages are persisted unchanged.
	Delivered Disposition = "delivered"
	// Redacted messages are persisted with bodies and attachments removed.
	Redacted Disposition = "redacted"
	// Dropped messages are not persisted and trigger no notification.
	Dropped Disposition = "dropped"
)

// DropReason explains a Dropped outcome.
type DropReason string

const (
	ReasonReceiveDisabled  DropReason = "receive_disabled"
	ReasonInvalidRecipient DropReason = "invalid_recipient"
	ReasonDomainNotAllowed DropReason = "domain_not_allowed"
	ReasonSenderBinding    DropReason = "sender_binding"
	ReasonNotPermitted     DropReason = "not_permitted"
	ReasonBanned           DropReason = "banned"
	ReasonRuleFilter       DropReason = "rule_filter"
	ReasonUnknownRecipient DropReason = "unknown_recipient"
)

// Source records how the owning account was found.
type Source string

const (
	SourceCandidate Source = "candidate"
	SourceSink      Source = "sink"
	SourceNone      Source = "none"
)

// Result is the resolved owner of a message.
type Result struct {
	// Account is nil when no account matched.
	Account *Account
	// FinalAddress is always a normalized local@domain.
	FinalAddress string
}

// Outcome is the complete result of running the pipeline for one recipient.
type Outcome struct {
	Disposition   Disposition
	Reason        DropReason
	Result        Result
	Status        Status
	Source        Source
	DisplayDomain string
	Candidates    []string

	// Message is the message to persist. Under Redacted it is a redacted
	// copy; the input message is never modified.
	Message *message.Message
}

// Persist reports whether the outcome should be stored.
func (o Outcome) Persist() bool {
	return o.Disposition == Delivered || o.Disposition == Redacted
}

func dropped(reason DropReason) Outcome {
	return Outcome{Disposition: Dropped, Reason: reason, Source: SourceNone}
}
