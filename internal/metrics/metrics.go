// Package metrics provides interfaces and implementations for collecting
// routing daemon metrics. This package defines the Collector interface for
// recording metrics and the Server interface for exposing them.
package metrics

import "context"

// Collector defines the interface for recording routing daemon metrics.
type Collector interface {
	// Connection metrics (no domain - happens before HELO)
	ConnectionOpened()
	ConnectionClosed()
	TLSConnectionEstablished()

	// Message metrics (envelope recipient domain first)
	MessageReceived(recipientDomain string, sizeBytes int64)
	MessageRejected(recipientDomain string, reason string)

	// Command metrics (no domain - too granular)
	CommandProcessed(command string)

	// Routing metrics (display domain first)
	// source is "candidate", "sink", or "none"
	RecipientResolved(source string)
	MessageDropped(displayDomain string, reason string)
	MessageStored(displayDomain string, status string)
	MessageRedacted(displayDomain string)

	// Side-channel metrics
	// result should be "success" or "failure"
	ArchiveCompleted(result string)
	NotificationSent(target string, result string)

	// Authentication metrics (sender domain first - these validate the sender)
	DKIMCheckCompleted(senderDomain string, result string)
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is canceled
	// or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error

	// SetHealthCheck installs the probe answered on the health endpoint.
	// Until one is set the endpoint reports the daemon as starting.
	SetHealthCheck(check HealthCheck)
}

// HealthCheck reports whether the daemon can currently route mail.
type HealthCheck func(ctx context.Context) error

// Result converts an error into the result label used by the side-channel
// metrics.
func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
