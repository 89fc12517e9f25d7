package metrics

// NoopCollector is a no-op implementation of the Collector interface.
// All methods are empty stubs that do nothing.
type NoopCollector struct{}

// ConnectionOpened is a no-op.
func (n *NoopCollector) ConnectionOpened() {}

// ConnectionClosed is a no-op.
func (n *NoopCollector) ConnectionClosed() {}

// TLSConnectionEstablished is a no-op.
func (n *NoopCollector) TLSConnectionEstablished() {}

// MessageReceived is a no-op.
func (n *NoopCollector) MessageReceived(recipientDomain string, sizeBytes int64) {}

// MessageRejected is a no-op.
func (n *NoopCollector) MessageRejected(recipientDomain string, reason string) {}

// CommandProcessed is a no-op.
func (n *NoopCollector) CommandProcessed(command string) {}

// RecipientResolved is a no-op.
func (n *NoopCollector) RecipientResolved(source string) {}

// MessageDropped is a no-op.
func (n *NoopCollector) MessageDropped(displayDomain string, reason string) {}

// MessageStored is a no-op.
func (n *NoopCollector) MessageStored(displayDomain string, status string) {}

// MessageRedacted is a no-op.
func (n *NoopCollector) MessageRedacted(displayDomain string) {}

// ArchiveCompleted is a no-op.
func (n *NoopCollector) ArchiveCompleted(result string) {}

// NotificationSent is a no-op.
func (n *NoopCollector) NotificationSent(target string, result string) {}

// DKIMCheckCompleted is a no-op.
func (n *NoopCollector) DKIMCheckCompleted(senderDomain string, result string) {}
