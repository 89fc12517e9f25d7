package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	// Connection metrics
	connectionsTotal   prometheus.Counter
	connectionsActive  prometheus.Gauge
	tlsConnectionTotal prometheus.Counter

	// Message metrics
	messagesReceivedTotal *prometheus.CounterVec
	messagesRejectedTotal *prometheus.CounterVec
	messagesSizeBytes     prometheus.Histogram

	// Command metrics
	commandsTotal *prometheus.CounterVec

	// Routing metrics
	resolutionsTotal      *prometheus.CounterVec
	messagesDroppedTotal  *prometheus.CounterVec
	messagesStoredTotal   *prometheus.CounterVec
	messagesRedactedTotal *prometheus.CounterVec

	// Side-channel metrics
	archivesTotal      *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec

	// Authentication metrics
	dkimChecksTotal *prometheus.CounterVec
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailrouted_connections_total",
			Help: "Total number of SMTP/LMTP connections opened.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailrouted_connections_active",
			Help: "Number of currently active connections.",
		}),
		tlsConnectionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailrouted_tls_connections_total",
			Help: "Total number of TLS connections established.",
		}),

		messagesReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailrouted_messages_received_total",
			Help: "Total number of messages received.",
		}, []string{"recipient_domain"}),
		messagesRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailrouted_messages_rejected_total",
			Help: "Total number of messages rejected at the protocol level.",
		}, []string{"recipient_domain", "reason"}),
		messagesSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailrouted_messages_size_bytes",
			Help:    "Size of received messages in bytes.",
			Buckets: []float64{1024, 10240, 102400, 1048576, 10485760, 26214400, 52428800},
		}),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailrouted_commands_total",
			Help: "Total number of SMTP commands processed.",
		}, []string{"command"}),

		resolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailrouted_resolutions_total",
			Help: "Total number of recipient resolutions by how the owner was found.",
		}, []string{"source"}),
		messagesDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailrouted_messages_dropped_total",
			Help: "Total number of recipients silently dropped by routing policy.",
		}, []string{"display_domain", "reason"}),
		messagesStoredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailrouted_messages_stored_total",
			Help: "Total number of messages persisted.",
		}, []string{"display_domain", "status"}),
		messagesRedactedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailrouted_messages_redacted_total",
			Help: "Total number of messages persisted with content removed.",
		}, []string{"display_domain"}),

		archivesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailrouted_archives_total",
			Help: "Total number of raw archive deliveries.",
		}, []string{"result"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailrouted_notifications_total",
			Help: "Total number of notification attempts.",
		}, []string{"target", "result"}),

		dkimChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailrouted_dkim_checks_total",
			Help: "Total number of DKIM checks performed.",
		}, []string{"sender_domain", "result"}),
	}

	// Register all metrics
	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.tlsConnectionTotal,
		c.messagesReceivedTotal,
		c.messagesRejectedTotal,
		c.messagesSizeBytes,
		c.commandsTotal,
		c.resolutionsTotal,
		c.messagesDroppedTotal,
		c.messagesStoredTotal,
		c.messagesRedactedTotal,
		c.archivesTotal,
		c.notificationsTotal,
		c.dkimChecksTotal,
	)

	return c
}

// ConnectionOpened increments the connection counter and active gauge.
func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

// ConnectionClosed decrements the active connections gauge.
func (c *PrometheusCollector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

// TLSConnectionEstablished increments the TLS connection counter.
func (c *PrometheusCollector) TLSConnectionEstablished() {
	c.tlsConnectionTotal.Inc()
}

// MessageReceived increments the message received counter and observes message size.
func (c *PrometheusCollector) MessageReceived(recipientDomain string, sizeBytes int64) {
	c.messagesReceivedTotal.WithLabelValues(recipientDomain).Inc()
	c.messagesSizeBytes.Observe(float64(sizeBytes))
}

// MessageRejected increments the message rejected counter.
func (c *PrometheusCollector) MessageRejected(recipientDomain string, reason string) {
	c.messagesRejectedTotal.WithLabelValues(recipientDomain, reason).Inc()
}

// CommandProcessed increments the command counter.
func (c *PrometheusCollector) CommandProcessed(command string) {
	c.commandsTotal.WithLabelValues(command).Inc()
}

// RecipientResolved increments the resolution counter.
func (c *PrometheusCollector) RecipientResolved(source string) {
	c.resolutionsTotal.WithLabelValues(source).Inc()
}

// MessageDropped increments the dropped counter.
func (c *PrometheusCollector) MessageDropped(displayDomain string, reason string) {
	c.messagesDroppedTotal.WithLabelValues(displayDomain, reason).Inc()
}

// MessageStored increments the stored counter.
func (c *PrometheusCollector) MessageStored(displayDomain string, status string) {
	c.messagesStoredTotal.WithLabelValues(displayDomain, status).Inc()
}

// MessageRedacted increments the redacted counter.
func (c *PrometheusCollector) MessageRedacted(displayDomain string) {
	c.messagesRedactedTotal.WithLabelValues(displayDomain).Inc()
}

// ArchiveCompleted increments the archive counter.
func (c *PrometheusCollector) ArchiveCompleted(result string) {
	c.archivesTotal.WithLabelValues(result).Inc()
}

// NotificationSent increments the notification counter.
func (c *PrometheusCollector) NotificationSent(target string, result string) {
	c.notificationsTotal.WithLabelValues(target, result).Inc()
}

// DKIMCheckCompleted increments the DKIM check counter.
func (c *PrometheusCollector) DKIMCheckCompleted(senderDomain string, result string) {
	c.dkimChecksTotal.WithLabelValues(senderDomain, result).Inc()
}
