package smtp

import (
	"context"
	"log/slog"
	"net"

	"github.com/emersion/go-smtp"

	"github.com/infodancer/mailroute/internal/inbound"
	"github.com/infodancer/mailroute/internal/logging"
	"github.com/infodancer/mailroute/internal/metrics"
)

// MessageHandler processes one received message. *inbound.Handler
// implements it.
type MessageHandler interface {
	Handle(ctx context.Context, req inbound.Request) ([]inbound.Delivery, error)
}

// Backend implements the go-smtp Backend interface.
// It creates new sessions for each connection.
type Backend struct {
	hostname      string
	handler       MessageHandler
	collector     metrics.Collector
	maxRecipients int
	logger        *slog.Logger
}

// BackendConfig holds configuration for creating a Backend.
type BackendConfig struct {
	Hostname      string
	Handler       MessageHandler
	Collector     metrics.Collector
	MaxRecipients int
	Logger        *slog.Logger
}

// NewBackend creates a new Backend with the given configuration.
func NewBackend(cfg BackendConfig) *Backend {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := cfg.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}

	return &Backend{
		hostname:      cfg.Hostname,
		handler:       cfg.Handler,
		collector:     collector,
		maxRecipients: cfg.MaxRecipients,
		logger:        logger,
	}
}

// NewSession is called for each new connection.
// It implements the smtp.Backend interface.
func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	b.collector.ConnectionOpened()
	if _, isTLS := c.TLSConnectionState(); isTLS {
		b.collector.TLSConnectionEstablished()
	}

	var remoteAddr string
	if nc := c.Conn(); nc != nil && nc.RemoteAddr() != nil {
		remoteAddr = nc.RemoteAddr().String()
	}

	return &Session{
		backend:  b,
		conn:     c,
		clientIP: extractIPFromConn(c.Conn()),
		logger:   logging.WithConnection(b.logger, remoteAddr),
	}, nil
}

// extractIPFromConn extracts the IP address string from a net.Conn.
func extractIPFromConn(conn net.Conn) string {
	if conn == nil {
		return ""
	}
	return extractIP(conn.RemoteAddr())
}

func extractIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}

	switch v := addr.(type) {
	case *net.TCPAddr:
		return v.IP.String()
	case *net.UDPAddr:
		return v.IP.String()
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			return addr.String()
		}
		return host
	}
}
