package smtp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-smtp"

	"github.com/infodancer/mailroute/internal/inbound"
	"github.com/infodancer/mailroute/internal/logging"
)

// errProcessing is returned for any message that could not be handled.
// Senders retry; routing drops are never reported here.
var errProcessing = &smtp.SMTPError{
	Code:         451,
	EnhancedCode: smtp.EnhancedCode{4, 3, 0},
	Message:      "Message could not be processed, try again later",
}

// Session implements the go-smtp Session and LMTPSession interfaces.
type Session struct {
	backend    *Backend
	conn       *smtp.Conn
	clientIP   string
	from       string
	recipients []string
	logger     *slog.Logger
}

// Mail handles the MAIL FROM command.
// Implements smtp.Session interface.
func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	s.backend.collector.CommandProcessed("MAIL")
	s.logger.Debug("MAIL FROM", slog.String("from", from))
	return nil
}

// Rcpt handles the RCPT TO command. Every syntactically valid recipient is
// accepted; routing decides later whether it is stored or dropped.
// Implements smtp.Session interface.
func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	if s.backend.maxRecipients > 0 && len(s.recipients) >= s.backend.maxRecipients {
		return &smtp.SMTPError{
			Code:         452,
			EnhancedCode: smtp.EnhancedCode{4, 5, 3},
			Message:      "Too many recipients",
		}
	}

	s.recipients = append(s.recipients, to)
	s.backend.collector.CommandProcessed("RCPT")
	s.logger.Debug("RCPT TO", slog.String("to", to))
	return nil
}

// Data handles the DATA command. Dropped recipients still get 250. Once
// any recipient has been stored the message is accepted, since a retry
// would store those recipients twice.
// Implements smtp.Session interface.
func (s *Session) Data(r io.Reader) error {
	deliveries, err := s.process(r)
	if err != nil && !anyStored(deliveries) {
		return errProcessing
	}
	return nil
}

// anyStored reports whether at least one delivery was persisted.
func anyStored(deliveries []inbound.Delivery) bool {
	for _, d := range deliveries {
		if d.Err == nil && d.Record != nil {
			return true
		}
	}
	return false
}

// LMTPData handles DATA in LMTP mode, reporting a status per recipient.
// Implements smtp.LMTPSession interface.
func (s *Session) LMTPData(r io.Reader, status smtp.StatusCollector) error {
	deliveries, err := s.process(r)
	if len(deliveries) != len(s.recipients) {
		// The message as a whole failed before recipients were resolved.
		for _, rcpt := range s.recipients {
			status.SetStatus(rcpt, statusError(err))
		}
		return nil
	}
	for _, d := range deliveries {
		status.SetStatus(d.Recipient, statusError(d.Err))
	}
	return nil
}

func statusError(err error) error {
	if err != nil {
		return errProcessing
	}
	return nil
}

// process hands the message to the backend handler.
func (s *Session) process(r io.Reader) ([]inbound.Delivery, error) {
	ctx := logging.NewContext(context.Background(), s.logger)
	domain := sessionExtractRecipientDomain(s.recipients)

	data, err := io.ReadAll(r)
	if err != nil {
		s.logger.Debug("failed to read message data", slog.String("error", err.Error()))
		s.backend.collector.MessageRejected(domain, "read_error")
		return nil, err
	}
	s.backend.collector.CommandProcessed("DATA")

	if s.backend.handler == nil {
		s.backend.collector.MessageRejected(domain, "no_handler")
		return nil, errors.New("no message handler configured")
	}

	var helo string
	if s.conn != nil {
		helo = s.conn.Hostname()
	}

	deliveries, err := s.backend.handler.Handle(ctx, inbound.Request{
		From:           s.from,
		Recipients:     s.recipients,
		Data:           data,
		ClientIP:       net.ParseIP(s.clientIP),
		ClientHostname: helo,
		ReceivedTime:   time.Now(),
	})
	if err != nil && anyStored(deliveries) {
		for _, d := range deliveries {
			if d.Err == nil {
				continue
			}
			s.backend.collector.MessageRejected(sessionExtractRecipientDomain([]string{d.Recipient}), "persist_error")
			s.logger.Error("recipient not stored",
				slog.String("from", s.from),
				slog.String("recipient", d.Recipient),
				slog.String("error", d.Err.Error()))
		}
		s.backend.collector.MessageReceived(domain, int64(len(data)))
		return deliveries, err
	}
	if err != nil {
		reason := "processing_error"
		if errors.Is(err, inbound.ErrParse) {
			reason = "parse_error"
		}
		s.backend.collector.MessageRejected(domain, reason)
		s.logger.Warn("message processing failed",
			slog.String("from", s.from),
			slog.Int("recipients", len(s.recipients)),
			slog.String("error", err.Error()))
		return deliveries, err
	}

	s.backend.collector.MessageReceived(domain, int64(len(data)))
	s.logger.Debug("message processed",
		slog.Int("size", len(data)),
		slog.Int("recipients", len(s.recipients)))
	return deliveries, nil
}

// Reset is called when the client sends RSET.
// Implements smtp.Session interface.
func (s *Session) Reset() {
	s.from = ""
	s.recipients = nil
	s.logger.Debug("session reset")
}

// Logout is called when the client quits or the connection closes.
// Implements smtp.Session interface.
func (s *Session) Logout() error {
	s.backend.collector.ConnectionClosed()
	s.logger.Debug("session logout")
	return nil
}

// sessionExtractRecipientDomain extracts the domain from the first recipient's email address.
func sessionExtractRecipientDomain(recipients []string) string {
	if len(recipients) == 0 {
		return "unknown"
	}

	email := recipients[0]
	if idx := strings.LastIndex(email, "@"); idx >= 0 {
		return strings.ToLower(email[idx+1:])
	}
	return "unknown"
}
