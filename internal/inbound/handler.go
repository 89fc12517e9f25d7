// Package inbound runs the per-message routing flow: parse, resolve every
// envelope recipient, persist, archive and notify.
package inbound

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/infodancer/msgstore"

	"github.com/infodancer/mailroute/internal/address"
	"github.com/infodancer/mailroute/internal/authres"
	"github.com/infodancer/mailroute/internal/logging"
	"github.com/infodancer/mailroute/internal/message"
	"github.com/infodancer/mailroute/internal/metrics"
	"github.com/infodancer/mailroute/internal/notify"
	"github.com/infodancer/mailroute/internal/routing"
	"github.com/infodancer/mailroute/internal/store"
)

// ErrParse is returned when the message cannot be parsed.
var ErrParse = errors.New("failed to parse message")

// Store is the persistence collaborator. *store.DB implements it.
type Store interface {
	routing.AccountLookup
	routing.PolicyLookup
	routing.SettingsSource
	Persist(ctx context.Context, rec *store.Record, attachments []message.Attachment) (*store.Record, error)
}

// Notifier delivers a notification to every configured target.
type Notifier interface {
	Dispatch(ctx context.Context, n notify.Notification) error
}

// Request is one message as received from the transport.
type Request struct {
	From           string
	Recipients     []string
	Data           []byte
	ClientIP       net.IP
	ClientHostname string
	ReceivedTime   time.Time
}

// Delivery is the result for one envelope recipient.
type Delivery struct {
	Recipient string
	Outcome   routing.Outcome
	// Record is nil when the recipient was dropped or during a dry run.
	Record *store.Record
	// Err is set when the recipient was not dropped but could not be stored.
	Err error
}

// Config holds the collaborators of a Handler. Only Store is required.
type Config struct {
	Store Store
	// Settings is consulted for routing keys the store does not set.
	Settings routing.SettingsSource
	// Verifier enables DKIM verification when non-nil.
	Verifier *authres.Verifier
	// Archive receives the raw message under its final address when non-nil.
	Archive   msgstore.DeliveryAgent
	Notifier  Notifier
	Collector metrics.Collector
	Logger    *slog.Logger
	Hostname  string
}

// Handler processes inbound messages.
type Handler struct {
	store     Store
	settings  routing.SettingsSource
	pipeline  *routing.Pipeline
	verifier  *authres.Verifier
	archive   msgstore.DeliveryAgent
	notifier  Notifier
	collector metrics.Collector
	logger    *slog.Logger
	hostname  string
}

// NewHandler creates a Handler from cfg.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := cfg.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}

	var settings routing.SettingsSource = cfg.Store
	if cfg.Settings != nil {
		settings = routing.LayeredSource{cfg.Store, cfg.Settings}
	}

	hostname := cfg.Hostname
	if hostname == "" {
		hostname = "localhost"
	}

	return &Handler{
		store:     cfg.Store,
		settings:  settings,
		pipeline:  routing.NewPipeline(cfg.Store, cfg.Store, logger),
		verifier:  cfg.Verifier,
		archive:   cfg.Archive,
		notifier:  cfg.Notifier,
		collector: collector,
		logger:    logger,
		hostname:  hostname,
	}
}

// Handle resolves every recipient of req and stores the message for each
// one that is not dropped. A parse or lookup error aborts the whole message.
// A storage failure is recorded on that recipient's Delivery, the remaining
// recipients are still processed, and the joined error is returned. Drops
// are not errors.
func (h *Handler) Handle(ctx context.Context, req Request) ([]Delivery, error) {
	msg, snap, err := h.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	dkimValue, dkimHeader := h.verifyDKIM(ctx, req, msg)

	// Resolve everyone first so a lookup failure leaves nothing half done.
	deliveries, err := h.resolveAll(ctx, snap, req, msg)
	if err != nil {
		return nil, err
	}

	base := logging.FromContextOr(ctx, h.logger)
	var errs []error
	for i := range deliveries {
		d := &deliveries[i]
		logger := logging.WithMessage(base, msg.MessageID, d.Recipient)
		out := d.Outcome

		h.collector.RecipientResolved(string(out.Source))
		if !out.Persist() {
			h.collector.MessageDropped(metricDomain(out, d.Recipient), string(out.Reason))
			logger.Info("message dropped",
				slog.String("reason", string(out.Reason)),
				slog.String("final_address", out.Result.FinalAddress))
			continue
		}

		rec := store.NewRecord(out, envelope(req, d.Recipient, msg), out.Message)
		rec.DKIM = dkimValue
		var attachments []message.Attachment
		if out.Message != nil {
			attachments = out.Message.Attachments
		}

		stored, err := h.store.Persist(ctx, rec, attachments)
		if err != nil {
			logger.Error("failed to persist message", slog.String("error", err.Error()))
			d.Err = fmt.Errorf("persisting message for %s: %w", d.Recipient, err)
			errs = append(errs, d.Err)
			continue
		}
		d.Record = stored

		h.collector.MessageStored(out.DisplayDomain, string(stored.Status))
		if out.Disposition == routing.Redacted {
			h.collector.MessageRedacted(out.DisplayDomain)
		}
		logger.Info("message stored",
			slog.String("id", stored.ID),
			slog.String("final_address", stored.ToEmail),
			slog.String("status", string(stored.Status)),
			slog.String("source", string(out.Source)),
			slog.Bool("redacted", stored.Redacted))

		if out.Disposition == routing.Delivered {
			h.archiveMessage(ctx, logger, req, stored.ToEmail, dkimHeader)
		}
		if snap.NotifyEnabled {
			h.notify(ctx, logger, stored)
		}
	}

	return deliveries, errors.Join(errs...)
}

// Resolve runs the routing decision for every recipient of req without
// persisting, archiving or notifying anything.
func (h *Handler) Resolve(ctx context.Context, req Request) ([]Delivery, error) {
	msg, snap, err := h.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return h.resolveAll(ctx, snap, req, msg)
}

func (h *Handler) prepare(ctx context.Context, req Request) (*message.Message, *routing.Snapshot, error) {
	msg, err := message.ParseBytes(req.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	snap, err := routing.LoadSnapshot(ctx, h.settings, h.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("loading routing settings: %w", err)
	}
	return msg, &snap, nil
}

func (h *Handler) resolveAll(ctx context.Context, snap *routing.Snapshot, req Request, msg *message.Message) ([]Delivery, error) {
	deliveries := make([]Delivery, 0, len(req.Recipients))
	for _, rcpt := range req.Recipients {
		out, err := h.pipeline.Resolve(ctx, snap, envelope(req, rcpt, msg), msg)
		if err != nil {
			h.logger.Error("recipient resolution failed",
				slog.String("message_id", msg.MessageID),
				slog.String("envelope_to", rcpt),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("resolving %s: %w", rcpt, err)
		}
		deliveries = append(deliveries, Delivery{Recipient: rcpt, Outcome: out})
	}
	return deliveries, nil
}

func (h *Handler) verifyDKIM(ctx context.Context, req Request, msg *message.Message) (value, header string) {
	if h.verifier == nil {
		return "", ""
	}
	senderDomain := address.Domain(msg.From.Address)
	if senderDomain == "" {
		senderDomain = address.Domain(req.From)
	}

	res, err := h.verifier.Verify(ctx, req.Data)
	if err != nil {
		h.logger.Warn("dkim verification failed",
			slog.String("message_id", msg.MessageID),
			slog.String("error", err.Error()))
		h.collector.DKIMCheckCompleted(senderDomain, "error")
		return "", ""
	}
	h.collector.DKIMCheckCompleted(senderDomain, string(res.Value))
	return string(res.Value), res.Header(h.hostname)
}

// archiveMessage stores the raw message under finalAddress. Failures are
// logged and never affect the stored record.
func (h *Handler) archiveMessage(ctx context.Context, logger *slog.Logger, req Request, finalAddress, authResults string) {
	if h.archive == nil {
		return
	}

	data := req.Data
	if authResults != "" {
		data = append([]byte("Authentication-Results: "+authResults+"\r\n"), req.Data...)
	}
	received := req.ReceivedTime
	if received.IsZero() {
		received = time.Now()
	}

	err := h.archive.Deliver(ctx, msgstore.Envelope{
		From:           req.From,
		Recipients:     []string{finalAddress},
		ReceivedTime:   received,
		ClientIP:       req.ClientIP,
		ClientHostname: req.ClientHostname,
	}, bytes.NewReader(data))
	h.collector.ArchiveCompleted(metrics.Result(err))
	if err != nil {
		logger.Warn("archive delivery failed",
			slog.String("final_address", finalAddress),
			slog.String("error", err.Error()))
	}
}

func (h *Handler) notify(ctx context.Context, logger *slog.Logger, rec *store.Record) {
	if h.notifier == nil {
		return
	}
	n, err := notify.New(rec)
	if err != nil {
		logger.Warn("failed to render notification", slog.String("error", err.Error()))
		return
	}
	// Per-target failures are already logged by the notifier.
	_ = h.notifier.Dispatch(ctx, n)
}

func envelope(req Request, rcpt string, msg *message.Message) routing.Envelope {
	return routing.Envelope{From: req.From, To: rcpt, Headers: msg.Headers}
}

func metricDomain(out routing.Outcome, rcpt string) string {
	if out.DisplayDomain != "" {
		return out.DisplayDomain
	}
	if d := address.Domain(rcpt); d != "" {
		return d
	}
	return "unknown"
}
